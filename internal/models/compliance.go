package models

// ComplianceStatus is the tri-state classification of an audited case.
type ComplianceStatus string

const (
	ComplianceReady      ComplianceStatus = "READY"
	ComplianceIncomplete ComplianceStatus = "INCOMPLETE"
	ComplianceRisk       ComplianceStatus = "RISK"
)

// ComplianceChecks holds the procedural checks evaluated per case.
type ComplianceChecks struct {
	Notified               bool `json:"notified"`
	RebuttalHandled        bool `json:"rebuttalHandled"`
	EvidenceComplete       bool `json:"evidenceComplete"`
	ResolutionIssued       bool `json:"resolutionIssued"`
	ReconsiderationHandled bool `json:"reconsiderationHandled"`
	GradationVerified      bool `json:"gradationVerified"`
}

// Passed counts how many checks are true.
func (c ComplianceChecks) Passed() int {
	n := 0
	for _, ok := range []bool{c.Notified, c.RebuttalHandled, c.EvidenceComplete, c.ResolutionIssued, c.ReconsiderationHandled, c.GradationVerified} {
		if ok {
			n++
		}
	}
	return n
}

// ComplianceCheckCount is the number of checks in ComplianceChecks.
const ComplianceCheckCount = 6

// ComplianceResult is the derived audit outcome for one case. Never persisted.
type ComplianceResult struct {
	Folio         string           `json:"folio"`
	StudentName   string           `json:"studentName"`
	Stage         CaseStage        `json:"stage"`
	Severity      Severity         `json:"severity"`
	Checks        ComplianceChecks `json:"checks"`
	Score         float64          `json:"score"`
	Status        ComplianceStatus `json:"status"`
	DaysRemaining int              `json:"daysRemaining"`
	Urgency       Urgency          `json:"urgency"`
}

// ComplianceSummary aggregates KPIs over a set of cases.
type ComplianceSummary struct {
	TotalCases        int `json:"totalCases"`
	GlobalHealth      int `json:"globalHealth"`
	NullityAlerts     int `json:"nullityAlerts"`
	CriticalDeadlines int `json:"criticalDeadlines"`
}

// ComplianceFilter selects a consumer view over audit results.
type ComplianceFilter string

const (
	ComplianceFilterAll         ComplianceFilter = ""
	ComplianceFilterNullityRisk ComplianceFilter = "nullity_risk"
	ComplianceFilterLowHealth   ComplianceFilter = "low_health"
)

// Urgency buckets the remaining days until a deadline.
type Urgency string

const (
	UrgencyOverdue  Urgency = "overdue"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyUpcoming Urgency = "upcoming"
	UrgencyNormal   Urgency = "normal"
)
