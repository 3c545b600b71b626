package dto

import (
	"time"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// OpenCaseRequest captures POST /cases payload.
type OpenCaseRequest struct {
	StudentID          *string    `json:"studentId,omitempty"`
	StudentName        string     `json:"studentName" validate:"required,max=160"`
	StudentCourse      string     `json:"studentCourse" validate:"required,max=60"`
	Description        string     `json:"description" validate:"required"`
	Severity           string     `json:"severity" validate:"required,severity"`
	OpenedAt           *time.Time `json:"openedAt,omitempty"`
	PriorActionsOnFile bool       `json:"priorActionsOnFile"`
}

// CaseListQuery mirrors GET /cases query parameters.
type CaseListQuery struct {
	Stages      []models.CaseStage
	Severity    models.Severity
	Search      string
	OpenOnly    bool
	// OldestFirst orders by opened_at ascending instead of most recently updated.
	OldestFirst bool
	Page        int
	PageSize    int
}

// ExecuteTransitionRequest acknowledges each checklist item by index. It is
// checked at bind time since no service-side validation runs for it.
type ExecuteTransitionRequest struct {
	Acknowledged []bool `json:"acknowledged" binding:"required,min=1"`
}

// AmendSeverityRequest captures PATCH /cases/:folio/severity payload.
type AmendSeverityRequest struct {
	Severity string `json:"severity" validate:"required,severity"`
	Reason   string `json:"reason" validate:"required"`
}

// CompleteMilestoneRequest marks a milestone as done.
type CompleteMilestoneRequest struct {
	EvidenceRef string     `json:"evidenceRef"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CaseDetail is the enriched single case response.
type CaseDetail struct {
	Case                 *models.Case                  `json:"case"`
	DaysRemaining        int                           `json:"daysRemaining"`
	Urgency              models.Urgency                `json:"urgency"`
	AvailableTransitions []models.TransitionDefinition `json:"availableTransitions"`
	Compliance           models.ComplianceResult       `json:"compliance"`
}

// TransitionResponse is returned after a successful stage transition.
type TransitionResponse struct {
	Case  *models.Case           `json:"case"`
	Entry *models.CaseAuditEntry `json:"entry"`
}
