package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CaseStage is the position of a case file in the disciplinary lifecycle.
type CaseStage string

const (
	StageOpened            CaseStage = "OPENED"
	StageNotified          CaseStage = "NOTIFIED"
	StageRebuttal          CaseStage = "REBUTTAL"
	StageInvestigation     CaseStage = "INVESTIGATION"
	StageResolutionPending CaseStage = "RESOLUTION_PENDING"
	StageReconsideration   CaseStage = "RECONSIDERATION"
	StageClosedSanction    CaseStage = "CLOSED_SANCTION"
	StageClosedMediation   CaseStage = "CLOSED_MEDIATION"
)

// AllStages lists every canonical stage in lifecycle order.
var AllStages = []CaseStage{
	StageOpened,
	StageNotified,
	StageRebuttal,
	StageInvestigation,
	StageResolutionPending,
	StageReconsideration,
	StageClosedSanction,
	StageClosedMediation,
}

// IsClosed reports whether the stage is terminal.
func (s CaseStage) IsClosed() bool {
	return s == StageClosedSanction || s == StageClosedMediation
}

// Valid reports whether s is a canonical stage.
func (s CaseStage) Valid() bool {
	for _, stage := range AllStages {
		if stage == s {
			return true
		}
	}
	return false
}

// Severity classifies the originating offense.
type Severity string

const (
	SeverityLow             Severity = "LOW"
	SeverityRelevant        Severity = "RELEVANT"
	SeveritySevereExpulsion Severity = "SEVERE_EXPULSION"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityRelevant, SeveritySevereExpulsion:
		return true
	default:
		return false
	}
}

// IsExpulsion reports whether the case may end in expulsion or enrolment cancellation.
func (s Severity) IsExpulsion() bool {
	return s == SeveritySevereExpulsion
}

// Case is a disciplinary case file (expediente).
type Case struct {
	ID                 string     `db:"id" json:"id,omitempty"`
	Folio              string     `db:"folio" json:"folio"`
	StudentID          *string    `db:"student_id" json:"studentId,omitempty"`
	StudentName        string     `db:"student_name" json:"studentName"`
	StudentCourse      string     `db:"student_course" json:"studentCourse"`
	Description        string     `db:"description" json:"description"`
	Stage              CaseStage  `db:"stage" json:"stage"`
	Severity           Severity   `db:"severity" json:"severity"`
	OpenedAt           time.Time  `db:"opened_at" json:"openedAt"`
	FatalDeadline      time.Time  `db:"fatal_deadline" json:"fatalDeadline"`
	PriorActionsOnFile bool       `db:"prior_actions_on_file" json:"priorActionsOnFile"`
	Milestones         Milestones `db:"milestones" json:"milestones"`
	Version            int        `db:"version" json:"version"`
	CreatedBy          string     `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
	StageChangedAt     time.Time  `db:"stage_changed_at" json:"stageChangedAt"`
}

// IsClosed reports whether the case reached a terminal stage.
func (c *Case) IsClosed() bool {
	return c != nil && c.Stage.IsClosed()
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	clone := *c
	if c.StudentID != nil {
		id := *c.StudentID
		clone.StudentID = &id
	}
	clone.Milestones = c.Milestones.Clone()
	return &clone
}

// CaseFilter constrains case listing queries.
type CaseFilter struct {
	Stages     []CaseStage
	Severity   Severity
	Search     string
	OpenOnly   bool
	Limit      int
	Offset     int
	OrderByAge bool
}

// Milestone is one legally required procedural step (hito) within a case.
type Milestone struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Completed             bool       `json:"completed"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	RequiresEvidence      bool       `json:"requiresEvidence"`
	MandatoryForExpulsion bool       `json:"mandatoryForExpulsion,omitempty"`
	EvidenceRef           string     `json:"evidenceRef,omitempty"`
}

// Milestones is stored as a JSONB array on the cases table.
type Milestones []Milestone

// Find returns the index of the milestone with the given id, or -1.
func (m Milestones) Find(id string) int {
	for i := range m {
		if m[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the slice.
func (m Milestones) Clone() Milestones {
	if m == nil {
		return nil
	}
	out := make(Milestones, len(m))
	for i, item := range m {
		out[i] = item
		if item.CompletedAt != nil {
			ts := *item.CompletedAt
			out[i].CompletedAt = &ts
		}
	}
	return out
}

// Value marshals milestones to JSON for persistence.
func (m Milestones) Value() (driver.Value, error) {
	if m == nil {
		m = Milestones{}
	}
	data, err := json.Marshal([]Milestone(m))
	if err != nil {
		return nil, fmt.Errorf("marshal milestones: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON array into milestones.
func (m *Milestones) Scan(value interface{}) error {
	if value == nil {
		*m = Milestones{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Milestones", value)
	}
	if len(data) == 0 {
		*m = Milestones{}
		return nil
	}
	var items []Milestone
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal milestones: %w", err)
	}
	*m = items
	return nil
}

// TransitionDefinition describes an allowed stage change and its checklist.
type TransitionDefinition struct {
	ID           string      `json:"id"`
	From         []CaseStage `json:"from"`
	To           CaseStage   `json:"to"`
	Label        string      `json:"label"`
	Description  string      `json:"description"`
	Requirements []string    `json:"requirements"`
}

// AllowsFrom reports whether stage is one of the eligible source stages.
func (t TransitionDefinition) AllowsFrom(stage CaseStage) bool {
	for _, from := range t.From {
		if from == stage {
			return true
		}
	}
	return false
}
