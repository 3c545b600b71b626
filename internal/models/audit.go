package models

import (
	"encoding/json"
	"time"
)

// CaseAuditAction identifies what happened to a case.
type CaseAuditAction string

const (
	AuditActionCaseCreated        CaseAuditAction = "CASE_CREATED"
	AuditActionStageTransition    CaseAuditAction = "STAGE_TRANSITION"
	AuditActionCaseClosed         CaseAuditAction = "CASE_CLOSED"
	AuditActionDocumentUpload     CaseAuditAction = "DOCUMENT_UPLOAD"
	AuditActionSeverityAmended    CaseAuditAction = "SEVERITY_AMENDED"
	AuditActionMilestoneCompleted CaseAuditAction = "MILESTONE_COMPLETED"
)

// CaseAuditEntry is an append-only record in a case's compliance history.
type CaseAuditEntry struct {
	ID          string          `db:"id" json:"id"`
	CaseID      string          `db:"case_id" json:"caseId"`
	CaseFolio   string          `db:"case_folio" json:"caseFolio"`
	Action      CaseAuditAction `db:"action" json:"action"`
	Description string          `db:"description" json:"description"`
	ActorID     string          `db:"actor_id" json:"actorId"`
	ActorRole   UserRole        `db:"actor_role" json:"actorRole"`
	Critical    bool            `db:"critical" json:"critical"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// TransitionPayload is the structured payload stored with stage transitions.
type TransitionPayload struct {
	TransitionID string    `json:"transitionId"`
	Previous     CaseStage `json:"previousStage"`
	Next         CaseStage `json:"nextStage"`
	Checked      []string  `json:"checkedRequirements"`
}

// Actor identifies the staff member performing an operation.
type Actor struct {
	ID   string
	Role UserRole
}

// SystemActor is used for entries written by background processes.
var SystemActor = Actor{ID: "system", Role: RoleSystem}
