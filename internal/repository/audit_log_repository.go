package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convivencia-api/internal/models"
)

const auditColumns = `id, case_id, case_folio, action, description, actor_id, actor_role, critical, payload, created_at`

// AuditLogRepository stores the append-only case history.
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository constructs the repository.
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts a single audit entry outside any case update.
func (r *AuditLogRepository) Append(ctx context.Context, entry *models.CaseAuditEntry) error {
	return insertAuditEntry(ctx, r.db, entry, time.Now().UTC())
}

// ListByCase returns every entry recorded for the case. Ordering is left to the caller.
func (r *AuditLogRepository) ListByCase(ctx context.Context, caseID string) ([]models.CaseAuditEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM case_audit_log WHERE case_id = $1", auditColumns)
	var entries []models.CaseAuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, caseID); err != nil {
		return nil, fmt.Errorf("list case audit log: %w", err)
	}
	return entries, nil
}

func insertAuditEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.CaseAuditEntry, now time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if len(entry.Payload) == 0 {
		entry.Payload = []byte("{}")
	}
	const query = `INSERT INTO case_audit_log (id, case_id, case_folio, action, description, actor_id, actor_role, critical, payload, created_at)
	VALUES (:id, :case_id, :case_folio, :action, :description, :actor_id, :actor_role, :critical, :payload, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, entry); err != nil {
		return fmt.Errorf("append case audit entry: %w", err)
	}
	return nil
}
