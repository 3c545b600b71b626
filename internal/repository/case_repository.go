package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// MaxCaseListSize caps every case listing.
const MaxCaseListSize = 200

// ErrVersionConflict is returned when a guarded update matched no row because the
// stored version moved on (or the case does not exist).
var ErrVersionConflict = errors.New("case version conflict")

// storedVersion reads the version the way MapCaseRow does: legacy rows with a
// NULL or non-positive version count as version 1.
const storedVersion = "GREATEST(COALESCE(version, 1), 1)"

const caseColumns = `id, folio, student_id, student_name, student_course, description, stage, severity,
       opened_at, fatal_deadline, prior_actions_on_file, milestones, version, created_by, created_at, updated_at,
       stage_changed_at`

// QueryObserver receives the label and duration of every case store round trip.
type QueryObserver func(label string, duration time.Duration)

// CaseRepository persists case files and their audit trail in Postgres.
type CaseRepository struct {
	db       *sqlx.DB
	deadline DeadlineFunc
	now      func() time.Time
	observe  QueryObserver
}

// NewCaseRepository constructs the repository. deadline repairs rows with a
// missing fatal deadline and may be nil.
func NewCaseRepository(db *sqlx.DB, deadline DeadlineFunc) *CaseRepository {
	return &CaseRepository{db: db, deadline: deadline, now: func() time.Time { return time.Now().UTC() }}
}

// WithQueryObserver attaches a timing hook and returns the repository.
func (r *CaseRepository) WithQueryObserver(observe QueryObserver) *CaseRepository {
	r.observe = observe
	return r
}

func (r *CaseRepository) track(label string) func() {
	if r.observe == nil {
		return func() {}
	}
	start := time.Now()
	return func() { r.observe(label, time.Since(start)) }
}

// List returns cases matching the filter, most recently updated first, capped at MaxCaseListSize.
func (r *CaseRepository) List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error) {
	defer r.track("case.list")()
	where, args := buildCaseConditions(filter)

	builder := strings.Builder{}
	builder.WriteString("SELECT ")
	builder.WriteString(caseColumns)
	builder.WriteString(" FROM cases")
	builder.WriteString(where)
	if filter.OrderByAge {
		builder.WriteString(" ORDER BY opened_at ASC")
	} else {
		builder.WriteString(" ORDER BY updated_at DESC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > MaxCaseListSize {
		limit = MaxCaseListSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var rows []CaseRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	cases := make([]models.Case, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, MapCaseRow(row, r.deadline))
	}
	return cases, nil
}

// Count returns the number of cases matching the filter ignoring pagination.
func (r *CaseRepository) Count(ctx context.Context, filter models.CaseFilter) (int, error) {
	where, args := buildCaseConditions(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM cases"+where, args...); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return total, nil
}

func buildCaseConditions(filter models.CaseFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if len(filter.Stages) > 0 {
		stages := make([]string, len(filter.Stages))
		for i, stage := range filter.Stages {
			stages[i] = string(stage)
		}
		args = append(args, pq.Array(stages))
		conditions = append(conditions, fmt.Sprintf("stage = ANY($%d)", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(folio ILIKE $%d OR student_name ILIKE $%d)", len(args), len(args)))
	}
	if filter.OpenOnly {
		conditions = append(conditions, fmt.Sprintf("stage NOT IN ('%s', '%s')", models.StageClosedSanction, models.StageClosedMediation))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// GetByFolio fetches a case by its folio. Missing cases yield sql.ErrNoRows.
func (r *CaseRepository) GetByFolio(ctx context.Context, folio string) (*models.Case, error) {
	return r.getOne(ctx, "folio", strings.TrimSpace(folio))
}

// GetByID fetches a case by its storage identifier.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.Case, error) {
	return r.getOne(ctx, "id", id)
}

func (r *CaseRepository) getOne(ctx context.Context, column, value string) (*models.Case, error) {
	defer r.track("case.get_by_" + column)()
	query := fmt.Sprintf("SELECT %s FROM cases WHERE %s = $1", caseColumns, column)
	var row CaseRow
	if err := r.db.GetContext(ctx, &row, query, value); err != nil {
		return nil, err
	}
	c := MapCaseRow(row, r.deadline)
	return &c, nil
}

// NextFolioSequence returns the next value of the folio sequence.
func (r *CaseRepository) NextFolioSequence(ctx context.Context) (int64, error) {
	var next int64
	if err := r.db.GetContext(ctx, &next, "SELECT nextval('case_folio_seq')"); err != nil {
		return 0, fmt.Errorf("next folio sequence: %w", err)
	}
	return next, nil
}

// Create inserts a case together with its creation log entry in one transaction.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case, entry *models.CaseAuditEntry) error {
	defer r.track("case.create")()
	now := r.now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Version <= 0 {
		c.Version = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.StageChangedAt.IsZero() {
		c.StageChangedAt = c.CreatedAt
	}
	if c.Milestones == nil {
		c.Milestones = models.Milestones{}
	}

	const query = `INSERT INTO cases (id, folio, student_id, student_name, student_course, description, stage, severity,
	opened_at, fatal_deadline, prior_actions_on_file, milestones, version, created_by, created_at, updated_at, stage_changed_at)
	VALUES (:id, :folio, :student_id, :student_name, :student_course, :description, :stage, :severity,
	:opened_at, :fatal_deadline, :prior_actions_on_file, :milestones, :version, :created_by, :created_at, :updated_at, :stage_changed_at)`

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, c); err != nil {
			return fmt.Errorf("create case: %w", err)
		}
		if entry == nil {
			return nil
		}
		entry.CaseID = c.ID
		entry.CaseFolio = c.Folio
		return insertAuditEntry(ctx, tx, entry, now)
	})
}

// CaseUpdate describes a version guarded change to a case. Nil fields are left untouched.
type CaseUpdate struct {
	CaseID          string
	ExpectedVersion int
	Stage           *models.CaseStage
	Severity        *models.Severity
	FatalDeadline   *time.Time
	Milestones      models.Milestones
}

// UpdateStage moves a case to newStage when its stored version still matches.
func (r *CaseRepository) UpdateStage(ctx context.Context, caseID string, newStage models.CaseStage, expectedVersion int) error {
	return r.Apply(ctx, CaseUpdate{CaseID: caseID, ExpectedVersion: expectedVersion, Stage: &newStage}, nil)
}

// ApplyTransition updates the stage and appends the transition log entry atomically.
func (r *CaseRepository) ApplyTransition(ctx context.Context, caseID string, expectedVersion int, newStage models.CaseStage, entry *models.CaseAuditEntry) error {
	return r.Apply(ctx, CaseUpdate{CaseID: caseID, ExpectedVersion: expectedVersion, Stage: &newStage}, entry)
}

// UpdateSeverity persists an amended severity, its recalculated deadline and milestones.
func (r *CaseRepository) UpdateSeverity(ctx context.Context, caseID string, expectedVersion int, severity models.Severity, deadline time.Time, milestones models.Milestones, entry *models.CaseAuditEntry) error {
	return r.Apply(ctx, CaseUpdate{
		CaseID:          caseID,
		ExpectedVersion: expectedVersion,
		Severity:        &severity,
		FatalDeadline:   &deadline,
		Milestones:      milestones,
	}, entry)
}

// UpdateMilestones persists the milestone list.
func (r *CaseRepository) UpdateMilestones(ctx context.Context, caseID string, expectedVersion int, milestones models.Milestones, entry *models.CaseAuditEntry) error {
	return r.Apply(ctx, CaseUpdate{CaseID: caseID, ExpectedVersion: expectedVersion, Milestones: milestones}, entry)
}

// Apply runs a guarded update and the optional log entry in one transaction. The
// stored version is bumped by one; a version mismatch yields ErrVersionConflict.
func (r *CaseRepository) Apply(ctx context.Context, update CaseUpdate, entry *models.CaseAuditEntry) error {
	defer r.track("case.update")()
	now := r.now()
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if update.Stage != nil {
		set = append(set, fmt.Sprintf("stage = $%d", argPos))
		args = append(args, *update.Stage)
		argPos++
	}
	if update.Severity != nil {
		set = append(set, fmt.Sprintf("severity = $%d", argPos))
		args = append(args, *update.Severity)
		argPos++
	}
	if update.FatalDeadline != nil {
		set = append(set, fmt.Sprintf("fatal_deadline = $%d", argPos))
		args = append(args, *update.FatalDeadline)
		argPos++
	}
	if update.Milestones != nil {
		set = append(set, fmt.Sprintf("milestones = $%d", argPos))
		args = append(args, update.Milestones)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "version = "+storedVersion+" + 1", fmt.Sprintf("updated_at = $%d", argPos))
	if update.Stage != nil {
		set = append(set, fmt.Sprintf("stage_changed_at = $%d", argPos))
	}
	args = append(args, now)
	argPos++

	query := fmt.Sprintf("UPDATE cases SET %s WHERE id = $%d AND %s = $%d",
		strings.Join(set, ", "), argPos, storedVersion, argPos+1)
	args = append(args, update.CaseID, update.ExpectedVersion)

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update case: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check case update rows: %w", err)
		}
		if rows == 0 {
			return ErrVersionConflict
		}
		if entry == nil {
			return nil
		}
		if entry.CaseID == "" {
			entry.CaseID = update.CaseID
		}
		return insertAuditEntry(ctx, tx, entry, now)
	})
}

func (r *CaseRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin case tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit case tx: %w", err)
	}
	return nil
}

// IsVersionConflict reports whether err came from a failed version guard.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound reports whether err signals a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
