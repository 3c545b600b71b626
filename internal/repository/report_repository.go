package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convivencia-api/internal/models"
)

const reportJobColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// ReportRepository persists compliance report job metadata in report_jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued job with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (` + reportJobColumns + `)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns a job by identifier. Missing rows surface sql.ErrNoRows.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT ` + reportJobColumns + ` FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the mutable job fields; nil fields are left untouched.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// RequeueInterrupted moves jobs left PROCESSING by a previous process back to QUEUED.
func (r *ReportRepository) RequeueInterrupted(ctx context.Context) (int64, error) {
	const query = `UPDATE report_jobs SET status = 'QUEUED', progress = 0 WHERE status = 'PROCESSING'`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted report jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted report jobs: %w", err)
	}
	return affected, nil
}

// ListQueued fetches queued jobs oldest first, used on cold start.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + reportJobColumns + ` FROM report_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore retrieves completed jobs older than cutoff for file cleanup.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + reportJobColumns + ` FROM report_jobs
WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
