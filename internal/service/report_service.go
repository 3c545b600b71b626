package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	RequeueInterrupted(ctx context.Context) (int64, error)
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService orchestrates compliance report jobs.
type ReportService struct {
	repo     reportJobStore
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ReportServiceConfig
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actor models.Actor) (*dto.ReportJobResponse, error) {
	params, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.logger.Info("compliance report queued", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.String("actor", actor.ID))
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata. Only admins may read jobs created by someone else.
func (s *ReportService) GetStatus(ctx context.Context, id string, actor models.Actor) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Format:     job.Params.Format,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs requeues jobs interrupted by a restart and replays queued ones.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	if n, err := s.repo.RequeueInterrupted(ctx); err != nil {
		s.logger.Warn("failed to requeue interrupted report jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted report jobs", zap.Int64("count", n))
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	const batch = 100
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
	if err != nil {
		s.logger.Warn("report cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		token := extractToken(*job.ResultURL)
		if token == "" {
			continue
		}
		_, relPath, _, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(relPath); err != nil {
			s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("report filesystem cleanup failed", zap.Error(err))
	}
}

func (s *ReportService) validateRequest(req dto.ReportRequest) (models.ReportJobParams, error) {
	if !isValidReportType(req.Type) {
		return models.ReportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if s.exporter == nil || !s.exporter.Supports(req.Format) {
		return models.ReportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	severity := normalizeSeverity(string(req.Severity))
	if severity != "" && !severity.Valid() {
		return models.ReportJobParams{}, appErrors.Clone(appErrors.ErrValidation, "unsupported severity filter")
	}
	return models.ReportJobParams{
		Format:        req.Format,
		Severity:      severity,
		StudentCourse: strings.TrimSpace(req.StudentCourse),
		IncludeClosed: req.IncludeClosed,
	}, nil
}

func isValidReportType(t models.ReportType) bool {
	switch t {
	case models.ReportTypeComplianceAudit, models.ReportTypeNullityRisk, models.ReportTypeDeadlines:
		return true
	default:
		return false
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job. Failures before the last attempt put the job back
// to QUEUED so the queue retry picks it up.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		update := repository.UpdateReportJobParams{ErrorMessage: &msg}
		if job.Attempt >= w.maxRetries {
			failed := models.ReportStatusFailed
			done := 100
			now := time.Now().UTC()
			update.Status, update.Progress, update.FinishedAt = &failed, &done, &now
		} else {
			queued := models.ReportStatusQueued
			reset := 0
			update.Status, update.Progress = &queued, &reset
		}
		if updateErr := w.repo.Update(ctx, job.ID, update); updateErr != nil {
			w.logger.Warn("failed to record report failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	cleared := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &cleared,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("compliance report finished", zap.String("job_id", job.ID), zap.Int("rows", result.Rows))
	return nil
}
