package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/jobs"
)

type reportRepoStub struct {
	jobs     map[string]*models.ReportJob
	requeued int64
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) RequeueInterrupted(ctx context.Context) (int64, error) {
	var n int64
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusProcessing {
			job.Status = models.ReportStatusQueued
			n++
		}
	}
	r.requeued += n
	return n, nil
}

func (r *reportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var queued []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	var finished []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t, reportFixtureStore())
	svc := NewReportService(repo, queue, exportSvc, zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:          models.ReportTypeNullityRisk,
		Format:        models.ReportFormatXLSX,
		Severity:      "severe_expulsion",
		StudentCourse: " 3° Medio A ",
	}, principal)
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, principal.ID, stored.CreatedBy)
	assert.Equal(t, models.SeveritySevereExpulsion, stored.Params.Severity)
	assert.Equal(t, "3° Medio A", stored.Params.StudentCourse)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc, _, _, _ := newReportServiceForTest(t)
	cases := []dto.ReportRequest{
		{Type: "grades", Format: models.ReportFormatCSV},
		{Type: models.ReportTypeDeadlines, Format: "docx"},
		{Type: models.ReportTypeDeadlines, Format: models.ReportFormatCSV, Severity: "MEDIUM"},
	}
	for _, req := range cases {
		_, err := svc.CreateJob(context.Background(), req, principal)
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	}
}

func TestReportServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue stopped")

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{Type: models.ReportTypeDeadlines, Format: models.ReportFormatCSV}, principal)
	require.Error(t, err)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatusOwnership(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeDeadlines,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: principal.ID,
	}

	resp, err := svc.GetStatus(context.Background(), "job-1", principal)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, resp.Status)
	assert.Equal(t, models.ReportTypeDeadlines, resp.Type)
	assert.Equal(t, models.ReportFormatCSV, resp.Format)

	_, err = svc.GetStatus(context.Background(), "job-1", models.Actor{ID: "other", Role: models.RolePrincipal})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.GetStatus(context.Background(), "job-1", models.Actor{ID: "root", Role: models.RoleAdmin})
	assert.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", principal)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-download",
		Type:      models.ReportTypeComplianceAudit,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: principal.ID,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	download.File.Close()

	_, err = svc.ResolveDownload(context.Background(), "garbage")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	repo.jobs["a"] = &models.ReportJob{ID: "a", Type: models.ReportTypeDeadlines, Status: models.ReportStatusQueued}
	repo.jobs["b"] = &models.ReportJob{ID: "b", Type: models.ReportTypeDeadlines, Status: models.ReportStatusProcessing}
	repo.jobs["c"] = &models.ReportJob{ID: "c", Type: models.ReportTypeDeadlines, Status: models.ReportStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	assert.EqualValues(t, 1, repo.requeued)
	assert.Len(t, queue.jobs, 2)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedJobRepo() *reportRepoStub {
	return &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				Type:      models.ReportTypeComplianceAudit,
				Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: principal.ID,
			},
		},
	}
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/compliance/reports/download/token"}}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	assert.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.NotNil(t, repo.jobs["job-1"].ResultURL)
}

func TestReportWorkerHandleFailureRequeuesBeforeLastAttempt(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, 2, zap.NewNop())

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0}))
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	assert.NotNil(t, repo.jobs["job-1"].FinishedAt)
}
