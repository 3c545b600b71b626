package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/internal/models"
)

var reportJobRowColumns = []string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}

func newReportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReportRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()

	repo := NewReportRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs")).
		WithArgs(sqlmock.AnyArg(), "nullity_risk", sqlmock.AnyArg(), "QUEUED", 0, nil, "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ReportJob{
		Type:      models.ReportTypeNullityRisk,
		Params:    models.ReportJobParams{Format: models.ReportFormatXLSX, Severity: models.SeveritySevereExpulsion},
		CreatedBy: "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)

	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow(job.ID, "nullity_risk", []byte(`{"format":"xlsx","severity":"SEVERE_EXPULSION","includeClosed":false}`), "QUEUED", 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, fetched.ID)
	assert.Equal(t, models.ReportFormatXLSX, fetched.Params.Format)
	assert.Equal(t, models.SeveritySevereExpulsion, fetched.Params.Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReportRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	status := models.ReportStatusFinished
	progress := 100
	result := "/api/v1/compliance/reports/download/token"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $1, progress = $2, result_url = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, progress, result, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &result,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateNoop(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryRequeueInterrupted(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = 'QUEUED', progress = 0 WHERE status = 'PROCESSING'")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.RequeueInterrupted(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow("job-1", "deadlines", []byte(`{"format":"csv","includeClosed":false}`), "QUEUED", 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ReportTypeDeadlines, jobs[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow("job-1", "compliance_audit", []byte(`{"format":"pdf","includeClosed":true}`), "FINISHED", 100, "/api/v1/compliance/reports/download/token", "user-1", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Params.IncludeClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}
