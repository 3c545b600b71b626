package dto

import (
	"time"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// ReportRequest captures POST /compliance/reports payload. Severity and
// StudentCourse narrow the audited case set; closed cases are skipped unless
// IncludeClosed is set.
type ReportRequest struct {
	Type          models.ReportType   `json:"type"`
	Format        models.ReportFormat `json:"format"`
	Severity      models.Severity     `json:"severity,omitempty"`
	StudentCourse string              `json:"studentCourse,omitempty"`
	IncludeClosed bool                `json:"includeClosed"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress. ResultURL is a signed, expiring
// download link present once the job finished.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Format     models.ReportFormat `json:"format"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"resultUrl,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
