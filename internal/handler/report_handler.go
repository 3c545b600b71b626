package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/service"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/response"
)

type reportService interface {
	CreateJob(ctx context.Context, req dto.ReportRequest, actor models.Actor) (*dto.ReportJobResponse, error)
	GetStatus(ctx context.Context, id string, actor models.Actor) (*dto.ReportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

var reportContentTypes = map[models.ReportFormat]string{
	models.ReportFormatCSV:  "text/csv; charset=utf-8",
	models.ReportFormatPDF:  "application/pdf",
	models.ReportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ReportHandler exposes asynchronous compliance report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Create godoc
// @Summary Queue a compliance report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ReportRequest true "Report request"
// @Success 202 {object} response.Envelope
// @Router /compliance/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "reports are disabled"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report payload"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job, strings.TrimRight(c.Request.URL.Path, "/")+"/"+job.ID)
}

// Status godoc
// @Summary Report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /compliance/reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "reports are disabled"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished report via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /compliance/reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "reports are disabled"))
		return
	}
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	contentType, ok := reportContentTypes[download.Format]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "private, max-age=0")
	c.Header("Expires", download.ExpiresAt.UTC().Format(time.RFC1123))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		_ = c.Error(err)
	}
}
