package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/middleware"
	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/response"
)

type complianceService interface {
	AuditCases(ctx context.Context, filter models.ComplianceFilter) ([]models.ComplianceResult, bool, error)
	Summary(ctx context.Context) (*models.ComplianceSummary, bool, bool, error)
}

// ComplianceHandler serves the procedural compliance audit.
type ComplianceHandler struct {
	service complianceService
}

// NewComplianceHandler constructs the handler.
func NewComplianceHandler(service complianceService) *ComplianceHandler {
	return &ComplianceHandler{service: service}
}

// Cases godoc
// @Summary Per-case compliance checks ordered by urgency
// @Tags Compliance
// @Produce json
// @Param filter query string false "nullity_risk or low_health"
// @Success 200 {object} response.Envelope
// @Router /compliance/cases [get]
func (h *ComplianceHandler) Cases(c *gin.Context) {
	filter := models.ComplianceFilter(strings.ToLower(strings.TrimSpace(c.Query("filter"))))
	switch filter {
	case models.ComplianceFilterAll, models.ComplianceFilterNullityRisk, models.ComplianceFilterLowHealth:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "filter must be nullity_risk or low_health"))
		return
	}

	results, degraded, err := h.service.AuditCases(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetDegraded(c, degraded, middleware.SourceLocalCache)
	response.JSON(c, http.StatusOK, results, nil, responseMeta(c))
}

// Summary godoc
// @Summary Global compliance KPIs
// @Tags Compliance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /compliance/summary [get]
func (h *ComplianceHandler) Summary(c *gin.Context) {
	summary, cached, degraded, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	middleware.SetDegraded(c, degraded, middleware.SourceLocalCache)
	response.JSON(c, http.StatusOK, dto.ComplianceSummaryResponse{ComplianceSummary: *summary, Cached: cached}, nil, responseMeta(c))
}
