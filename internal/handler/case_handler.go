package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/middleware"
	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/response"
)

type caseService interface {
	Open(ctx context.Context, req dto.OpenCaseRequest, actor models.Actor) (*models.Case, error)
	List(ctx context.Context, query dto.CaseListQuery) ([]models.Case, *models.Pagination, bool, error)
	Get(ctx context.Context, folio string) (*dto.CaseDetail, bool, error)
	AvailableTransitions(ctx context.Context, folio string) ([]models.TransitionDefinition, error)
	AmendSeverity(ctx context.Context, folio string, req dto.AmendSeverityRequest, actor models.Actor) (*models.Case, error)
	CompleteMilestone(ctx context.Context, folio, milestoneID string, req dto.CompleteMilestoneRequest, actor models.Actor) (*models.Case, error)
	AuditLog(ctx context.Context, folio string) ([]models.CaseAuditEntry, error)
}

type transitionExecutor interface {
	TransitionByFolio(ctx context.Context, folio, transitionID string, acknowledged []bool, actor models.Actor) (*models.Case, *models.CaseAuditEntry, error)
}

// CaseHandler exposes case file endpoints.
type CaseHandler struct {
	cases       caseService
	transitions transitionExecutor
}

// NewCaseHandler constructs the handler.
func NewCaseHandler(cases caseService, transitions transitionExecutor) *CaseHandler {
	return &CaseHandler{cases: cases, transitions: transitions}
}

// List godoc
// @Summary List case files
// @Tags Cases
// @Produce json
// @Param stage query string false "Comma separated stages"
// @Param severity query string false "Severity"
// @Param q query string false "Search by folio, student or course"
// @Param openOnly query bool false "Only open cases"
// @Param sort query string false "updated (default) or oldest"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /cases [get]
func (h *CaseHandler) List(c *gin.Context) {
	query := dto.CaseListQuery{
		Search:   strings.TrimSpace(c.Query("q")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 0),
	}
	for _, raw := range queryList(c, "stage") {
		stage := models.CaseStage(strings.ToUpper(raw))
		if !stage.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown stage "+raw))
			return
		}
		query.Stages = append(query.Stages, stage)
	}
	if raw := strings.TrimSpace(c.Query("severity")); raw != "" {
		query.Severity = models.Severity(strings.ToUpper(raw))
		if !query.Severity.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown severity "+raw))
			return
		}
	}
	if raw := c.Query("openOnly"); raw != "" {
		openOnly, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "openOnly must be a boolean"))
			return
		}
		query.OpenOnly = openOnly
	}
	switch sortKey := strings.ToLower(strings.TrimSpace(c.Query("sort"))); sortKey {
	case "", "updated":
	case "oldest":
		query.OldestFirst = true
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sort must be updated or oldest"))
		return
	}

	cases, pagination, degraded, err := h.cases.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetDegraded(c, degraded, middleware.SourceLocalCache)
	response.JSON(c, http.StatusOK, cases, pagination, responseMeta(c))
}

// Open godoc
// @Summary Open a case file
// @Tags Cases
// @Accept json
// @Produce json
// @Param payload body dto.OpenCaseRequest true "Case payload"
// @Success 201 {object} response.Envelope
// @Router /cases [post]
func (h *CaseHandler) Open(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.OpenCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid case payload"))
		return
	}
	created, err := h.cases.Open(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Get godoc
// @Summary Case file detail with urgency and available transitions
// @Tags Cases
// @Produce json
// @Param folio path string true "Folio"
// @Success 200 {object} response.Envelope
// @Router /cases/{folio} [get]
func (h *CaseHandler) Get(c *gin.Context) {
	detail, degraded, err := h.cases.Get(c.Request.Context(), c.Param("folio"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetDegraded(c, degraded, middleware.SourceLocalCache)
	response.JSON(c, http.StatusOK, detail, nil, responseMeta(c))
}

// Transitions godoc
// @Summary Transitions available from the case's current stage
// @Tags Cases
// @Produce json
// @Param folio path string true "Folio"
// @Success 200 {object} response.Envelope
// @Router /cases/{folio}/transitions [get]
func (h *CaseHandler) Transitions(c *gin.Context) {
	defs, err := h.cases.AvailableTransitions(c.Request.Context(), c.Param("folio"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defs, nil)
}

// ExecuteTransition godoc
// @Summary Move a case to its next stage
// @Tags Cases
// @Accept json
// @Produce json
// @Param folio path string true "Folio"
// @Param transitionId path string true "Transition ID"
// @Param payload body dto.ExecuteTransitionRequest true "Checklist acknowledgements"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /cases/{folio}/transitions/{transitionId} [post]
func (h *CaseHandler) ExecuteTransition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ExecuteTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	updated, entry, err := h.transitions.TransitionByFolio(c.Request.Context(), c.Param("folio"), c.Param("transitionId"), req.Acknowledged, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.TransitionResponse{Case: updated, Entry: entry}, nil)
}

// AmendSeverity godoc
// @Summary Reclassify an open case
// @Tags Cases
// @Accept json
// @Produce json
// @Param folio path string true "Folio"
// @Param payload body dto.AmendSeverityRequest true "Severity payload"
// @Success 200 {object} response.Envelope
// @Router /cases/{folio}/severity [patch]
func (h *CaseHandler) AmendSeverity(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AmendSeverityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid severity payload"))
		return
	}
	updated, err := h.cases.AmendSeverity(c.Request.Context(), c.Param("folio"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// CompleteMilestone godoc
// @Summary Mark a procedural milestone as completed
// @Tags Cases
// @Accept json
// @Produce json
// @Param folio path string true "Folio"
// @Param milestoneId path string true "Milestone ID"
// @Param payload body dto.CompleteMilestoneRequest false "Evidence reference"
// @Success 200 {object} response.Envelope
// @Router /cases/{folio}/milestones/{milestoneId}/complete [post]
func (h *CaseHandler) CompleteMilestone(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CompleteMilestoneRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid milestone payload"))
			return
		}
	}
	updated, err := h.cases.CompleteMilestone(c.Request.Context(), c.Param("folio"), c.Param("milestoneId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// AuditLog godoc
// @Summary Chronological audit trail of a case
// @Tags Cases
// @Produce json
// @Param folio path string true "Folio"
// @Success 200 {object} response.Envelope
// @Router /cases/{folio}/audit-log [get]
func (h *CaseHandler) AuditLog(c *gin.Context) {
	entries, err := h.cases.AuditLog(c.Request.Context(), c.Param("folio"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
