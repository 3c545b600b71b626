package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/dto"
	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

type caseStore interface {
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error)
	Count(ctx context.Context, filter models.CaseFilter) (int, error)
	GetByFolio(ctx context.Context, folio string) (*models.Case, error)
	NextFolioSequence(ctx context.Context) (int64, error)
	Create(ctx context.Context, c *models.Case, entry *models.CaseAuditEntry) error
	UpdateSeverity(ctx context.Context, caseID string, expectedVersion int, severity models.Severity, deadline time.Time, milestones models.Milestones, entry *models.CaseAuditEntry) error
	UpdateMilestones(ctx context.Context, caseID string, expectedVersion int, milestones models.Milestones, entry *models.CaseAuditEntry) error
}

type caseAuditReader interface {
	ListByCase(ctx context.Context, caseID string) ([]models.CaseAuditEntry, error)
}

// CaseServiceConfig tunes case listing and folio generation.
type CaseServiceConfig struct {
	FolioPrefix     string
	PageSize        int
	FallbackEnabled bool
}

// CaseService handles intake, lookup and amendments of case files.
type CaseService struct {
	repo        caseStore
	audit       caseAuditReader
	table       *TransitionTable
	cache       *CaseCache
	invalidator complianceInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CaseServiceConfig
	now         func() time.Time
}

// NewCaseService constructs the case service. cache and invalidator may be nil.
func NewCaseService(repo caseStore, audit caseAuditReader, table *TransitionTable, cache *CaseCache, invalidator complianceInvalidator, validate *validator.Validate, logger *zap.Logger, cfg CaseServiceConfig) *CaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table = MustTransitionTable(DefaultTransitions)
	}
	if strings.TrimSpace(cfg.FolioPrefix) == "" {
		cfg.FolioPrefix = "EXP"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > repository.MaxCaseListSize {
		cfg.PageSize = repository.MaxCaseListSize
	}
	svc := &CaseService{
		repo:        repo,
		audit:       audit,
		table:       table,
		cache:       cache,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return normalizeSeverity(fl.Field().String()).Valid()
	})
	return svc
}

func normalizeSeverity(raw string) models.Severity {
	return models.Severity(strings.ToUpper(strings.TrimSpace(raw)))
}

// Open registers a new case with its legal deadline and milestone template.
func (s *CaseService) Open(ctx context.Context, req dto.OpenCaseRequest, actor models.Actor) (*models.Case, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid case payload")
	}
	now := s.now()
	openedAt := now
	if req.OpenedAt != nil && !req.OpenedAt.IsZero() {
		if req.OpenedAt.After(now.Add(time.Minute)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "openedAt cannot be in the future")
		}
		openedAt = *req.OpenedAt
	}
	severity := normalizeSeverity(req.Severity)

	seq, err := s.repo.NextFolioSequence(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to allocate folio")
	}

	c := &models.Case{
		Folio:              fmt.Sprintf("%s-%d-%06d", s.cfg.FolioPrefix, openedAt.Year(), seq),
		StudentID:          req.StudentID,
		StudentName:        strings.TrimSpace(req.StudentName),
		StudentCourse:      strings.TrimSpace(req.StudentCourse),
		Description:        strings.TrimSpace(req.Description),
		Stage:              models.StageOpened,
		Severity:           severity,
		OpenedAt:           openedAt,
		FatalDeadline:      ComputeLegalDeadline(openedAt, severity),
		PriorActionsOnFile: req.PriorActionsOnFile,
		Milestones:         BuildMilestones(severity),
		Version:            1,
		CreatedBy:          actor.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"severity":      severity,
		"fatalDeadline": c.FatalDeadline,
	})
	entry := &models.CaseAuditEntry{
		Action:      models.AuditActionCaseCreated,
		Description: fmt.Sprintf("Expediente %s abierto con gravedad %s", c.Folio, severity),
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Critical:    true,
		Payload:     payload,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, c, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create case")
	}
	s.logger.Info("case opened", zap.String("folio", c.Folio), zap.String("severity", string(severity)), zap.String("actor", actor.ID))
	s.afterMutation(ctx, c)
	return c, nil
}

// List returns a page of cases. When storage fails and the fallback is enabled
// the local cache answers instead and degraded is true.
func (s *CaseService) List(ctx context.Context, query dto.CaseListQuery) ([]models.Case, *models.Pagination, bool, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > s.cfg.PageSize {
		size = s.cfg.PageSize
	}
	filter := models.CaseFilter{
		Stages:     query.Stages,
		Severity:   query.Severity,
		Search:     query.Search,
		OpenOnly:   query.OpenOnly,
		OrderByAge: query.OldestFirst,
		Limit:      size,
		Offset:     (page - 1) * size,
	}

	cases, err := s.repo.List(ctx, filter)
	if err == nil {
		total, countErr := s.repo.Count(ctx, filter)
		if countErr != nil {
			s.logger.Warn("count cases", zap.Error(countErr))
			total = filter.Offset + len(cases)
		}
		return cases, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, false, nil
	}
	if !s.fallbackReady() {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list cases")
	}

	s.logger.Warn("case list served from local cache", zap.Error(err))
	matched := filterCases(s.cache.Snapshot(), filter)
	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: total}, true, nil
}

func filterCases(cases []models.Case, filter models.CaseFilter) []models.Case {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.Case, 0, len(cases))
	for _, c := range cases {
		if len(filter.Stages) > 0 && !containsStage(filter.Stages, c.Stage) {
			continue
		}
		if filter.Severity != "" && c.Severity != filter.Severity {
			continue
		}
		if filter.OpenOnly && c.IsClosed() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Folio), search) && !strings.Contains(strings.ToLower(c.StudentName), search) {
			continue
		}
		out = append(out, c)
	}
	if filter.OrderByAge {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		})
	}
	return out
}

func containsStage(stages []models.CaseStage, stage models.CaseStage) bool {
	for _, candidate := range stages {
		if candidate == stage {
			return true
		}
	}
	return false
}

// Get returns a case with its urgency, compliance snapshot and available transitions.
func (s *CaseService) Get(ctx context.Context, folio string) (*dto.CaseDetail, bool, error) {
	c, degraded, err := s.load(ctx, folio)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	days := DaysRemaining(c.FatalDeadline, now)
	return &dto.CaseDetail{
		Case:                 c,
		DaysRemaining:        days,
		Urgency:              ClassifyUrgency(days),
		AvailableTransitions: s.table.Available(c),
		Compliance:           EvaluateCompliance(*c, now),
	}, degraded, nil
}

// AvailableTransitions lists the transitions offered for the case in its current stage.
func (s *CaseService) AvailableTransitions(ctx context.Context, folio string) ([]models.TransitionDefinition, error) {
	c, _, err := s.load(ctx, folio)
	if err != nil {
		return nil, err
	}
	return s.table.Available(c), nil
}

// AmendSeverity reclassifies an open case and recalculates its fatal deadline from
// the original opening date.
func (s *CaseService) AmendSeverity(ctx context.Context, folio string, req dto.AmendSeverityRequest, actor models.Actor) (*models.Case, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid severity payload")
	}
	c, err := s.loadForUpdate(ctx, folio)
	if err != nil {
		return nil, err
	}
	if c.IsClosed() {
		return nil, appErrors.Clone(appErrors.ErrCaseClosed, "severity cannot be amended on a closed case")
	}
	next := normalizeSeverity(req.Severity)
	if next == c.Severity {
		return c, nil
	}

	milestones := c.Milestones.Clone()
	if next.IsExpulsion() {
		milestones, _ = ensureCouncilMilestone(milestones)
	} else {
		milestones, _ = dropCouncilMilestone(milestones)
	}
	deadline := ComputeLegalDeadline(c.OpenedAt, next)
	now := s.now()
	payload, _ := json.Marshal(map[string]interface{}{
		"previousSeverity": c.Severity,
		"nextSeverity":     next,
		"previousDeadline": c.FatalDeadline,
		"fatalDeadline":    deadline,
		"reason":           req.Reason,
	})
	entry := &models.CaseAuditEntry{
		CaseID:      c.ID,
		CaseFolio:   c.Folio,
		Action:      models.AuditActionSeverityAmended,
		Description: fmt.Sprintf("Gravedad modificada: %s → %s. %s", c.Severity, next, strings.TrimSpace(req.Reason)),
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Critical:    true,
		Payload:     payload,
		CreatedAt:   now,
	}
	if err := s.repo.UpdateSeverity(ctx, c.ID, c.Version, next, deadline, milestones, entry); err != nil {
		return nil, s.translate(err, "failed to amend severity")
	}
	c.Severity = next
	c.FatalDeadline = deadline
	c.Milestones = milestones
	c.Version++
	c.UpdatedAt = now
	s.afterMutation(ctx, c)
	return c, nil
}

// CompleteMilestone marks a procedural step as done. Steps requiring evidence need
// a reference to the stored document.
func (s *CaseService) CompleteMilestone(ctx context.Context, folio, milestoneID string, req dto.CompleteMilestoneRequest, actor models.Actor) (*models.Case, error) {
	c, err := s.loadForUpdate(ctx, folio)
	if err != nil {
		return nil, err
	}
	if c.IsClosed() {
		return nil, appErrors.Clone(appErrors.ErrCaseClosed, "milestones cannot change on a closed case")
	}
	idx := c.Milestones.Find(milestoneID)
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "milestone not found")
	}
	milestones := c.Milestones.Clone()
	milestone := &milestones[idx]
	if milestone.Completed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "milestone already completed")
	}
	evidence := strings.TrimSpace(req.EvidenceRef)
	if milestone.RequiresEvidence && evidence == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidenceRef is required for this milestone")
	}

	now := s.now()
	completedAt := now
	if req.CompletedAt != nil && !req.CompletedAt.IsZero() && !req.CompletedAt.After(now) {
		completedAt = *req.CompletedAt
	}
	milestone.Completed = true
	milestone.CompletedAt = &completedAt
	milestone.EvidenceRef = evidence

	payload, _ := json.Marshal(map[string]interface{}{
		"milestoneId": milestone.ID,
		"evidenceRef": evidence,
		"completedAt": completedAt,
	})
	entry := &models.CaseAuditEntry{
		CaseID:      c.ID,
		CaseFolio:   c.Folio,
		Action:      models.AuditActionMilestoneCompleted,
		Description: fmt.Sprintf("Hito completado: %s", milestone.Title),
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Critical:    milestone.MandatoryForExpulsion,
		Payload:     payload,
		CreatedAt:   now,
	}
	if err := s.repo.UpdateMilestones(ctx, c.ID, c.Version, milestones, entry); err != nil {
		return nil, s.translate(err, "failed to complete milestone")
	}
	c.Milestones = milestones
	c.Version++
	c.UpdatedAt = now
	s.afterMutation(ctx, c)
	return c, nil
}

// AuditLog returns the case history in chronological order.
func (s *CaseService) AuditLog(ctx context.Context, folio string) ([]models.CaseAuditEntry, error) {
	c, err := s.loadForUpdate(ctx, folio)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load audit log")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// load reads a case, falling back to the local cache when storage is unreachable.
func (s *CaseService) load(ctx context.Context, folio string) (*models.Case, bool, error) {
	c, err := s.repo.GetByFolio(ctx, folio)
	if err == nil {
		return c, false, nil
	}
	if repository.IsNotFound(err) {
		return nil, false, appErrors.ErrCaseNotFound
	}
	if s.fallbackReady() {
		if cached, ok := s.cache.Get(folio); ok {
			s.logger.Warn("case served from local cache", zap.String("folio", folio), zap.Error(err))
			return cached, true, nil
		}
	}
	return nil, false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load case")
}

// loadForUpdate never falls back: mutations need the authoritative version.
func (s *CaseService) loadForUpdate(ctx context.Context, folio string) (*models.Case, error) {
	c, err := s.repo.GetByFolio(ctx, folio)
	if err != nil {
		return nil, s.translate(err, "failed to load case")
	}
	return c, nil
}

func (s *CaseService) translate(err error, message string) error {
	switch {
	case repository.IsNotFound(err):
		return appErrors.ErrCaseNotFound
	case repository.IsVersionConflict(err):
		return appErrors.Wrap(err, appErrors.ErrStaleCase.Code, appErrors.ErrStaleCase.Status, appErrors.ErrStaleCase.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
	}
}

func (s *CaseService) fallbackReady() bool {
	return s.cfg.FallbackEnabled && s.cache != nil && s.cache.Loaded()
}

func (s *CaseService) afterMutation(ctx context.Context, c *models.Case) {
	if s.cache != nil {
		s.cache.Put(ctx, c)
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateSummary(ctx)
	}
}
