package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/repository"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/middleware/requestid"
)

type caseTransitionStore interface {
	GetByFolio(ctx context.Context, folio string) (*models.Case, error)
	ApplyTransition(ctx context.Context, caseID string, expectedVersion int, newStage models.CaseStage, entry *models.CaseAuditEntry) error
}

type complianceInvalidator interface {
	InvalidateSummary(ctx context.Context)
}

// CaseTransitionService moves cases through the disciplinary lifecycle.
type CaseTransitionService struct {
	table       *TransitionTable
	store       caseTransitionStore
	cache       *CaseCache
	invalidator complianceInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// CaseTransitionOption configures the service.
type CaseTransitionOption func(*CaseTransitionService)

// WithTransitionTable overrides the built-in lifecycle.
func WithTransitionTable(table *TransitionTable) CaseTransitionOption {
	return func(s *CaseTransitionService) {
		if table != nil {
			s.table = table
		}
	}
}

// WithTransitionCache keeps the local case cache in sync after each transition.
func WithTransitionCache(cache *CaseCache) CaseTransitionOption {
	return func(s *CaseTransitionService) {
		s.cache = cache
	}
}

// WithComplianceInvalidator drops cached compliance aggregates after each transition.
func WithComplianceInvalidator(invalidator complianceInvalidator) CaseTransitionOption {
	return func(s *CaseTransitionService) {
		s.invalidator = invalidator
	}
}

// WithTransitionMetrics records transition outcomes.
func WithTransitionMetrics(metrics *MetricsService) CaseTransitionOption {
	return func(s *CaseTransitionService) {
		s.metrics = metrics
	}
}

// WithTransitionClock overrides the clock used for log timestamps.
func WithTransitionClock(now func() time.Time) CaseTransitionOption {
	return func(s *CaseTransitionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCaseTransitionService constructs the service with the default lifecycle.
func NewCaseTransitionService(store caseTransitionStore, logger *zap.Logger, opts ...CaseTransitionOption) *CaseTransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CaseTransitionService{
		table:  MustTransitionTable(DefaultTransitions),
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ListAvailableTransitions returns the transitions offered for the case. Closed cases get none.
func (s *CaseTransitionService) ListAvailableTransitions(c *models.Case) []models.TransitionDefinition {
	return s.table.Available(c)
}

// ExecuteTransition validates the checklist and eligibility, moves c to the target
// stage and persists the change together with one critical log entry. On any
// storage failure c is left exactly as it was.
func (s *CaseTransitionService) ExecuteTransition(ctx context.Context, c *models.Case, transitionID string, acknowledged []bool, actor models.Actor) (*models.CaseAuditEntry, error) {
	if c == nil {
		return nil, appErrors.ErrCaseNotFound
	}
	def, ok := s.table.Lookup(transitionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown transition %q", transitionID))
	}

	met, checked := RequirementsMet(def, acknowledged)
	if !met {
		s.metrics.RecordTransition(c.Stage, def.To, TransitionOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrRequirementsNotMet,
			fmt.Sprintf("%d of %d requirements acknowledged for %s", len(checked), len(def.Requirements), def.Label))
	}
	if c.IsClosed() {
		s.metrics.RecordTransition(c.Stage, def.To, TransitionOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("case %s is closed (%s)", c.Folio, c.Stage))
	}
	if !def.AllowsFrom(c.Stage) {
		s.metrics.RecordTransition(c.Stage, def.To, TransitionOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("transition %s is not allowed from %s", def.ID, c.Stage))
	}

	previousStage := c.Stage
	previousVersion := c.Version
	previousUpdated := c.UpdatedAt
	previousStageChanged := c.StageChangedAt
	now := s.now()

	if def.ID == TransitionRequestReconsideration && !AppealWindowOpen(resolutionIssuedAt(c), now) {
		s.metrics.RecordTransition(c.Stage, def.To, TransitionOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("reconsideration window for %s closed on %s", c.Folio,
				ReconsiderationDeadline(resolutionIssuedAt(c)).Format("2006-01-02")))
	}

	entry, err := buildTransitionEntry(c, def, checked, actor, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build transition log entry")
	}

	c.Stage = def.To
	c.Version = previousVersion + 1
	c.UpdatedAt = now
	c.StageChangedAt = now

	if err := s.store.ApplyTransition(ctx, c.ID, previousVersion, def.To, entry); err != nil {
		c.Stage = previousStage
		c.Version = previousVersion
		c.UpdatedAt = previousUpdated
		c.StageChangedAt = previousStageChanged
		if repository.IsVersionConflict(err) {
			s.metrics.RecordTransition(previousStage, def.To, TransitionOutcomeStale)
			return nil, appErrors.Wrap(err, appErrors.ErrStaleCase.Code, appErrors.ErrStaleCase.Status, appErrors.ErrStaleCase.Message)
		}
		s.metrics.RecordTransition(previousStage, def.To, TransitionOutcomeFailed)
		s.logger.Error("persist case transition",
			zap.String("folio", c.Folio),
			zap.String("transition", def.ID),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}

	s.metrics.RecordTransition(previousStage, def.To, TransitionOutcomeApplied)
	s.logger.Info("case transition applied",
		zap.String("folio", c.Folio),
		zap.String("from", string(previousStage)),
		zap.String("to", string(def.To)),
		zap.String("actor", actor.ID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	if s.cache != nil {
		s.cache.Put(ctx, c)
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateSummary(ctx)
	}
	return entry, nil
}

// TransitionByFolio loads the case and executes the transition on it.
func (s *CaseTransitionService) TransitionByFolio(ctx context.Context, folio, transitionID string, acknowledged []bool, actor models.Actor) (*models.Case, *models.CaseAuditEntry, error) {
	c, err := s.store.GetByFolio(ctx, folio)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, appErrors.ErrCaseNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load case")
	}
	entry, err := s.ExecuteTransition(ctx, c, transitionID, acknowledged, actor)
	if err != nil {
		return nil, nil, err
	}
	return c, entry, nil
}

func buildTransitionEntry(c *models.Case, def models.TransitionDefinition, checked []string, actor models.Actor, now time.Time) (*models.CaseAuditEntry, error) {
	payload, err := json.Marshal(models.TransitionPayload{
		TransitionID: def.ID,
		Previous:     c.Stage,
		Next:         def.To,
		Checked:      checked,
	})
	if err != nil {
		return nil, err
	}
	action := models.AuditActionStageTransition
	if def.To.IsClosed() {
		action = models.AuditActionCaseClosed
	}
	return &models.CaseAuditEntry{
		CaseID:      c.ID,
		CaseFolio:   c.Folio,
		Action:      action,
		Description: fmt.Sprintf("%s: %s → %s", def.Label, c.Stage, def.To),
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Critical:    true,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}

// resolutionIssuedAt is when the case entered its current stage, the resolution
// date for a case awaiting reconsideration. Rows without a stage timestamp fall
// back to the last update.
func resolutionIssuedAt(c *models.Case) time.Time {
	if !c.StageChangedAt.IsZero() {
		return c.StageChangedAt
	}
	return c.UpdatedAt
}
