package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

const (
	complianceSummaryKey     = "compliance:summary"
	complianceCachePattern   = "compliance:*"
	incompleteScoreThreshold = 0.6
	lowHealthScoreThreshold  = 0.8
	defaultCriticalWindow    = 48 * time.Hour
)

var stageRank = func() map[models.CaseStage]int {
	ranks := make(map[models.CaseStage]int, len(models.AllStages))
	for i, stage := range models.AllStages {
		ranks[stage] = i
	}
	return ranks
}()

func stagePast(stage, reference models.CaseStage) bool {
	return stageRank[stage] > stageRank[reference]
}

// EvaluateCompliance scores one case against the procedural checks.
func EvaluateCompliance(c models.Case, now time.Time) models.ComplianceResult {
	closed := c.Stage.IsClosed()
	checks := models.ComplianceChecks{
		Notified:               stagePast(c.Stage, models.StageOpened),
		RebuttalHandled:        stagePast(c.Stage, models.StageNotified),
		EvidenceComplete:       evidenceComplete(c.Milestones),
		ResolutionIssued:       c.Stage == models.StageResolutionPending || closed,
		ReconsiderationHandled: c.Stage == models.StageReconsideration || closed,
		GradationVerified:      !(c.Severity.IsExpulsion() && !c.PriorActionsOnFile),
	}
	score := float64(checks.Passed()) / float64(models.ComplianceCheckCount)

	status := models.ComplianceReady
	switch {
	case !checks.GradationVerified && c.Severity.IsExpulsion():
		status = models.ComplianceRisk
	case score < incompleteScoreThreshold:
		status = models.ComplianceIncomplete
	}

	days := DaysRemaining(c.FatalDeadline, now)
	return models.ComplianceResult{
		Folio:         c.Folio,
		StudentName:   c.StudentName,
		Stage:         c.Stage,
		Severity:      c.Severity,
		Checks:        checks,
		Score:         score,
		Status:        status,
		DaysRemaining: days,
		Urgency:       ClassifyUrgency(days),
	}
}

func evidenceComplete(milestones models.Milestones) bool {
	for _, m := range milestones {
		if m.RequiresEvidence && !m.Completed {
			return false
		}
	}
	return true
}

// SummarizeCompliance aggregates KPIs over a case set. window bounds the
// critical-deadline count and defaults to 48 hours.
func SummarizeCompliance(cases []models.Case, now time.Time, window time.Duration) models.ComplianceSummary {
	if window <= 0 {
		window = defaultCriticalWindow
	}
	summary := models.ComplianceSummary{TotalCases: len(cases)}
	if len(cases) == 0 {
		return summary
	}
	horizon := now.Add(window)
	var total float64
	for _, c := range cases {
		total += EvaluateCompliance(c, now).Score
		if c.Severity.IsExpulsion() && !c.PriorActionsOnFile {
			summary.NullityAlerts++
		}
		if !c.Stage.IsClosed() && c.FatalDeadline.After(now) && c.FatalDeadline.Before(horizon) {
			summary.CriticalDeadlines++
		}
	}
	summary.GlobalHealth = int(math.Round(total / float64(len(cases)) * 100))
	return summary
}

// FilterCompliance narrows results to a consumer view.
func FilterCompliance(results []models.ComplianceResult, filter models.ComplianceFilter) []models.ComplianceResult {
	out := make([]models.ComplianceResult, 0, len(results))
	for _, result := range results {
		switch filter {
		case models.ComplianceFilterNullityRisk:
			if result.Severity.IsExpulsion() && !result.Checks.GradationVerified {
				out = append(out, result)
			}
		case models.ComplianceFilterLowHealth:
			if result.Stage == models.StageResolutionPending && result.Score < lowHealthScoreThreshold {
				out = append(out, result)
			}
		default:
			out = append(out, result)
		}
	}
	return out
}

type complianceCaseSource interface {
	List(ctx context.Context, filter models.CaseFilter) ([]models.Case, error)
}

// ComplianceService audits the case set and serves cached aggregates.
type ComplianceService struct {
	cases          complianceCaseSource
	fallback       *CaseCache
	cache          *CacheService
	metrics        *MetricsService
	logger         *zap.Logger
	ttl            time.Duration
	criticalWindow time.Duration
	now            func() time.Time
}

// ComplianceServiceOption configures the service.
type ComplianceServiceOption func(*ComplianceService)

// WithComplianceCache caches summaries in Redis for ttl.
func WithComplianceCache(cache *CacheService, ttl time.Duration) ComplianceServiceOption {
	return func(s *ComplianceService) {
		s.cache = cache
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithComplianceFallback serves audits from the local case cache when storage fails.
func WithComplianceFallback(cache *CaseCache) ComplianceServiceOption {
	return func(s *ComplianceService) {
		s.fallback = cache
	}
}

// WithComplianceMetrics publishes summary gauges.
func WithComplianceMetrics(metrics *MetricsService) ComplianceServiceOption {
	return func(s *ComplianceService) {
		s.metrics = metrics
	}
}

// WithCriticalWindow overrides the critical-deadline horizon.
func WithCriticalWindow(window time.Duration) ComplianceServiceOption {
	return func(s *ComplianceService) {
		if window > 0 {
			s.criticalWindow = window
		}
	}
}

// WithComplianceClock overrides the clock.
func WithComplianceClock(now func() time.Time) ComplianceServiceOption {
	return func(s *ComplianceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewComplianceService constructs the auditor.
func NewComplianceService(cases complianceCaseSource, logger *zap.Logger, opts ...ComplianceServiceOption) *ComplianceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ComplianceService{
		cases:          cases,
		logger:         logger,
		ttl:            5 * time.Minute,
		criticalWindow: defaultCriticalWindow,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// AuditCases evaluates every known case and applies filter. Results are ordered
// by days remaining, most urgent first.
func (s *ComplianceService) AuditCases(ctx context.Context, filter models.ComplianceFilter) ([]models.ComplianceResult, bool, error) {
	cases, degraded, err := s.loadCases(ctx)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	results := make([]models.ComplianceResult, 0, len(cases))
	for _, c := range cases {
		results = append(results, EvaluateCompliance(c, now))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DaysRemaining < results[j].DaysRemaining
	})
	return FilterCompliance(results, filter), degraded, nil
}

// Summary returns the aggregate KPIs, served from Redis when fresh. degraded
// reports that the figures come from the local case cache; such summaries are
// neither cached nor published as gauges.
func (s *ComplianceService) Summary(ctx context.Context) (summary *models.ComplianceSummary, cached, degraded bool, err error) {
	var hit models.ComplianceSummary
	if ok, getErr := s.cache.Get(ctx, complianceSummaryKey, &hit); getErr == nil && ok {
		return &hit, true, false, nil
	}

	cases, degraded, err := s.loadCases(ctx)
	if err != nil {
		return nil, false, false, err
	}
	computed := SummarizeCompliance(cases, s.now(), s.criticalWindow)
	if !degraded {
		s.metrics.SetComplianceSummary(computed)
		_ = s.cache.Set(ctx, complianceSummaryKey, computed, s.ttl)
	}
	return &computed, false, degraded, nil
}

// InvalidateSummary drops cached aggregates after a case mutation.
func (s *ComplianceService) InvalidateSummary(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, complianceCachePattern); err != nil {
		s.logger.Warn("invalidate compliance cache", zap.Error(err))
	}
}

// loadCases reads the case set, falling back to the local cache when storage fails.
func (s *ComplianceService) loadCases(ctx context.Context) ([]models.Case, bool, error) {
	cases, err := s.cases.List(ctx, models.CaseFilter{Limit: 200})
	if err == nil {
		return cases, false, nil
	}
	if s.fallback != nil && s.fallback.Loaded() {
		s.logger.Warn("compliance audit served from local case cache", zap.Error(err))
		return s.fallback.Snapshot(), true, nil
	}
	return nil, false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load cases for audit")
}
