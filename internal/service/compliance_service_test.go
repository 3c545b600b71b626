package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

func completeMilestones(m models.Milestones) models.Milestones {
	out := m.Clone()
	for i := range out {
		out[i].Completed = true
	}
	return out
}

func TestEvaluateComplianceAllChecksPass(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := *caseInStage("EXP-1", models.StageClosedSanction, models.SeverityRelevant)
	c.Milestones = completeMilestones(c.Milestones)

	result := EvaluateCompliance(c, now)

	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, models.ComplianceReady, result.Status)
	assert.Equal(t, 6, result.Checks.Passed())
}

func TestEvaluateComplianceExpulsionWithoutPriorActionsIsRisk(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := *caseInStage("EXP-2", models.StageClosedSanction, models.SeveritySevereExpulsion)
	c.Milestones = completeMilestones(c.Milestones)
	c.PriorActionsOnFile = false

	result := EvaluateCompliance(c, now)

	assert.False(t, result.Checks.GradationVerified)
	assert.InDelta(t, 5.0/6.0, result.Score, 1e-9)
	assert.Equal(t, models.ComplianceRisk, result.Status)

	c.PriorActionsOnFile = true
	assert.Equal(t, models.ComplianceReady, EvaluateCompliance(c, now).Status)
}

func TestEvaluateComplianceStageChecks(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	opened := EvaluateCompliance(*caseInStage("EXP-3", models.StageOpened, models.SeverityRelevant), now)
	assert.False(t, opened.Checks.Notified)
	assert.False(t, opened.Checks.RebuttalHandled)
	assert.False(t, opened.Checks.EvidenceComplete)
	assert.False(t, opened.Checks.ResolutionIssued)
	assert.False(t, opened.Checks.ReconsiderationHandled)
	assert.True(t, opened.Checks.GradationVerified)
	assert.InDelta(t, 1.0/6.0, opened.Score, 1e-9)
	assert.Equal(t, models.ComplianceIncomplete, opened.Status)

	pending := EvaluateCompliance(*caseInStage("EXP-4", models.StageResolutionPending, models.SeverityRelevant), now)
	assert.True(t, pending.Checks.Notified)
	assert.True(t, pending.Checks.RebuttalHandled)
	assert.True(t, pending.Checks.ResolutionIssued)
	assert.False(t, pending.Checks.ReconsiderationHandled)

	reconsideration := EvaluateCompliance(*caseInStage("EXP-5", models.StageReconsideration, models.SeverityRelevant), now)
	assert.True(t, reconsideration.Checks.ReconsiderationHandled)

	noMilestones := *caseInStage("EXP-6", models.StageOpened, models.SeverityLow)
	noMilestones.Milestones = models.Milestones{}
	assert.True(t, EvaluateCompliance(noMilestones, now).Checks.EvidenceComplete)
}

func TestEvaluateComplianceScoreBounds(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	for _, stage := range models.AllStages {
		for _, severity := range []models.Severity{models.SeverityLow, models.SeverityRelevant, models.SeveritySevereExpulsion} {
			result := EvaluateCompliance(*caseInStage("EXP", stage, severity), now)
			assert.GreaterOrEqual(t, result.Score, 0.0)
			assert.LessOrEqual(t, result.Score, 1.0)
		}
	}
}

func TestSummarizeComplianceEmptySet(t *testing.T) {
	summary := SummarizeCompliance(nil, time.Now(), 0)
	assert.Equal(t, models.ComplianceSummary{}, summary)
}

func TestSummarizeComplianceAggregates(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	ready := *caseInStage("EXP-1", models.StageClosedSanction, models.SeverityRelevant)
	ready.Milestones = completeMilestones(ready.Milestones)

	risky := *caseInStage("EXP-2", models.StageNotified, models.SeveritySevereExpulsion)
	risky.FatalDeadline = now.Add(30 * time.Hour)

	closedSoon := *caseInStage("EXP-3", models.StageClosedMediation, models.SeverityLow)
	closedSoon.FatalDeadline = now.Add(10 * time.Hour)

	overdue := *caseInStage("EXP-4", models.StageInvestigation, models.SeverityRelevant)
	overdue.FatalDeadline = now.Add(-time.Hour)

	cases := []models.Case{ready, risky, closedSoon, overdue}
	summary := SummarizeCompliance(cases, now, 48*time.Hour)

	var total float64
	for _, c := range cases {
		total += EvaluateCompliance(c, now).Score
	}
	assert.Equal(t, 4, summary.TotalCases)
	assert.Equal(t, int(total/4*100+0.5), summary.GlobalHealth)
	assert.Equal(t, 1, summary.NullityAlerts)
	assert.Equal(t, 1, summary.CriticalDeadlines)
}

func TestSummarizeComplianceCriticalWindowIsOpenInterval(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	window := 48 * time.Hour

	cases := []struct {
		name     string
		deadline time.Time
		critical int
	}{
		{"due now", now, 0},
		{"due at horizon", now.Add(window), 0},
		{"just inside start", now.Add(time.Nanosecond), 1},
		{"just inside horizon", now.Add(window - time.Nanosecond), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := *caseInStage("EXP-1", models.StageInvestigation, models.SeverityRelevant)
			c.FatalDeadline = tc.deadline

			summary := SummarizeCompliance([]models.Case{c}, now, window)
			assert.Equal(t, tc.critical, summary.CriticalDeadlines)
		})
	}
}

func TestFilterCompliance(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	risky := EvaluateCompliance(*caseInStage("EXP-1", models.StageNotified, models.SeveritySevereExpulsion), now)
	lowHealth := EvaluateCompliance(*caseInStage("EXP-2", models.StageResolutionPending, models.SeverityRelevant), now)
	healthyPending := *caseInStage("EXP-3", models.StageResolutionPending, models.SeverityRelevant)
	healthyPending.Milestones = completeMilestones(healthyPending.Milestones)
	healthy := EvaluateCompliance(healthyPending, now)

	results := []models.ComplianceResult{risky, lowHealth, healthy}

	nullity := FilterCompliance(results, models.ComplianceFilterNullityRisk)
	require.Len(t, nullity, 1)
	assert.Equal(t, "EXP-1", nullity[0].Folio)

	low := FilterCompliance(results, models.ComplianceFilterLowHealth)
	require.Len(t, low, 1)
	assert.Equal(t, "EXP-2", low[0].Folio)

	assert.Len(t, FilterCompliance(results, models.ComplianceFilterAll), 3)
}

type memoryCacheRepo struct {
	values      map[string]interface{}
	invalidated []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: make(map[string]interface{})}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	value, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if summary, ok := value.(models.ComplianceSummary); ok {
		*(dest.(*models.ComplianceSummary)) = summary
	}
	return nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	m.values = make(map[string]interface{})
	return nil
}

func TestComplianceServiceSummaryIsCachedAndInvalidated(t *testing.T) {
	store := newCaseStoreStub(caseInStage("EXP-1", models.StageNotified, models.SeveritySevereExpulsion))
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := NewComplianceService(store, nil,
		WithComplianceCache(cache, time.Minute),
		WithComplianceClock(func() time.Time { return time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC) }),
	)

	first, hit, degraded, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, degraded)
	assert.Equal(t, 1, first.NullityAlerts)

	second, hit, _, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, *first, *second)

	svc.InvalidateSummary(context.Background())
	assert.Equal(t, []string{"compliance:*"}, repo.invalidated)
	_, hit, _, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestComplianceServiceFallsBackToLocalCache(t *testing.T) {
	store := newCaseStoreStub()
	store.listErr = errors.New("db down")
	local := NewCaseCache(nil, "", nil)
	local.Load(context.Background(), store)

	svc := NewComplianceService(store, nil, WithComplianceFallback(local))
	results, degraded, err := svc.AuditCases(context.Background(), models.ComplianceFilterAll)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Len(t, results, 2)

	nullity, _, err := svc.AuditCases(context.Background(), models.ComplianceFilterNullityRisk)
	require.NoError(t, err)
	require.Len(t, nullity, 1)
	assert.Equal(t, "EXP-DEMO-0002", nullity[0].Folio)
}

func TestComplianceServiceDegradedSummaryIsFlaggedNotPublished(t *testing.T) {
	store := newCaseStoreStub()
	store.listErr = errors.New("db down")
	local := NewCaseCache(nil, "", nil)
	local.Load(context.Background(), store)
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewComplianceService(store, nil,
		WithComplianceFallback(local),
		WithComplianceCache(NewCacheService(repo, nil, time.Minute, nil, true), time.Minute),
		WithComplianceMetrics(metrics),
	)

	summary, hit, degraded, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, degraded)
	assert.Equal(t, 2, summary.TotalCases)
	assert.Empty(t, repo.values)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "compliance_global_health 0\n")
	assert.Contains(t, rec.Body.String(), "compliance_nullity_alerts 0\n")
}

func TestComplianceServiceWithoutFallbackReportsPersistenceError(t *testing.T) {
	store := newCaseStoreStub()
	store.listErr = errors.New("db down")
	svc := NewComplianceService(store, nil)

	_, _, _, err := svc.Summary(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPersistence))
}
