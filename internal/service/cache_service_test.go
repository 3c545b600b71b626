package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/internal/models"
)

type flakyCacheRepo struct {
	*memoryCacheRepo
	err   error
	calls int
}

func (f *flakyCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.memoryCacheRepo.Get(ctx, key, dest)
}

func TestCacheServiceDisabledIsPermanentMiss(t *testing.T) {
	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", &models.ComplianceSummary{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, nilSvc.Set(context.Background(), "k", 1, 0))

	svc := NewCacheService(newMemoryCacheRepo(), nil, 0, nil, false)
	assert.False(t, svc.Available())
	assert.NoError(t, svc.Invalidate(context.Background(), "compliance:*"))
}

func TestCacheServiceCoolsDownAfterBackendFailure(t *testing.T) {
	repo := &flakyCacheRepo{memoryCacheRepo: newMemoryCacheRepo(), err: errors.New("connection refused")}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Get(context.Background(), complianceSummaryKey, &models.ComplianceSummary{})
	require.Error(t, err)
	assert.False(t, svc.Available())

	hit, err := svc.Get(context.Background(), complianceSummaryKey, &models.ComplianceSummary{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, repo.calls)

	repo.err = nil
	now = now.Add(defaultCacheCooldown)
	assert.True(t, svc.Available())
	require.NoError(t, svc.Set(context.Background(), complianceSummaryKey, models.ComplianceSummary{TotalCases: 3}, 0))

	var summary models.ComplianceSummary
	hit, err = svc.Get(context.Background(), complianceSummaryKey, &summary)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, summary.TotalCases)
}
