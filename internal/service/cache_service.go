package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

const defaultCacheCooldown = 30 * time.Second

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts Redis for the compliance aggregates. A nil or disabled
// service behaves as a permanent miss so callers never branch on it. After a
// backend failure the cache is bypassed for a cooldown period and requests go
// straight to storage.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	cooldown    time.Duration
	pausedUntil atomic.Int64
	now         func() time.Time
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:       repo,
		metrics:    metrics,
		defaultTTL: defaultTTL,
		logger:     logger,
		enabled:    enabled,
		cooldown:   defaultCacheCooldown,
		now:        time.Now,
	}
}

// Enabled indicates whether caching is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Available reports whether the cache is enabled and not cooling down after a failure.
func (s *CacheService) Available() bool {
	return s.Enabled() && s.now().UnixNano() >= s.pausedUntil.Load()
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	hit := err == nil
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, time.Since(start))
	}
	switch {
	case hit, errors.Is(err, appErrors.ErrCacheMiss):
		return hit, nil
	default:
		s.pause("get", key, err)
		return false, err
	}
}

// Set stores the value in cache; ttl <= 0 uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		s.pause("set", key, err)
	}
	return err
}

// Invalidate removes cached values matching pattern. Invalidation is attempted
// even while cooling down so stale aggregates do not outlive a recovery.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.pause("invalidate", pattern, err)
		return err
	}
	return nil
}

func (s *CacheService) pause(op, key string, err error) {
	until := s.now().Add(s.cooldown)
	s.pausedUntil.Store(until.UnixNano())
	s.logger.Warn("cache backend failed; bypassing cache",
		zap.String("op", op),
		zap.String("key", key),
		zap.Duration("cooldown", s.cooldown),
		zap.Error(err),
	)
}
