package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

const unlinkBatchSize = 100

// CacheRepository stores JSON payloads in Redis: the compliance summary and
// the mirrored case list. A nil client turns every read into a miss and every
// write into a no-op.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return appErrors.ErrCacheMiss
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL. A zero TTL
// keeps the key until it is overwritten, which the case mirror relies on.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// DeleteByPattern unlinks every key matching pattern in batches.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	batch := make([]string, 0, unlinkBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis unlink %s: %w", pattern, err)
		}
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, unlinkBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}

	return flush()
}
