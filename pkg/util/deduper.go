package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper hands out one-shot Redis locks so the same unit of work is only
// started once across concurrent requests and processes.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

// AcquireOnce returns true the first time handler+key is seen within the TTL.
// Redis failures allow the work through.
func (d *Deduper) AcquireOnce(ctx context.Context, handler, key string) bool {
	lockKey := fmt.Sprintf("dedup:%s:%s", handler, key)

	ok, err := d.rdb.SetNX(ctx, lockKey, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Debug("Skipped in-flight duplicate",
			zap.String("handler", handler),
			zap.String("dedup_key", lockKey),
		)
	}
	return ok
}

// Release drops a lock taken by AcquireOnce.
func (d *Deduper) Release(ctx context.Context, handler, key string) {
	lockKey := fmt.Sprintf("dedup:%s:%s", handler, key)
	if err := d.rdb.Del(ctx, lockKey).Err(); err != nil {
		d.logger.Warn("Redis dedup release failed", zap.String("dedup_key", lockKey), zap.Error(err))
	}
}
