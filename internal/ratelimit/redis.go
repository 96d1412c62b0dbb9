package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is a Limiter shared across instances. The first INCR of a key sets
// its expiry, so the window starts at the first attempt like Memory.
type Redis struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	logger logrus.FieldLogger
}

// NewRedis creates a Redis-backed limiter. Non-positive values use the defaults.
func NewRedis(client redis.UniversalClient, limit int, window time.Duration, prefix string, logger logrus.FieldLogger) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		logger: logger,
	}
}

// Allow fails open when Redis is unreachable; the error is logged.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	redisKey := r.prefix + ":" + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
		return true
	}

	return incr.Val() <= int64(r.limit)
}
