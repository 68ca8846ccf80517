package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reyu/internal/ratelimit/models"
)

const keyPrefix = "reyu:ratelimit:"

// FixedWindow counts requests per key in Redis buckets of policy.Window.
// Coarser than SlidingWindow but shared across instances.
type FixedWindow struct {
	client *redis.Client
	now    func() time.Time
}

func NewFixedWindow(client *redis.Client) *FixedWindow {
	return &FixedWindow{client: client, now: time.Now}
}

func (s *FixedWindow) Allow(ctx context.Context, key string, policy models.Policy) (models.Result, error) {
	now := s.now()
	bucket := now.Truncate(policy.Window)
	resetAt := bucket.Add(policy.Window)
	redisKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, bucket.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Result{}, fmt.Errorf("rate limit incr: %w", err)
	}

	count := int(incr.Val())
	if count > policy.Limit {
		return models.Result{Allowed: false, Limit: policy.Limit, ResetAt: resetAt}, nil
	}
	return models.Result{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - count,
		ResetAt:   resetAt,
	}, nil
}
