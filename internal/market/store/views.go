package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	id "reyu/pkg/domain"
)

// ViewMemory counts listing views with one atomic counter per listing.
type ViewMemory struct {
	counters sync.Map
}

func NewViewMemory() *ViewMemory {
	return &ViewMemory{}
}

func (v *ViewMemory) Incr(_ context.Context, listingID id.ListingID) (int64, error) {
	c, _ := v.counters.LoadOrStore(listingID, new(atomic.Int64))
	return c.(*atomic.Int64).Add(1), nil
}

func (v *ViewMemory) Count(_ context.Context, listingID id.ListingID) (int64, error) {
	c, ok := v.counters.Load(listingID)
	if !ok {
		return 0, nil
	}
	return c.(*atomic.Int64).Load(), nil
}

const viewKeyPrefix = "reyu:listing:views:"

// ViewRedis keeps view counters in Redis so every replica sees the same
// monotonic count.
type ViewRedis struct {
	client *redis.Client
}

func NewViewRedis(client *redis.Client) *ViewRedis {
	return &ViewRedis{client: client}
}

func (v *ViewRedis) Incr(ctx context.Context, listingID id.ListingID) (int64, error) {
	n, err := v.client.Incr(ctx, viewKeyPrefix+listingID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("incr views: %w", err)
	}
	return n, nil
}

func (v *ViewRedis) Count(ctx context.Context, listingID id.ListingID) (int64, error) {
	n, err := v.client.Get(ctx, viewKeyPrefix+listingID.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get views: %w", err)
	}
	return n, nil
}
