package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"reyu/internal/identity/models"
	id "reyu/pkg/domain"
)

// Backend is the store the cache reads through to.
type Backend interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	Update(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error)
}

type cacheEntry struct {
	user      models.User
	expiresAt time.Time
}

// Cached is a read-through LRU in front of a Backend. Entries expire after ttl
// and are dropped on every write, so a KYC or status change is visible on the
// next eligibility check.
type Cached struct {
	backend Backend
	cache   *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

func NewCached(backend Backend, size int, ttl time.Duration) (*Cached, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cached{backend: backend, cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *Cached) Create(ctx context.Context, user *models.User) error {
	c.cache.Remove(user.ID)
	return c.backend.Create(ctx, user)
}

func (c *Cached) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	if v, ok := c.cache.Get(userID); ok {
		entry := v.(cacheEntry)
		if c.now().Before(entry.expiresAt) {
			u := entry.user
			return &u, nil
		}
		c.cache.Remove(userID)
	}

	user, err := c.backend.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, cacheEntry{user: *user, expiresAt: c.now().Add(c.ttl)})
	return user, nil
}

func (c *Cached) Update(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	c.cache.Remove(userID)
	user, err := c.backend.Update(ctx, userID, fn)
	c.cache.Remove(userID)
	return user, err
}

func (c *Cached) Len() int {
	return c.cache.Len()
}
