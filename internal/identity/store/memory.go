package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"reyu/internal/identity/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
)

// InMemory is a map-backed user store. It hands out copies so callers never
// share a *User with the store.
type InMemory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.users[user.ID]; ok {
		return sentinel.ErrDuplicate
	}
	if _, ok := s.byEmail[email]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// List returns the users matching f, oldest first.
func (s *InMemory) List(_ context.Context, f models.UserFilter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0)
	for _, u := range s.users {
		if f.Matches(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) Stats(_ context.Context) (models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewUserStats()
	for _, u := range s.users {
		stats.Add(u.KYCStatus, u.UserStatus, 1)
	}
	return stats, nil
}

// Update applies fn to the stored user atomically. fn returning an error
// leaves the record untouched.
func (s *InMemory) Update(_ context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	if err := fn(&cp); err != nil {
		return nil, err
	}
	s.users[userID] = &cp
	out := cp
	return &out, nil
}
