package store

import (
	"context"
	"sort"
	"sync"

	"reyu/internal/notification/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
)

type deliveryKey struct {
	eventID string
	userID  id.UserID
}

// InMemory keeps each user's inbox in a slice, newest last.
type InMemory struct {
	mu        sync.RWMutex
	byUser    map[id.UserID][]*models.Notification
	delivered map[deliveryKey]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		byUser:    make(map[id.UserID][]*models.Notification),
		delivered: make(map[deliveryKey]struct{}),
	}
}

// Save returns sentinel.ErrDuplicate when the user already has a notification
// for the same event.
func (s *InMemory) Save(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deliveryKey{eventID: n.EventID, userID: n.UserID}
	if _, ok := s.delivered[key]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *n
	s.byUser[n.UserID] = append(s.byUser[n.UserID], &cp)
	s.delivered[key] = struct{}{}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Notification, 0, len(s.byUser[userID]))
	for _, n := range s.byUser[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flags one of the user's notifications as read. Another user's
// notification is reported as not found.
func (s *InMemory) MarkRead(_ context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byUser[userID] {
		if n.ID == notificationID {
			n.IsRead = true
			cp := *n
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
