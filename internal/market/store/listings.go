package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
)

type ListingMemory struct {
	mu       sync.RWMutex
	listings map[id.ListingID]*models.Listing
}

func NewListingMemory() *ListingMemory {
	return &ListingMemory{listings: make(map[id.ListingID]*models.Listing)}
}

func cloneListing(l *models.Listing) *models.Listing {
	cp := *l
	if l.ExpiresAt != nil {
		exp := *l.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}

// Create rejects a second open listing for the same diamond.
func (s *ListingMemory) Create(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[l.ID]; ok {
		return sentinel.ErrDuplicate
	}
	for _, existing := range s.listings {
		if existing.DiamondID == l.DiamondID && existing.Status.IsOpen() {
			return sentinel.ErrDuplicate
		}
	}
	s.listings[l.ID] = cloneListing(l)
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listings, l.ID)
	})
	return nil
}

func (s *ListingMemory) FindByID(_ context.Context, listingID id.ListingID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneListing(l), nil
}

// ListActive returns active listings, newest first.
func (s *ListingMemory) ListActive(_ context.Context) ([]*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Listing, 0)
	for _, l := range s.listings {
		if l.Status == models.ListingActive {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *ListingMemory) UpdateStatus(ctx context.Context, listingID id.ListingID, from, to models.ListingStatus, now time.Time) error {
	return s.mutate(ctx, listingID, func(l *models.Listing) error {
		if l.Status != from {
			return sentinel.ErrConflict
		}
		l.Status = to
		l.UpdatedAt = now
		return nil
	})
}

func (s *ListingMemory) IncrementBidCount(ctx context.Context, listingID id.ListingID, now time.Time) error {
	return s.mutate(ctx, listingID, func(l *models.Listing) error {
		l.BidCount++
		l.UpdatedAt = now
		return nil
	})
}

func (s *ListingMemory) mutate(ctx context.Context, listingID id.ListingID, fn func(*models.Listing) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return sentinel.ErrNotFound
	}
	next := cloneListing(l)
	if err := fn(next); err != nil {
		return err
	}
	s.listings[listingID] = next
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listings[listingID] = l
	})
	return nil
}
