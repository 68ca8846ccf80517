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

type BidMemory struct {
	mu   sync.RWMutex
	bids map[id.BidID]*models.Bid
}

func NewBidMemory() *BidMemory {
	return &BidMemory{bids: make(map[id.BidID]*models.Bid)}
}

func (s *BidMemory) Create(ctx context.Context, b *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[b.ID]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *b
	s.bids[b.ID] = &cp
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.bids, b.ID)
	})
	return nil
}

func (s *BidMemory) FindByID(_ context.Context, bidID id.BidID) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[bidID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *BidMemory) ListByListing(_ context.Context, listingID id.ListingID) ([]*models.Bid, error) {
	return s.filter(func(b *models.Bid) bool { return b.ListingID == listingID }), nil
}

func (s *BidMemory) ListByBidder(_ context.Context, bidder id.UserID) ([]*models.Bid, error) {
	return s.filter(func(b *models.Bid) bool { return b.BidderID == bidder }), nil
}

// ListExpired returns pending bids whose expiry is at or before now.
func (s *BidMemory) ListExpired(_ context.Context, now time.Time) ([]*models.Bid, error) {
	return s.filter(func(b *models.Bid) bool { return b.IsExpiredAt(now) }), nil
}

func (s *BidMemory) filter(keep func(*models.Bid) bool) []*models.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Bid, 0)
	for _, b := range s.bids {
		if keep(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// UpdateStatus is a compare-and-swap on the bid status.
func (s *BidMemory) UpdateStatus(ctx context.Context, bidID id.BidID, from, to models.BidStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if b.Status != from {
		return sentinel.ErrConflict
	}
	next := *b
	next.Apply(to, now)
	s.bids[bidID] = &next
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.bids[bidID] = b
	})
	return nil
}
