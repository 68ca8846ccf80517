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

// DealMemory keeps deals together with their timelines so a status change and
// its timeline entry share one lock domain.
type DealMemory struct {
	mu       sync.RWMutex
	deals    map[id.DealID]*models.Deal
	timeline map[id.DealID][]models.TimelineEvent
}

func NewDealMemory() *DealMemory {
	return &DealMemory{
		deals:    make(map[id.DealID]*models.Deal),
		timeline: make(map[id.DealID][]models.TimelineEvent),
	}
}

func cloneDeal(d *models.Deal) *models.Deal {
	cp := *d
	if d.Shipping != nil {
		sh := *d.Shipping
		cp.Shipping = &sh
	}
	if d.Dispute != nil {
		dis := *d.Dispute
		cp.Dispute = &dis
	}
	return &cp
}

func (s *DealMemory) Create(ctx context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deals[d.ID]; ok {
		return sentinel.ErrDuplicate
	}
	for _, existing := range s.deals {
		if existing.BidID == d.BidID {
			return sentinel.ErrDuplicate
		}
	}
	s.deals[d.ID] = cloneDeal(d)
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.deals, d.ID)
	})
	return nil
}

func (s *DealMemory) FindByID(_ context.Context, dealID id.DealID) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[dealID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDeal(d), nil
}

// ListByUser returns deals where user is buyer or seller, newest first.
func (s *DealMemory) ListByUser(_ context.Context, user id.UserID) ([]*models.Deal, error) {
	return s.filter(func(d *models.Deal) bool {
		return d.BuyerID == user || d.SellerID == user
	}, func(a, b *models.Deal) bool { return a.CreatedAt.After(b.CreatedAt) }), nil
}

// ListAwaitingPayment returns created or payment_pending deals created
// before cutoff.
func (s *DealMemory) ListAwaitingPayment(_ context.Context, cutoff time.Time) ([]*models.Deal, error) {
	return s.filter(func(d *models.Deal) bool {
		return d.Status.AwaitingPayment() && d.CreatedAt.Before(cutoff)
	}, func(a, b *models.Deal) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

// ListByStatus returns deals in status, least recently updated first so the
// oldest work comes up first.
func (s *DealMemory) ListByStatus(_ context.Context, status models.DealStatus) ([]*models.Deal, error) {
	return s.filter(func(d *models.Deal) bool {
		return d.Status == status
	}, func(a, b *models.Deal) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

func (s *DealMemory) Stats(_ context.Context) (models.DealStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewDealStats()
	for _, d := range s.deals {
		stats.Add(d)
	}
	return stats, nil
}

func (s *DealMemory) filter(keep func(*models.Deal) bool, less func(a, b *models.Deal) bool) []*models.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Deal, 0)
	for _, d := range s.deals {
		if keep(d) {
			out = append(out, cloneDeal(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Update replaces the stored deal if it is still at fromStatus and
// fromVersion; otherwise ErrConflict.
func (s *DealMemory) Update(ctx context.Context, d *models.Deal, fromStatus models.DealStatus, fromVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.deals[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Status != fromStatus || prev.Version != fromVersion {
		return sentinel.ErrConflict
	}
	s.deals[d.ID] = cloneDeal(d)
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.deals[d.ID] = prev
	})
	return nil
}

// AppendTimeline stores e with the next sequence number for its deal and
// returns the stored event.
func (s *DealMemory) AppendTimeline(ctx context.Context, e models.TimelineEvent) (models.TimelineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deals[e.DealID]; !ok {
		return models.TimelineEvent{}, sentinel.ErrNotFound
	}
	prev := s.timeline[e.DealID]
	e.Sequence = len(prev) + 1
	s.timeline[e.DealID] = append(prev[:len(prev):len(prev)], e)
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(prev) == 0 {
			delete(s.timeline, e.DealID)
			return
		}
		s.timeline[e.DealID] = prev
	})
	return e, nil
}

func (s *DealMemory) Timeline(_ context.Context, dealID id.DealID) ([]models.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.deals[dealID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]models.TimelineEvent{}, s.timeline[dealID]...), nil
}
