package store

import (
	"context"
	"sort"
	"sync"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
)

// SettlementMemory holds at most one settlement per deal.
type SettlementMemory struct {
	mu          sync.RWMutex
	settlements map[id.DealID]*models.Settlement
}

func NewSettlementMemory() *SettlementMemory {
	return &SettlementMemory{settlements: make(map[id.DealID]*models.Settlement)}
}

func cloneSettlement(st *models.Settlement) *models.Settlement {
	cp := *st
	if st.SettledAt != nil {
		at := *st.SettledAt
		cp.SettledAt = &at
	}
	return &cp
}

func (s *SettlementMemory) Create(ctx context.Context, st *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[st.DealID]; ok {
		return sentinel.ErrDuplicate
	}
	s.settlements[st.DealID] = cloneSettlement(st)
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.settlements, st.DealID)
	})
	return nil
}

func (s *SettlementMemory) FindByDeal(_ context.Context, dealID id.DealID) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settlements[dealID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSettlement(st), nil
}

// ListPending returns unsettled instructions, oldest first.
func (s *SettlementMemory) ListPending(_ context.Context) ([]*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Settlement, 0)
	for _, st := range s.settlements {
		if st.Pending() {
			out = append(out, cloneSettlement(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Save writes back attempt bookkeeping. A settled record is never reopened.
func (s *SettlementMemory) Save(_ context.Context, st *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.settlements[st.DealID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !prev.Pending() {
		return nil
	}
	s.settlements[st.DealID] = cloneSettlement(st)
	return nil
}
