package store

import (
	"context"
	"sort"
	"sync"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
)

type ratingKey struct {
	deal  id.DealID
	rater id.UserID
}

type RatingMemory struct {
	mu      sync.RWMutex
	ratings map[ratingKey]*models.Rating
}

func NewRatingMemory() *RatingMemory {
	return &RatingMemory{ratings: make(map[ratingKey]*models.Rating)}
}

// Create allows one rating per rater per deal.
func (s *RatingMemory) Create(ctx context.Context, r *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ratingKey{deal: r.DealID, rater: r.RaterID}
	if _, ok := s.ratings[key]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *r
	s.ratings[key] = &cp
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.ratings, key)
	})
	return nil
}

func (s *RatingMemory) ListByDeal(_ context.Context, dealID id.DealID) ([]*models.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Rating, 0, 2)
	for key, r := range s.ratings {
		if key.deal == dealID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
