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

type certKey struct {
	lab    string
	number string
}

type DiamondMemory struct {
	mu       sync.RWMutex
	diamonds map[id.DiamondID]*models.Diamond
	certs    map[certKey]id.DiamondID
}

func NewDiamondMemory() *DiamondMemory {
	return &DiamondMemory{
		diamonds: make(map[id.DiamondID]*models.Diamond),
		certs:    make(map[certKey]id.DiamondID),
	}
}

func cloneDiamond(d *models.Diamond) *models.Diamond {
	cp := *d
	cp.ImageURLs = append([]string(nil), d.ImageURLs...)
	return &cp
}

func (s *DiamondMemory) Create(ctx context.Context, d *models.Diamond) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert := certKey{lab: d.Lab, number: d.CertificateNumber}
	if _, ok := s.diamonds[d.ID]; ok {
		return sentinel.ErrDuplicate
	}
	if _, ok := s.certs[cert]; ok {
		return sentinel.ErrDuplicate
	}
	s.diamonds[d.ID] = cloneDiamond(d)
	s.certs[cert] = d.ID
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.diamonds, d.ID)
		delete(s.certs, cert)
	})
	return nil
}

func (s *DiamondMemory) FindByID(_ context.Context, diamondID id.DiamondID) (*models.Diamond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diamonds[diamondID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDiamond(d), nil
}

func (s *DiamondMemory) ListByOwner(_ context.Context, owner id.UserID) ([]*models.Diamond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Diamond, 0)
	for _, d := range s.diamonds {
		if d.OwnerID == owner {
			out = append(out, cloneDiamond(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus moves the diamond from one status to another, failing with
// ErrConflict if it is no longer in from.
func (s *DiamondMemory) UpdateStatus(ctx context.Context, diamondID id.DiamondID, from, to models.DiamondStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diamonds[diamondID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if d.Status != from {
		return sentinel.ErrConflict
	}
	prev := cloneDiamond(d)
	next := cloneDiamond(d)
	next.Status = to
	next.UpdatedAt = now
	s.diamonds[diamondID] = next
	recordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.diamonds[diamondID] = prev
	})
	return nil
}
