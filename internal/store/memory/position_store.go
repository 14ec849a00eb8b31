// Package memory implements the domain store interfaces with in-process
// maps. Used by tests and by the dry-run mode.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// PositionStore is an in-memory domain.PositionStore.
type PositionStore struct {
	mu   sync.Mutex
	rows map[string]domain.Position // keyed by ID
}

// NewPositionStore returns an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{rows: make(map[string]domain.Position)}
}

// Create inserts a position, rejecting a second active row for the same
// depositor and venue family.
func (s *PositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == domain.PositionStatusActive {
		for _, row := range s.rows {
			if row.Status == domain.PositionStatusActive && row.Depositor == p.Depositor && row.Venue == p.Venue {
				return domain.ErrAlreadyExists
			}
		}
	}
	if _, ok := s.rows[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[p.ID] = p
	return nil
}

// GetActive returns the depositor's active position at the venue family.
func (s *PositionStore) GetActive(_ context.Context, depositor, venue string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Status == domain.PositionStatusActive && row.Depositor == depositor && row.Venue == venue {
			return row, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

// ListActive returns all active positions at the venue family.
func (s *PositionStore) ListActive(_ context.Context, venue string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, row := range s.rows {
		if row.Status == domain.PositionStatusActive && row.Venue == venue {
			out = append(out, row)
		}
	}
	return out, nil
}

// UpdateAmounts replaces the principal and pool-share amounts.
func (s *PositionStore) UpdateAmounts(_ context.Context, id string, principal, poolShares int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.Principal = principal
	row.PoolShares = poolShares
	s.rows[id] = row
	return nil
}

// Close marks an active position closed.
func (s *PositionStore) Close(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.PositionStatusActive {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	row.Status = domain.PositionStatusClosed
	row.ClosedAt = &now
	s.rows[id] = row
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
