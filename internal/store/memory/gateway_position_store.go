package memory

import (
	"context"
	"sync"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

type gatewayKey struct{ depositor, destVenue string }

// GatewayPositionStore is an in-memory domain.GatewayPositionStore.
type GatewayPositionStore struct {
	mu   sync.Mutex
	rows map[gatewayKey]domain.GatewayPosition
}

// NewGatewayPositionStore returns an empty GatewayPositionStore.
func NewGatewayPositionStore() *GatewayPositionStore {
	return &GatewayPositionStore{rows: make(map[gatewayKey]domain.GatewayPosition)}
}

// Upsert inserts or replaces by (depositor, destination venue).
func (s *GatewayPositionStore) Upsert(_ context.Context, g domain.GatewayPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := gatewayKey{g.Depositor, g.DestVenue}
	if cur, ok := s.rows[k]; ok {
		g.CreatedAt = cur.CreatedAt
	}
	s.rows[k] = g
	return nil
}

// Get returns the record for (depositor, destination venue).
func (s *GatewayPositionStore) Get(_ context.Context, depositor, destVenue string) (domain.GatewayPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[gatewayKey{depositor, destVenue}]
	if !ok {
		return domain.GatewayPosition{}, domain.ErrNotFound
	}
	return g, nil
}

// List returns every gateway position.
func (s *GatewayPositionStore) List(_ context.Context) ([]domain.GatewayPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.GatewayPosition, 0, len(s.rows))
	for _, g := range s.rows {
		out = append(out, g)
	}
	return out, nil
}

// Delete removes the record; deleting a missing record is not an error.
func (s *GatewayPositionStore) Delete(_ context.Context, depositor, destVenue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, gatewayKey{depositor, destVenue})
	return nil
}

var _ domain.GatewayPositionStore = (*GatewayPositionStore)(nil)
