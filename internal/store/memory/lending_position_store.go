package memory

import (
	"context"
	"sync"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

type lendingKey struct{ depositor, chain, protocol string }

// LendingPositionStore is an in-memory domain.LendingPositionStore.
type LendingPositionStore struct {
	mu   sync.Mutex
	rows map[lendingKey]domain.LendingPosition
}

// NewLendingPositionStore returns an empty LendingPositionStore.
func NewLendingPositionStore() *LendingPositionStore {
	return &LendingPositionStore{rows: make(map[lendingKey]domain.LendingPosition)}
}

// Upsert inserts or replaces by (depositor, chain, protocol).
func (s *LendingPositionStore) Upsert(_ context.Context, p domain.LendingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := lendingKey{p.Depositor, p.Chain, p.Protocol}
	if cur, ok := s.rows[k]; ok {
		p.OpenedAt = cur.OpenedAt
	}
	s.rows[k] = p
	return nil
}

// Get returns the record for (depositor, chain, protocol).
func (s *LendingPositionStore) Get(_ context.Context, depositor, chain, protocol string) (domain.LendingPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[lendingKey{depositor, chain, protocol}]
	if !ok {
		return domain.LendingPosition{}, domain.ErrNotFound
	}
	return p, nil
}

// ListActive returns every position regardless of chain/protocol; callers
// filter. Blocked rows are included since they still hold funds.
func (s *LendingPositionStore) ListActive(_ context.Context) ([]domain.LendingPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LendingPosition, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, nil
}

// Delete removes the record.
func (s *LendingPositionStore) Delete(_ context.Context, depositor, chain, protocol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := lendingKey{depositor, chain, protocol}
	if _, ok := s.rows[k]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, k)
	return nil
}

var _ domain.LendingPositionStore = (*LendingPositionStore)(nil)
