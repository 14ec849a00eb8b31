package memory

import (
	"context"
	"sync"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// PendingBridgeStore is an in-memory domain.PendingBridgeStore.
type PendingBridgeStore struct {
	mu   sync.Mutex
	rows map[string]domain.PendingBridge // keyed by ID
}

// NewPendingBridgeStore returns an empty PendingBridgeStore.
func NewPendingBridgeStore() *PendingBridgeStore {
	return &PendingBridgeStore{rows: make(map[string]domain.PendingBridge)}
}

// Create inserts a pending bridge, rejecting a duplicate for the same
// depositor and target pool.
func (s *PendingBridgeStore) Create(_ context.Context, b domain.PendingBridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Depositor == b.Depositor && row.TargetPoolKey == b.TargetPoolKey {
			return domain.ErrAlreadyExists
		}
	}
	s.rows[b.ID] = b
	return nil
}

// GetByDepositor returns the depositor's pending bridge for the target pool.
func (s *PendingBridgeStore) GetByDepositor(_ context.Context, depositor, targetPoolKey string) (domain.PendingBridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Depositor == depositor && row.TargetPoolKey == targetPoolKey {
			return row, nil
		}
	}
	return domain.PendingBridge{}, domain.ErrNotFound
}

// List returns all pending bridges for the target pool.
func (s *PendingBridgeStore) List(_ context.Context, targetPoolKey string) ([]domain.PendingBridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingBridge
	for _, row := range s.rows {
		if row.TargetPoolKey == targetPoolKey {
			out = append(out, row)
		}
	}
	return out, nil
}

// Delete removes a pending bridge. Deleting a missing record returns
// domain.ErrNotFound so callers can detect a double drain.
func (s *PendingBridgeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

var _ domain.PendingBridgeStore = (*PendingBridgeStore)(nil)
