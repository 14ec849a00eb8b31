package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// ActionStore is an in-memory domain.ActionStore.
type ActionStore struct {
	mu   sync.Mutex
	rows []domain.RebalanceAction
}

// NewActionStore returns an empty ActionStore.
func NewActionStore() *ActionStore {
	return &ActionStore{}
}

// Insert appends an action.
func (s *ActionStore) Insert(_ context.Context, a domain.RebalanceAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, a)
	return nil
}

// ListRecent returns up to limit actions, newest first, optionally filtered
// by depositor.
func (s *ActionStore) ListRecent(_ context.Context, depositor string, limit int) ([]domain.RebalanceAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]domain.RebalanceAction(nil), s.rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	out := make([]domain.RebalanceAction, 0, limit)
	for _, a := range sorted {
		if depositor != "" && a.Depositor != depositor {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListBefore returns up to limit actions created before cutoff, oldest first.
func (s *ActionStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.RebalanceAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]domain.RebalanceAction(nil), s.rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var out []domain.RebalanceAction
	for _, a := range sorted {
		if !a.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteBefore removes actions created before cutoff and reports the count.
func (s *ActionStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var removed int64
	for _, a := range s.rows {
		if a.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return removed, nil
}

var _ domain.ActionStore = (*ActionStore)(nil)
