package memory

import (
	"context"
	"sync"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// KeyStore is an in-memory domain.KeyStore.
type KeyStore struct {
	mu   sync.Mutex
	rows map[string]domain.CustodialKey
}

// NewKeyStore returns an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{rows: make(map[string]domain.CustodialKey)}
}

// Put is insert-only; a duplicate depositor returns domain.ErrAlreadyExists.
func (s *KeyStore) Put(_ context.Context, k domain.CustodialKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[k.Depositor]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[k.Depositor] = k
	return nil
}

// Get returns the depositor's sealed key record.
func (s *KeyStore) Get(_ context.Context, depositor string) (domain.CustodialKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.rows[depositor]
	if !ok {
		return domain.CustodialKey{}, domain.ErrNotFound
	}
	return k, nil
}

var _ domain.KeyStore = (*KeyStore)(nil)
