package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// KeyStore implements domain.KeyStore using PostgreSQL. Put is insert-only;
// the primary key on depositor turns a concurrent double-generate into
// domain.ErrAlreadyExists for the loser.
type KeyStore struct {
	pool *pgxpool.Pool
}

// NewKeyStore creates a new KeyStore.
func NewKeyStore(pool *pgxpool.Pool) *KeyStore {
	return &KeyStore{pool: pool}
}

// Put inserts a sealed key record.
func (s *KeyStore) Put(ctx context.Context, k domain.CustodialKey) error {
	const query = `
		INSERT INTO custodial_keys (depositor, address, encrypted_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		k.Depositor, k.Address, k.EncryptedSecret, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: put custodial key for %s: %w", k.Depositor, err)
	}
	return nil
}

// Get returns the sealed key record for a depositor.
func (s *KeyStore) Get(ctx context.Context, depositor string) (domain.CustodialKey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT depositor, address, encrypted_secret, created_at, updated_at
		 FROM custodial_keys WHERE depositor = $1`, depositor)

	var k domain.CustodialKey
	err := row.Scan(&k.Depositor, &k.Address, &k.EncryptedSecret, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CustodialKey{}, domain.ErrNotFound
		}
		return domain.CustodialKey{}, fmt.Errorf("postgres: get custodial key for %s: %w", depositor, err)
	}
	return k, nil
}

var _ domain.KeyStore = (*KeyStore)(nil)
