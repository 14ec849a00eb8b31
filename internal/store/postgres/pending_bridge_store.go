package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// PendingBridgeStore implements domain.PendingBridgeStore using PostgreSQL.
type PendingBridgeStore struct {
	pool *pgxpool.Pool
}

// NewPendingBridgeStore creates a new PendingBridgeStore.
func NewPendingBridgeStore(pool *pgxpool.Pool) *PendingBridgeStore {
	return &PendingBridgeStore{pool: pool}
}

const pendingBridgeSelectCols = `id, depositor, dest_address, amount,
	target_pool_key, expected_apy, tx_ref, started_at`

func scanPendingBridgeRow(row pgx.Row) (domain.PendingBridge, error) {
	var b domain.PendingBridge
	err := row.Scan(
		&b.ID, &b.Depositor, &b.DestAddress, &b.Amount,
		&b.TargetPoolKey, &b.ExpectedAPY, &b.TxRef, &b.StartedAt,
	)
	return b, err
}

// Create inserts a pending bridge record. A second in-flight transfer for the
// same depositor and target pool returns domain.ErrAlreadyExists.
func (s *PendingBridgeStore) Create(ctx context.Context, b domain.PendingBridge) error {
	const query = `
		INSERT INTO pending_bridges (
			id, depositor, dest_address, amount,
			target_pool_key, expected_apy, tx_ref, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Depositor, b.DestAddress, b.Amount,
		b.TargetPoolKey, b.ExpectedAPY, b.TxRef, b.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create pending bridge %s: %w", b.ID, err)
	}
	return nil
}

// GetByDepositor returns the pending bridge for a depositor and target pool.
func (s *PendingBridgeStore) GetByDepositor(ctx context.Context, depositor, targetPoolKey string) (domain.PendingBridge, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pendingBridgeSelectCols+` FROM pending_bridges
		 WHERE depositor = $1 AND target_pool_key = $2`,
		depositor, targetPoolKey)

	b, err := scanPendingBridgeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingBridge{}, domain.ErrNotFound
		}
		return domain.PendingBridge{}, fmt.Errorf("postgres: get pending bridge: %w", err)
	}
	return b, nil
}

// List returns all pending bridges for a target pool, oldest first.
func (s *PendingBridgeStore) List(ctx context.Context, targetPoolKey string) ([]domain.PendingBridge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pendingBridgeSelectCols+` FROM pending_bridges
		 WHERE target_pool_key = $1
		 ORDER BY started_at ASC`, targetPoolKey)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending bridges: %w", err)
	}
	defer rows.Close()

	var bridges []domain.PendingBridge
	for rows.Next() {
		b, err := scanPendingBridgeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending bridges: %w", err)
		}
		bridges = append(bridges, b)
	}
	return bridges, rows.Err()
}

// Delete removes a pending bridge. Deleting an already-drained record returns
// domain.ErrNotFound so callers can detect a double drain.
func (s *PendingBridgeStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_bridges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete pending bridge %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PendingBridgeStore = (*PendingBridgeStore)(nil)
