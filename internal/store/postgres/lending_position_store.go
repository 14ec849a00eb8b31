package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// LendingPositionStore implements domain.LendingPositionStore using PostgreSQL.
type LendingPositionStore struct {
	pool *pgxpool.Pool
}

// NewLendingPositionStore creates a new LendingPositionStore.
func NewLendingPositionStore(pool *pgxpool.Pool) *LendingPositionStore {
	return &LendingPositionStore{pool: pool}
}

const lendingSelectCols = `depositor, chain, protocol, asset, amount,
	yield_pct, status, opened_at, updated_at`

func scanLendingRow(row pgx.Row) (domain.LendingPosition, error) {
	var p domain.LendingPosition
	var status string
	err := row.Scan(
		&p.Depositor, &p.Chain, &p.Protocol, &p.Asset, &p.Amount,
		&p.YieldPct, &status, &p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.LendingPosition{}, err
	}
	p.Status = domain.LendingStatus(status)
	return p, nil
}

// Upsert inserts or replaces a lending position, preserving opened_at on
// conflict.
func (s *LendingPositionStore) Upsert(ctx context.Context, p domain.LendingPosition) error {
	const query = `
		INSERT INTO lending_positions (
			depositor, chain, protocol, asset, amount,
			yield_pct, status, opened_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (depositor, chain, protocol) DO UPDATE SET
			asset      = EXCLUDED.asset,
			amount     = EXCLUDED.amount,
			yield_pct  = EXCLUDED.yield_pct,
			status     = EXCLUDED.status,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.Depositor, p.Chain, p.Protocol, p.Asset, p.Amount,
		p.YieldPct, string(p.Status), p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert lending position %s/%s/%s: %w",
			p.Depositor, p.Chain, p.Protocol, err)
	}
	return nil
}

// Get returns the lending position for a depositor, chain, and protocol.
func (s *LendingPositionStore) Get(ctx context.Context, depositor, chain, protocol string) (domain.LendingPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lendingSelectCols+` FROM lending_positions
		 WHERE depositor = $1 AND chain = $2 AND protocol = $3`,
		depositor, chain, protocol)

	p, err := scanLendingRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LendingPosition{}, domain.ErrNotFound
		}
		return domain.LendingPosition{}, fmt.Errorf("postgres: get lending position: %w", err)
	}
	return p, nil
}

// ListActive returns all lending positions, oldest first.
func (s *LendingPositionStore) ListActive(ctx context.Context) ([]domain.LendingPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lendingSelectCols+` FROM lending_positions ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lending positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.LendingPosition
	for rows.Next() {
		p, err := scanLendingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan lending positions: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Delete removes a lending position. Deleting a missing row is a no-op.
func (s *LendingPositionStore) Delete(ctx context.Context, depositor, chain, protocol string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM lending_positions WHERE depositor = $1 AND chain = $2 AND protocol = $3`,
		depositor, chain, protocol)
	if err != nil {
		return fmt.Errorf("postgres: delete lending position %s/%s/%s: %w",
			depositor, chain, protocol, err)
	}
	return nil
}

var _ domain.LendingPositionStore = (*LendingPositionStore)(nil)
