package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The
// at-most-one-active invariant is enforced by a partial unique index on
// (depositor, venue) WHERE status = 'active'.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, depositor, venue, principal, pool_shares,
	bridge_tx_ref, status, opened_at, closed_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.Depositor, &p.Venue,
		&p.Principal, &p.PoolShares,
		&p.BridgeTxRef, &status,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Create inserts a new position. A second active position for the same
// depositor and venue returns domain.ErrAlreadyExists.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, depositor, venue, principal, pool_shares,
			bridge_tx_ref, status, opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Depositor, p.Venue,
		p.Principal, p.PoolShares,
		p.BridgeTxRef, string(p.Status),
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetActive returns the active position for a depositor at a venue family.
func (s *PositionStore) GetActive(ctx context.Context, depositor, venue string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE depositor = $1 AND venue = $2 AND status = 'active'`,
		depositor, venue)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get active position: %w", err)
	}
	return p, nil
}

// ListActive returns all active positions at a venue family, oldest first.
func (s *PositionStore) ListActive(ctx context.Context, venue string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE venue = $1 AND status = 'active'
		 ORDER BY opened_at ASC`, venue)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active positions: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdateAmounts replaces the principal and pool share figures of a position.
func (s *PositionStore) UpdateAmounts(ctx context.Context, id string, principal, poolShares int64) error {
	const query = `
		UPDATE positions SET
			principal   = $2,
			pool_shares = $3,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, principal, poolShares)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks an active position as closed.
func (s *PositionStore) Close(ctx context.Context, id string) error {
	const query = `
		UPDATE positions SET
			status     = 'closed',
			closed_at  = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
