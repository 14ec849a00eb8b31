package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// GatewayPositionStore implements domain.GatewayPositionStore using PostgreSQL.
type GatewayPositionStore struct {
	pool *pgxpool.Pool
}

// NewGatewayPositionStore creates a new GatewayPositionStore.
func NewGatewayPositionStore(pool *pgxpool.Pool) *GatewayPositionStore {
	return &GatewayPositionStore{pool: pool}
}

const gatewaySelectCols = `depositor, dest_venue, amount, status,
	COALESCE(last_attempt, 'epoch'::timestamptz), last_error, created_at, updated_at`

func scanGatewayRow(row pgx.Row) (domain.GatewayPosition, error) {
	var g domain.GatewayPosition
	var status string
	err := row.Scan(
		&g.Depositor, &g.DestVenue, &g.Amount, &status,
		&g.LastAttempt, &g.LastError, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return domain.GatewayPosition{}, err
	}
	g.Status = domain.GatewayStatus(status)
	return g, nil
}

// Upsert inserts or replaces a gateway position, preserving created_at on
// conflict.
func (s *GatewayPositionStore) Upsert(ctx context.Context, g domain.GatewayPosition) error {
	const query = `
		INSERT INTO gateway_positions (
			depositor, dest_venue, amount, status,
			last_attempt, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (depositor, dest_venue) DO UPDATE SET
			amount       = EXCLUDED.amount,
			status       = EXCLUDED.status,
			last_attempt = EXCLUDED.last_attempt,
			last_error   = EXCLUDED.last_error,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		g.Depositor, g.DestVenue, g.Amount, string(g.Status),
		g.LastAttempt, g.LastError,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert gateway position %s/%s: %w", g.Depositor, g.DestVenue, err)
	}
	return nil
}

// Get returns the gateway position for a depositor and destination venue.
func (s *GatewayPositionStore) Get(ctx context.Context, depositor, destVenue string) (domain.GatewayPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+gatewaySelectCols+` FROM gateway_positions
		 WHERE depositor = $1 AND dest_venue = $2`,
		depositor, destVenue)

	g, err := scanGatewayRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GatewayPosition{}, domain.ErrNotFound
		}
		return domain.GatewayPosition{}, fmt.Errorf("postgres: get gateway position: %w", err)
	}
	return g, nil
}

// List returns all gateway positions, oldest first.
func (s *GatewayPositionStore) List(ctx context.Context) ([]domain.GatewayPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gatewaySelectCols+` FROM gateway_positions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list gateway positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.GatewayPosition
	for rows.Next() {
		g, err := scanGatewayRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan gateway positions: %w", err)
		}
		positions = append(positions, g)
	}
	return positions, rows.Err()
}

// Delete removes a gateway position. Deleting a missing row is a no-op.
func (s *GatewayPositionStore) Delete(ctx context.Context, depositor, destVenue string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM gateway_positions WHERE depositor = $1 AND dest_venue = $2`,
		depositor, destVenue)
	if err != nil {
		return fmt.Errorf("postgres: delete gateway position %s/%s: %w", depositor, destVenue, err)
	}
	return nil
}

var _ domain.GatewayPositionStore = (*GatewayPositionStore)(nil)
