package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// ActionStore implements domain.ActionStore using PostgreSQL. Details are
// stored as JSONB.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

const actionSelectCols = `id, kind, venue, depositor, amount, details, tx_ref, created_at`

func scanActionRow(row pgx.Row) (domain.RebalanceAction, error) {
	var a domain.RebalanceAction
	var kind string
	var details []byte

	err := row.Scan(&a.ID, &kind, &a.Venue, &a.Depositor, &a.Amount, &details, &a.TxRef, &a.CreatedAt)
	if err != nil {
		return domain.RebalanceAction{}, err
	}
	a.Kind = domain.ActionKind(kind)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return domain.RebalanceAction{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return a, nil
}

// Insert appends an executed action.
func (s *ActionStore) Insert(ctx context.Context, a domain.RebalanceAction) error {
	details := a.Details
	if details == nil {
		details = map[string]string{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("postgres: encode action details: %w", err)
	}

	const query = `
		INSERT INTO actions (id, kind, venue, depositor, amount, details, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		a.ID, string(a.Kind), a.Venue, a.Depositor, a.Amount, payload, a.TxRef, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert action %s: %w", a.ID, err)
	}
	return nil
}

// ListRecent returns up to limit actions, newest first, optionally filtered
// by depositor.
func (s *ActionStore) ListRecent(ctx context.Context, depositor string, limit int) ([]domain.RebalanceAction, error) {
	query := `SELECT ` + actionSelectCols + ` FROM actions`
	args := []any{}
	if depositor != "" {
		query += ` WHERE depositor = $1`
		args = append(args, depositor)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent actions: %w", err)
	}
	defer rows.Close()

	return collectActions(rows)
}

// ListBefore returns up to limit actions created before cutoff, oldest first.
func (s *ActionStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RebalanceAction, error) {
	query := `SELECT ` + actionSelectCols + ` FROM actions
		WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectActions(rows)
}

// DeleteBefore removes actions created before cutoff and reports the count.
func (s *ActionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM actions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete actions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func collectActions(rows pgx.Rows) ([]domain.RebalanceAction, error) {
	var actions []domain.RebalanceAction
	for rows.Next() {
		a, err := scanActionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan actions: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

var _ domain.ActionStore = (*ActionStore)(nil)
