package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, market_id, option_chosen, stake,
	entry_multiplier, status, created_at, settled_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.UserID, &p.MarketID, &p.OptionChosen,
		&p.Stake, &p.EntryMultiplier,
		&status, &p.CreatedAt, &p.SettledAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, market_id, option_chosen, stake,
			entry_multiplier, status, created_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.MarketID, p.OptionChosen,
		p.Stake, p.EntryMultiplier,
		string(p.Status), p.CreatedAt, p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListActiveByMarket returns active positions on the given market.
func (s *PositionStore) ListActiveByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1 AND status = 'active'
		 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions: %w", err)
	}
	return positions, nil
}

// ListByMarket returns every position on the given market regardless of status.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1
		 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by market: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by market: %w", err)
	}
	return positions, nil
}

// ListByUser returns positions for the given user with pagination and optional time filtering.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by user: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by user: %w", err)
	}
	return positions, nil
}

// Transition moves a position between statuses, guarded on the current status.
func (s *PositionStore) Transition(ctx context.Context, id string, from, to domain.PositionStatus, at time.Time) error {
	const query = `
		UPDATE positions SET
			status     = $3,
			settled_at = $4
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("postgres: transition position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotActive
	}
	return nil
}
