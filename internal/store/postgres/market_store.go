package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, title, category, options, status, winning_option,
	closes_at, created_at, resolved_at`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string

	err := row.Scan(
		&m.ID, &m.Title, &m.Category, &m.Options,
		&status, &m.WinningOption,
		&m.ClosesAt, &m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, title, category, options, status, winning_option,
			closes_at, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Title, m.Category, m.Options,
		string(m.Status), m.WinningOption,
		m.ClosesAt, m.CreatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a single market by its ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarketRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns open markets ordered by closing time.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = 'open' ORDER BY closes_at ASC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list open markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Resolve transitions an open market to resolved, guarded on status so the
// transition happens at most once.
func (s *MarketStore) Resolve(ctx context.Context, id, winningOption string, at time.Time) error {
	const query = `
		UPDATE markets SET
			status         = 'resolved',
			winning_option = $2,
			resolved_at    = $3
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, winningOption, at)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
