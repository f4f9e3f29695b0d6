package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// FastPoolStore implements domain.FastPoolStore using PostgreSQL.
type FastPoolStore struct {
	pool *pgxpool.Pool
}

// NewFastPoolStore creates a new FastPoolStore backed by the given connection pool.
func NewFastPoolStore(pool *pgxpool.Pool) *FastPoolStore {
	return &FastPoolStore{pool: pool}
}

const fastPoolSelectCols = `id, category, asset_symbol, round_start, round_end,
	opening_price, closing_price, status, paused, base_odds, result,
	price_change_percent, created_at`

func scanFastPoolRow(row pgx.Row) (domain.FastPool, error) {
	var p domain.FastPool
	var status, result string

	err := row.Scan(
		&p.ID, &p.Category, &p.AssetSymbol,
		&p.RoundStart, &p.RoundEnd,
		&p.OpeningPrice, &p.ClosingPrice,
		&status, &p.Paused, &p.BaseOdds,
		&result, &p.PriceChangePercent, &p.CreatedAt,
	)
	if err != nil {
		return domain.FastPool{}, err
	}
	p.Status = domain.FastPoolStatus(status)
	p.Result = domain.FastPoolResult(result)
	return p, nil
}

func scanFastPoolRows(rows pgx.Rows) ([]domain.FastPool, error) {
	var pools []domain.FastPool
	for rows.Next() {
		p, err := scanFastPoolRow(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// Create inserts a new round. The unique constraint on
// (asset_symbol, category, round_start) makes concurrent rollover sweeps safe.
func (s *FastPoolStore) Create(ctx context.Context, p domain.FastPool) error {
	const query = `
		INSERT INTO fastpools (
			id, category, asset_symbol, round_start, round_end,
			opening_price, closing_price, status, paused, base_odds,
			result, price_change_percent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Category, p.AssetSymbol,
		p.RoundStart, p.RoundEnd,
		p.OpeningPrice, p.ClosingPrice,
		string(p.Status), p.Paused, p.BaseOdds,
		string(p.Result), p.PriceChangePercent, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create fastpool %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single round by its ID.
func (s *FastPoolStore) GetByID(ctx context.Context, id string) (domain.FastPool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fastPoolSelectCols+` FROM fastpools WHERE id = $1`, id)

	p, err := scanFastPoolRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FastPool{}, domain.ErrNotFound
		}
		return domain.FastPool{}, fmt.Errorf("postgres: get fastpool %s: %w", id, err)
	}
	return p, nil
}

// ActiveRound returns the active, non-expired round for an asset/category.
func (s *FastPoolStore) ActiveRound(ctx context.Context, assetSymbol, category string, now time.Time) (domain.FastPool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fastPoolSelectCols+` FROM fastpools
		 WHERE asset_symbol = $1 AND category = $2 AND status = 'active' AND round_end > $3
		 ORDER BY round_start DESC
		 LIMIT 1`, assetSymbol, category, now)

	p, err := scanFastPoolRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FastPool{}, domain.ErrNotFound
		}
		return domain.FastPool{}, fmt.Errorf("postgres: active round %s/%s: %w", assetSymbol, category, err)
	}
	return p, nil
}

// ListDue returns active rounds whose end has passed. Paused rounds are
// excluded: their open bets belong to the refund path, not settlement.
func (s *FastPoolStore) ListDue(ctx context.Context, now time.Time) ([]domain.FastPool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fastPoolSelectCols+` FROM fastpools
		 WHERE status = 'active' AND NOT paused AND round_end <= $1
		 ORDER BY round_end ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due fastpools: %w", err)
	}
	defer rows.Close()

	pools, err := scanFastPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan due fastpools: %w", err)
	}
	return pools, nil
}

// ListActiveByAsset returns non-completed rounds for an asset.
func (s *FastPoolStore) ListActiveByAsset(ctx context.Context, assetSymbol string) ([]domain.FastPool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fastPoolSelectCols+` FROM fastpools
		 WHERE asset_symbol = $1 AND status IN ('active', 'processing')
		 ORDER BY round_start ASC`, assetSymbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active fastpools: %w", err)
	}
	defer rows.Close()

	pools, err := scanFastPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active fastpools: %w", err)
	}
	return pools, nil
}

// ListCompleted returns completed rounds, newest first.
func (s *FastPoolStore) ListCompleted(ctx context.Context, opts domain.ListOpts) ([]domain.FastPool, error) {
	query := `SELECT ` + fastPoolSelectCols + ` FROM fastpools
		WHERE status = 'completed' ORDER BY round_end DESC`
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
		return nil, fmt.Errorf("postgres: list completed fastpools: %w", err)
	}
	defer rows.Close()

	pools, err := scanFastPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed fastpools: %w", err)
	}
	return pools, nil
}

// ListCompletedBefore returns completed rounds that ended strictly before the
// cutoff, for archival.
func (s *FastPoolStore) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.FastPool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fastPoolSelectCols+` FROM fastpools
		 WHERE status = 'completed' AND round_end < $1
		 ORDER BY round_end ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed fastpools before: %w", err)
	}
	defer rows.Close()

	pools, err := scanFastPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed fastpools before: %w", err)
	}
	return pools, nil
}

// MarkProcessing claims an active round for settlement.
func (s *FastPoolStore) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fastpools SET status = 'processing' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark fastpool %s processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reactivate undoes a processing claim so a later sweep retries the round.
func (s *FastPoolStore) Reactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fastpools SET status = 'active' WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("postgres: reactivate fastpool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete transitions a processing round to completed with its outcome.
func (s *FastPoolStore) Complete(ctx context.Context, id string, closingPrice float64, result domain.FastPoolResult, changePct float64) error {
	const query = `
		UPDATE fastpools SET
			status               = 'completed',
			closing_price        = $2,
			result               = $3,
			price_change_percent = $4
		WHERE id = $1 AND status = 'processing'`

	tag, err := s.pool.Exec(ctx, query, id, closingPrice, string(result), changePct)
	if err != nil {
		return fmt.Errorf("postgres: complete fastpool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPaused flips the bet-acceptance flag on a round.
func (s *FastPoolStore) SetPaused(ctx context.Context, id string, paused bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fastpools SET paused = $2 WHERE id = $1`, id, paused)
	if err != nil {
		return fmt.Errorf("postgres: pause fastpool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FastPoolBetStore implements domain.FastPoolBetStore using PostgreSQL.
type FastPoolBetStore struct {
	pool *pgxpool.Pool
}

// NewFastPoolBetStore creates a new FastPoolBetStore backed by the given connection pool.
func NewFastPoolBetStore(pool *pgxpool.Pool) *FastPoolBetStore {
	return &FastPoolBetStore{pool: pool}
}

const betSelectCols = `id, user_id, pool_id, side, stake, odds_at_placement,
	processed, payout_amount, created_at`

func scanBetRow(row pgx.Row) (domain.FastPoolBet, error) {
	var b domain.FastPoolBet
	var side string

	err := row.Scan(
		&b.ID, &b.UserID, &b.PoolID, &side,
		&b.Stake, &b.OddsAtPlacement,
		&b.Processed, &b.PayoutAmount, &b.CreatedAt,
	)
	if err != nil {
		return domain.FastPoolBet{}, err
	}
	b.Side = domain.BetSide(side)
	return b, nil
}

// Create inserts a new bet.
func (s *FastPoolBetStore) Create(ctx context.Context, b domain.FastPoolBet) error {
	const query = `
		INSERT INTO fastpool_bets (
			id, user_id, pool_id, side, stake, odds_at_placement,
			processed, payout_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.UserID, b.PoolID, string(b.Side),
		b.Stake, b.OddsAtPlacement,
		b.Processed, b.PayoutAmount, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

// GetByID retrieves a single bet by its ID.
func (s *FastPoolBetStore) GetByID(ctx context.Context, id string) (domain.FastPoolBet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM fastpool_bets WHERE id = $1`, id)

	b, err := scanBetRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FastPoolBet{}, domain.ErrNotFound
		}
		return domain.FastPoolBet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListUnprocessedByPool returns bets on a round still awaiting settlement or refund.
func (s *FastPoolBetStore) ListUnprocessedByPool(ctx context.Context, poolID string) ([]domain.FastPoolBet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM fastpool_bets
		 WHERE pool_id = $1 AND processed = FALSE
		 ORDER BY created_at ASC`, poolID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unprocessed bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.FastPoolBet
	for rows.Next() {
		b, err := scanBetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListByUser returns bets for the given user with pagination and optional time filtering.
func (s *FastPoolBetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.FastPoolBet, error) {
	query := `SELECT ` + betSelectCols + ` FROM fastpool_bets WHERE user_id = $1`
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
		return nil, fmt.Errorf("postgres: list bets by user: %w", err)
	}
	defer rows.Close()

	var bets []domain.FastPoolBet
	for rows.Next() {
		b, err := scanBetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// MarkProcessed finalizes a bet, guarded on processed = FALSE.
func (s *FastPoolBetStore) MarkProcessed(ctx context.Context, id string, payout float64) error {
	const query = `
		UPDATE fastpool_bets SET
			processed     = TRUE,
			payout_amount = $2
		WHERE id = $1 AND processed = FALSE`

	tag, err := s.pool.Exec(ctx, query, id, payout)
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}
