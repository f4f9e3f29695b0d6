package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append inserts a ledger transaction.
func (s *LedgerStore) Append(ctx context.Context, tx domain.LedgerTransaction) error {
	const query = `
		INSERT INTO ledger_transactions (
			id, user_id, direction, amount, currency, description, ref_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		tx.ID, tx.UserID, string(tx.Direction), tx.Amount,
		string(tx.Currency), tx.Description, tx.RefID, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append ledger tx %s: %w", tx.ID, err)
	}
	return nil
}

// Remove deletes a ledger transaction. Compensation path only: it undoes a
// row appended moments earlier when a later step of the same sequence failed.
func (s *LedgerStore) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: remove ledger tx %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUser returns ledger transactions for the given user with pagination
// and optional time filtering.
func (s *LedgerStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LedgerTransaction, error) {
	query := `SELECT id, user_id, direction, amount, currency, description, ref_id, created_at
		FROM ledger_transactions WHERE user_id = $1`
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
		return nil, fmt.Errorf("postgres: list ledger txs: %w", err)
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		var direction, currency string

		if err := rows.Scan(
			&t.ID, &t.UserID, &direction, &t.Amount,
			&currency, &t.Description, &t.RefID, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger tx: %w", err)
		}
		t.Direction = domain.TxDirection(direction)
		t.Currency = domain.Currency(currency)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListBefore returns all ledger transactions created strictly before the
// cutoff, for archival.
func (s *LedgerStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, direction, amount, currency, description, ref_id, created_at
		 FROM ledger_transactions
		 WHERE created_at < $1
		 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger txs before: %w", err)
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		var direction, currency string

		if err := rows.Scan(
			&t.ID, &t.UserID, &direction, &t.Amount,
			&currency, &t.Description, &t.RefID, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger tx before: %w", err)
		}
		t.Direction = domain.TxDirection(direction)
		t.Currency = domain.Currency(currency)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Totals returns credits minus debits per currency over the whole ledger.
func (s *LedgerStore) Totals(ctx context.Context) (map[domain.Currency]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT currency,
		        COALESCE(SUM(CASE direction WHEN 'credit' THEN amount ELSE -amount END), 0)
		 FROM ledger_transactions
		 GROUP BY currency`)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[domain.Currency]float64)
	for rows.Next() {
		var currency string
		var net float64
		if err := rows.Scan(&currency, &net); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger total: %w", err)
		}
		totals[domain.Currency(currency)] = net
	}
	return totals, rows.Err()
}
