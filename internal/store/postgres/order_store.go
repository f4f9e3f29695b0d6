package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, user_id, side, order_type, amount_in, currency_in,
	amount_out, limit_price, price, fee, status, created_at, executed_at`

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, orderType, currencyIn, status string

	err := row.Scan(
		&o.ID, &o.UserID, &side, &orderType,
		&o.AmountIn, &currencyIn, &o.AmountOut,
		&o.LimitPrice, &o.Price, &o.Fee,
		&status, &o.CreatedAt, &o.ExecutedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.CurrencyIn = domain.Currency(currencyIn)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, user_id, side, order_type, amount_in, currency_in,
			amount_out, limit_price, price, fee, status, created_at, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.UserID, string(o.Side), string(o.Type),
		o.AmountIn, string(o.CurrencyIn), o.AmountOut,
		o.LimitPrice, o.Price, o.Fee,
		string(o.Status), o.CreatedAt, o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order by its ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListPending returns all pending orders, oldest first so batch execution
// preserves placement order.
func (s *OrderStore) ListPending(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status = 'pending'
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns orders for the given user with pagination and optional time filtering.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE user_id = $1`
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
		return nil, fmt.Errorf("postgres: list orders by user: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by user: %w", err)
	}
	return orders, nil
}

// MarkFilled transitions a pending order to filled with its execution details.
func (s *OrderStore) MarkFilled(ctx context.Context, id string, price, amountOut, fee float64, at time.Time) error {
	const query = `
		UPDATE orders SET
			status      = 'filled',
			price       = $2,
			amount_out  = $3,
			fee         = $4,
			executed_at = $5
		WHERE id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, id, price, amountOut, fee, at)
	if err != nil {
		return fmt.Errorf("postgres: fill order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotPending
	}
	return nil
}

// UpdateStatus transitions a pending order to a terminal status.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus, at time.Time) error {
	const query = `
		UPDATE orders SET
			status      = $2,
			executed_at = $3
		WHERE id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, id, string(to), at)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotPending
	}
	return nil
}
