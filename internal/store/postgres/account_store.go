package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	const query = `
		INSERT INTO accounts (user_id, available_balance, fiat_balance, updated_at)
		VALUES ($1, $2, $3, NOW())`

	_, err := s.pool.Exec(ctx, query, acct.UserID, acct.AvailableBalance, acct.FiatBalance)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create account %s: %w", acct.UserID, err)
	}
	return nil
}

// Get retrieves an account by user ID.
func (s *AccountStore) Get(ctx context.Context, userID string) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, available_balance, fiat_balance, updated_at
		 FROM accounts WHERE user_id = $1`, userID,
	).Scan(&a.UserID, &a.AvailableBalance, &a.FiatBalance, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", userID, err)
	}
	return a, nil
}

// Adjust applies delta to one balance in a single guarded UPDATE. The WHERE
// clause refuses the write when the result would go negative, so concurrent
// debits can never overdraw an account.
func (s *AccountStore) Adjust(ctx context.Context, userID string, currency domain.Currency, delta float64) (domain.Account, error) {
	column := "available_balance"
	if currency == domain.CurrencyFiat {
		column = "fiat_balance"
	}

	query := fmt.Sprintf(`
		UPDATE accounts SET
			%[1]s      = ROUND((%[1]s + $2)::numeric, 2),
			updated_at = NOW()
		WHERE user_id = $1 AND %[1]s + $2 >= 0
		RETURNING user_id, available_balance, fiat_balance, updated_at`, column)

	var a domain.Account
	err := s.pool.QueryRow(ctx, query, userID, delta).
		Scan(&a.UserID, &a.AvailableBalance, &a.FiatBalance, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish a missing account from a refused overdraw.
			if _, gerr := s.Get(ctx, userID); gerr != nil {
				return domain.Account{}, gerr
			}
			return domain.Account{}, domain.ErrInsufficientBalance
		}
		return domain.Account{}, fmt.Errorf("postgres: adjust account %s: %w", userID, err)
	}
	return a, nil
}

// Totals returns the live sum of balances per currency and the account count.
func (s *AccountStore) Totals(ctx context.Context) (map[domain.Currency]float64, int64, error) {
	var coin, fiat float64
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(available_balance), 0),
		        COALESCE(SUM(fiat_balance), 0),
		        COUNT(*)
		 FROM accounts`,
	).Scan(&coin, &fiat, &count)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: account totals: %w", err)
	}
	return map[domain.Currency]float64{
		domain.CurrencyCoin: coin,
		domain.CurrencyFiat: fiat,
	}, count, nil
}
