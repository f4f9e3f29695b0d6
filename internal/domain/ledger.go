package domain

import "time"

// TxDirection is the sign of a ledger transaction.
type TxDirection string

const (
	TxCredit TxDirection = "credit"
	TxDebit  TxDirection = "debit"
)

// LedgerTransaction is one row of the append-only ledger. Every balance
// mutation must have a matching transaction row; the reconciliation validator
// recomputes all balances from this stream and nothing else.
type LedgerTransaction struct {
	ID          string
	UserID      string
	Direction   TxDirection
	Amount      float64
	Currency    Currency
	Description string
	RefID       *string // the market, order, pool, or bet this row belongs to, when applicable
	CreatedAt   time.Time
}

// Signed returns the amount with the direction applied: positive for credits,
// negative for debits.
func (t LedgerTransaction) Signed() float64 {
	if t.Direction == TxDebit {
		return -t.Amount
	}
	return t.Amount
}
