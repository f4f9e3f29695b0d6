// Package domain defines the entities, store interfaces, and invariants of the
// settlement engine. It has no dependencies on any concrete backend; postgres,
// redis, and s3 adapters implement the interfaces declared here.
package domain

import "time"

// Currency identifies one of the two balances held by an account.
type Currency string

const (
	// CurrencyCoin is the platform coin staked on markets and fast pools.
	CurrencyCoin Currency = "rioz"
	// CurrencyFiat is the fiat-equivalent balance used to buy and sell coin.
	CurrencyFiat Currency = "brl"
)

// Account holds a user's balances. Both balances are non-negative at every
// commit point and are mutated only through ledger-transaction application.
type Account struct {
	UserID           string
	AvailableBalance float64 // coin
	FiatBalance      float64
	UpdatedAt        time.Time
}

// Balance returns the balance for the given currency.
func (a Account) Balance(c Currency) float64 {
	if c == CurrencyFiat {
		return a.FiatBalance
	}
	return a.AvailableBalance
}
