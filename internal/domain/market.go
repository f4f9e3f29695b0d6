package domain

import "time"

// MarketStatus is the lifecycle state of a prediction market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a prediction market with a fixed set of outcome options. Stakes
// committed to each option form the pools that pay out pari-passu when the
// market resolves.
type Market struct {
	ID            string
	Title         string
	Category      string
	Options       []string
	Status        MarketStatus
	WinningOption string // set when resolved
	ClosesAt      time.Time
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// HasOption reports whether label is one of the market's outcome options.
func (m Market) HasOption(label string) bool {
	for _, o := range m.Options {
		if o == label {
			return true
		}
	}
	return false
}
