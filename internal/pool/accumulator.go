// Package pool computes pari-passu pool snapshots from open positions.
// Everything here is a pure function of its inputs: no stores, no clocks, no
// side effects, so the same set of positions always produces the same odds.
package pool

import "github.com/riozmarkets/settlement/internal/domain"

// OptionPool is the aggregate state of one outcome option.
type OptionPool struct {
	Label            string  `json:"label"`
	Pool             float64 `json:"pool"`
	Percent          float64 `json:"percent"`
	Bettors          int     `json:"bettors"`
	PayoutMultiplier float64 `json:"payout_multiplier"`
}

// Snapshot is the derived pool state of a market. It is recomputed on demand
// from active positions and never persisted as a source of truth.
type Snapshot struct {
	MarketID   string       `json:"market_id"`
	Options    []OptionPool `json:"options"`
	TotalPool  float64      `json:"total_pool"`
	FeePercent float64      `json:"fee_percent"`
}

// Multiplier returns the payout multiplier for the given option label,
// defaulting to 1 when the option is unknown.
func (s Snapshot) Multiplier(label string) float64 {
	for _, o := range s.Options {
		if o.Label == label {
			return o.PayoutMultiplier
		}
	}
	return 1
}

// Compute aggregates active positions into per-option pools and payout
// multipliers. feePercent is a fraction (0.20 for a 20% fee) taken only from
// the losing side's contribution:
//
//	multiplier = max(1, (total - fee*(total - pool)) / pool)
//
// An option with no stake, or a market where only one side is funded, gets a
// multiplier of exactly 1: there is nobody to pay the winners from.
func Compute(marketID string, options []string, positions []domain.Position, feePercent float64) Snapshot {
	return compute(marketID, options, positions, feePercent, func(p domain.Position) bool {
		return p.Status == domain.PositionStatusActive
	})
}

// ComputeAtResolution is the settlement-time variant. It rebuilds the pools
// from every position that stayed in until resolution (active, won, or lost),
// so a retried settlement pass reproduces the exact multipliers of the first
// even after some winners were already paid. Cashed-out and cancelled
// positions left the pool before resolution and are excluded.
func ComputeAtResolution(marketID string, options []string, positions []domain.Position, feePercent float64) Snapshot {
	return compute(marketID, options, positions, feePercent, func(p domain.Position) bool {
		switch p.Status {
		case domain.PositionStatusActive, domain.PositionStatusWon, domain.PositionStatusLost:
			return true
		default:
			return false
		}
	})
}

func compute(marketID string, options []string, positions []domain.Position, feePercent float64, include func(domain.Position) bool) Snapshot {
	totals := make(map[string]float64, len(options))
	bettors := make(map[string]int, len(options))

	known := make(map[string]bool, len(options))
	for _, label := range options {
		known[label] = true
	}

	// A position on a label the market no longer lists must not inflate the
	// total: every unit counted in TotalPool has to land in an option row.
	var total float64
	for _, p := range positions {
		if !include(p) || !known[p.OptionChosen] {
			continue
		}
		totals[p.OptionChosen] += p.Stake
		bettors[p.OptionChosen]++
		total += p.Stake
	}

	snap := Snapshot{
		MarketID:   marketID,
		Options:    make([]OptionPool, 0, len(options)),
		TotalPool:  total,
		FeePercent: feePercent,
	}

	for _, label := range options {
		op := OptionPool{
			Label:            label,
			Pool:             totals[label],
			Bettors:          bettors[label],
			PayoutMultiplier: 1,
		}
		if total > 0 {
			op.Percent = 100 * op.Pool / total
		}
		if op.Pool > 0 {
			m := (total - feePercent*(total-op.Pool)) / op.Pool
			if m > 1 {
				op.PayoutMultiplier = m
			}
		}
		snap.Options = append(snap.Options, op)
	}

	return snap
}
