package domain

import "time"

// PositionStatus is the lifecycle state of a market position. A position makes
// exactly one transition out of active; every terminal state is final.
type PositionStatus string

const (
	PositionStatusActive    PositionStatus = "active"
	PositionStatusWon       PositionStatus = "won"
	PositionStatusLost      PositionStatus = "lost"
	PositionStatusCashedOut PositionStatus = "cashed_out"
	PositionStatusCancelled PositionStatus = "cancelled"
)

// Position is a user's stake on one option of a prediction market. Stake is
// immutable after creation; positions are never deleted (audit requirement).
type Position struct {
	ID              string
	UserID          string
	MarketID        string
	OptionChosen    string
	Stake           float64
	EntryMultiplier float64 // payout multiplier observed at placement, informational
	Status          PositionStatus
	CreatedAt       time.Time
	SettledAt       *time.Time
}
