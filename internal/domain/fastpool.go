package domain

import "time"

// FastPoolStatus is the round state. Rounds move active -> processing ->
// completed exactly once; the paused flag is orthogonal and only freezes
// further bet acceptance.
type FastPoolStatus string

const (
	FastPoolStatusActive     FastPoolStatus = "active"
	FastPoolStatusProcessing FastPoolStatus = "processing"
	FastPoolStatusCompleted  FastPoolStatus = "completed"
)

// FastPoolResult is the outcome of a completed round, derived from the sign
// of closing price minus opening price.
type FastPoolResult string

const (
	FastPoolResultUp   FastPoolResult = "subiu"
	FastPoolResultDown FastPoolResult = "desceu"
	FastPoolResultFlat FastPoolResult = "manteve"
)

// BetSide is the direction of a fast-pool bet.
type BetSide string

const (
	BetSideUp   BetSide = "up"
	BetSideDown BetSide = "down"
)

// FastPool is a 60-second binary up/down round on a live asset price.
// RoundEnd is always exactly RoundStart plus 60 seconds; ClosingPrice is set
// only on the processing -> completed transition. Rounds are never deleted.
type FastPool struct {
	ID                 string
	Category           string
	AssetSymbol        string
	RoundStart         time.Time
	RoundEnd           time.Time
	OpeningPrice       float64
	ClosingPrice       *float64
	Status             FastPoolStatus
	Paused             bool
	BaseOdds           float64
	Result             FastPoolResult // set when completed
	PriceChangePercent float64        // set when completed
	CreatedAt          time.Time
}

// FastPoolBet is a single up/down bet on a round. Processed stays false until
// settlement or refund; PayoutAmount is computed once and immutable afterward
// (zero for losers, stake for refunds).
type FastPoolBet struct {
	ID              string
	UserID          string
	PoolID          string
	Side            BetSide
	Stake           float64
	OddsAtPlacement float64
	Processed       bool
	PayoutAmount    *float64
	CreatedAt       time.Time
}

// WinningSide maps a round result to the side that gets paid. The second
// return is false when nobody wins (flat close).
func (r FastPoolResult) WinningSide() (BetSide, bool) {
	switch r {
	case FastPoolResultUp:
		return BetSideUp, true
	case FastPoolResultDown:
		return BetSideDown, true
	default:
		return "", false
	}
}
