package domain

import (
	"context"
	"time"
)

// PriceSample is a reference price observation. ObservedAt is the feed-side
// observation time and is what the freshness gate inspects; execution code
// must never accept a sample without checking its age.
type PriceSample struct {
	Symbol     string
	Price      float64
	ObservedAt time.Time
}

// Age returns how old the sample is at now.
func (s PriceSample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// Fresh reports whether the sample is younger than maxAge at now.
func (s PriceSample) Fresh(maxAge time.Duration, now time.Time) bool {
	return s.Age(now) <= maxAge
}

// PriceOracle supplies the current reference price for a traded symbol.
type PriceOracle interface {
	GetCurrentPrice(ctx context.Context, symbol string) (PriceSample, error)
}
