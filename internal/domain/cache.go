package domain

import (
	"context"
	"time"
)

// PriceCache stores the latest observed price per symbol together with its
// observation timestamp. The oracle feed writes it; the freshness gate reads
// the timestamp back out.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// LockManager provides distributed locks so overlapping settlement sweeps
// never process the same round twice. Acquire returns ErrLockHeld when the
// lock is taken, plus an unlock function that is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter is a sliding-window limiter keyed by caller-defined strings.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is the pub/sub channel for domain events. Publish must only be
// called after the corresponding datastore write commits.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
