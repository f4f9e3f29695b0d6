package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// ReportStore is an in-memory domain.ReportStore.
type ReportStore struct {
	mu      sync.Mutex
	reports []domain.ReconciliationReport
}

// NewReportStore creates an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Insert appends a report.
func (s *ReportStore) Insert(_ context.Context, r domain.ReconciliationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

// ListRecent returns the most recent reports, newest first.
func (s *ReportStore) ListRecent(_ context.Context, limit int) ([]domain.ReconciliationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ReconciliationReport, len(s.reports))
	copy(out, s.reports)
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// PriceCache is an in-memory domain.PriceCache.
type PriceCache struct {
	mu      sync.Mutex
	samples map[string]domain.PriceSample
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{samples: make(map[string]domain.PriceSample)}
}

// SetPrice stores the latest price for a symbol.
func (c *PriceCache) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[symbol] = domain.PriceSample{Symbol: symbol, Price: price, ObservedAt: ts}
	return nil
}

// GetPrice returns the latest price and observation time for a symbol.
func (c *PriceCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.samples[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return s.Price, s.ObservedAt, nil
}

// LockManager is an in-process domain.LockManager.
type LockManager struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]time.Time)}
}

// Acquire takes the lock for key unless it is held and unexpired.
func (m *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.held[key]; ok && time.Now().Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = time.Now().Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.held, key)
		})
	}
	return unlock, nil
}

// RateLimiter is a sliding-window domain.RateLimiter over in-process state.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{events: make(map[string][]time.Time)}
}

// Allow counts a request against the window, returning false when over limit.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	kept := r.events[key][:0]
	for _, t := range r.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		r.events[key] = kept
		return false, nil
	}
	r.events[key] = append(kept, now)
	return true, nil
}

// SignalBus is an in-process domain.SignalBus. Published payloads are fanned
// out to all live subscribers of the channel; wildcard subscriptions using a
// trailing "*" match by prefix, mirroring the redis implementation.
type SignalBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to matching subscribers without blocking; slow
// subscribers drop messages.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pattern, chans := range b.subs {
		if !channelMatch(pattern, channel) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a channel of payloads for the given channel or pattern.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func channelMatch(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(channel) >= len(prefix) && channel[:len(prefix)] == prefix
	}
	return false
}
