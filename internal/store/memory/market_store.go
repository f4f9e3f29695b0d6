package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

// Create inserts a market.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

// GetByID returns a market.
func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// ListOpen returns open markets.
func (s *MarketStore) ListOpen(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusOpen {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// Resolve transitions an open market to resolved, guarded on status.
func (s *MarketStore) Resolve(_ context.Context, id, winningOption string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok || m.Status != domain.MarketStatusOpen {
		return domain.ErrNotFound
	}
	m.Status = domain.MarketStatusResolved
	m.WinningOption = winningOption
	m.ResolvedAt = &at
	s.markets[id] = m
	return nil
}

// PositionStore is an in-memory domain.PositionStore.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

// Create inserts a position.
func (s *PositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[p.ID] = p
	return nil
}

// GetByID returns a position.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

// ListActiveByMarket returns all active positions for a market.
func (s *PositionStore) ListActiveByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID && p.Status == domain.PositionStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByMarket returns every position for a market regardless of status.
func (s *PositionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByUser returns a user's positions, newest first.
func (s *PositionStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// Transition moves a position between statuses, guarded on the current one.
func (s *PositionStore) Transition(_ context.Context, id string, from, to domain.PositionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrNotActive
	}
	p.Status = to
	if to != domain.PositionStatusActive {
		p.SettledAt = &at
	}
	s.positions[id] = p
	return nil
}
