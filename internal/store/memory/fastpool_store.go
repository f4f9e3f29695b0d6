package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// FastPoolStore is an in-memory domain.FastPoolStore.
type FastPoolStore struct {
	mu    sync.Mutex
	pools map[string]domain.FastPool
}

// NewFastPoolStore creates an empty FastPoolStore.
func NewFastPoolStore() *FastPoolStore {
	return &FastPoolStore{pools: make(map[string]domain.FastPool)}
}

// Create inserts a round.
func (s *FastPoolStore) Create(_ context.Context, p domain.FastPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.pools[p.ID] = p
	return nil
}

// GetByID returns a round.
func (s *FastPoolStore) GetByID(_ context.Context, id string) (domain.FastPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return domain.FastPool{}, domain.ErrNotFound
	}
	return p, nil
}

// ActiveRound returns the active, non-expired round for an asset/category.
func (s *FastPoolStore) ActiveRound(_ context.Context, assetSymbol, category string, now time.Time) (domain.FastPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		if p.AssetSymbol == assetSymbol && p.Category == category &&
			p.Status == domain.FastPoolStatusActive && now.Before(p.RoundEnd) {
			return p, nil
		}
	}
	return domain.FastPool{}, domain.ErrNotFound
}

// ListDue returns active rounds whose end has passed. Paused rounds are
// excluded: their open bets belong to the refund path, not settlement.
func (s *FastPoolStore) ListDue(_ context.Context, now time.Time) ([]domain.FastPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FastPool
	for _, p := range s.pools {
		if p.Status == domain.FastPoolStatusActive && !p.Paused && !now.Before(p.RoundEnd) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundEnd.Before(out[j].RoundEnd) })
	return out, nil
}

// ListActiveByAsset returns active rounds for an asset.
func (s *FastPoolStore) ListActiveByAsset(_ context.Context, assetSymbol string) ([]domain.FastPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FastPool
	for _, p := range s.pools {
		if p.AssetSymbol == assetSymbol && p.Status == domain.FastPoolStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundStart.Before(out[j].RoundStart) })
	return out, nil
}

// ListCompleted returns completed rounds, newest first.
func (s *FastPoolStore) ListCompleted(_ context.Context, opts domain.ListOpts) ([]domain.FastPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FastPool
	for _, p := range s.pools {
		if p.Status == domain.FastPoolStatusCompleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundEnd.After(out[j].RoundEnd) })
	return paginate(out, opts), nil
}

// MarkProcessing transitions active -> processing, guarded on active.
func (s *FastPoolStore) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok || p.Status != domain.FastPoolStatusActive {
		return domain.ErrNotFound
	}
	p.Status = domain.FastPoolStatusProcessing
	s.pools[id] = p
	return nil
}

// Reactivate transitions processing -> active, guarded on processing.
func (s *FastPoolStore) Reactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok || p.Status != domain.FastPoolStatusProcessing {
		return domain.ErrNotFound
	}
	p.Status = domain.FastPoolStatusActive
	s.pools[id] = p
	return nil
}

// Complete transitions processing -> completed with the round outcome.
func (s *FastPoolStore) Complete(_ context.Context, id string, closingPrice float64, result domain.FastPoolResult, changePct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok || p.Status != domain.FastPoolStatusProcessing {
		return domain.ErrNotFound
	}
	p.Status = domain.FastPoolStatusCompleted
	p.ClosingPrice = &closingPrice
	p.Result = result
	p.PriceChangePercent = changePct
	s.pools[id] = p
	return nil
}

// SetPaused flips the paused flag.
func (s *FastPoolStore) SetPaused(_ context.Context, id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Paused = paused
	s.pools[id] = p
	return nil
}

// FastPoolBetStore is an in-memory domain.FastPoolBetStore.
type FastPoolBetStore struct {
	mu   sync.Mutex
	bets map[string]domain.FastPoolBet
}

// NewFastPoolBetStore creates an empty FastPoolBetStore.
func NewFastPoolBetStore() *FastPoolBetStore {
	return &FastPoolBetStore{bets: make(map[string]domain.FastPoolBet)}
}

// Create inserts a bet.
func (s *FastPoolBetStore) Create(_ context.Context, b domain.FastPoolBet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.bets[b.ID] = b
	return nil
}

// GetByID returns a bet.
func (s *FastPoolBetStore) GetByID(_ context.Context, id string) (domain.FastPoolBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.FastPoolBet{}, domain.ErrNotFound
	}
	return b, nil
}

// ListUnprocessedByPool returns unprocessed bets for a round, oldest first.
func (s *FastPoolBetStore) ListUnprocessedByPool(_ context.Context, poolID string) ([]domain.FastPoolBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FastPoolBet
	for _, b := range s.bets {
		if b.PoolID == poolID && !b.Processed {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByUser returns a user's bets, newest first.
func (s *FastPoolBetStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.FastPoolBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.FastPoolBet
	for _, b := range s.bets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// MarkProcessed finalizes a bet's payout, guarded on processed=false.
func (s *FastPoolBetStore) MarkProcessed(_ context.Context, id string, payout float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Processed {
		return domain.ErrAlreadyProcessed
	}
	b.Processed = true
	b.PayoutAmount = &payout
	s.bets[id] = b
	return nil
}
