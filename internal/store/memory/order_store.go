package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// OrderStore is an in-memory domain.OrderStore.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

// Create inserts an order.
func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

// GetByID returns an order.
func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

// ListPending returns pending limit orders, oldest first.
func (s *OrderStore) ListPending(_ context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByUser returns a user's orders, newest first.
func (s *OrderStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// MarkFilled transitions pending -> filled with execution details.
func (s *OrderStore) MarkFilled(_ context.Context, id string, price, amountOut, fee float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != domain.OrderStatusPending {
		return domain.ErrNotPending
	}
	o.Status = domain.OrderStatusFilled
	o.Price = price
	o.AmountOut = amountOut
	o.Fee = fee
	o.ExecutedAt = &at
	s.orders[id] = o
	return nil
}

// UpdateStatus transitions pending -> to, guarded on pending.
func (s *OrderStore) UpdateStatus(_ context.Context, id string, to domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != domain.OrderStatusPending {
		return domain.ErrNotPending
	}
	o.Status = to
	o.ExecutedAt = &at
	s.orders[id] = o
	return nil
}
