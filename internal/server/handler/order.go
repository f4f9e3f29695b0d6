package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/executor"
)

// OrderService defines the methods the order handler requires from the
// executor service.
type OrderService interface {
	ExecuteMarketOrder(ctx context.Context, userID string, side domain.OrderSide, amount float64, sample domain.PriceSample) (executor.MarketOrderResult, error)
	PlaceLimitOrder(ctx context.Context, userID string, side domain.OrderSide, amount, limitPrice float64) (executor.LimitOrderResult, error)
	CancelLimitOrder(ctx context.Context, orderID, userID string) error
}

// OrderHandler serves coin/fiat exchange order endpoints.
type OrderHandler struct {
	svc    OrderService
	orders domain.OrderStore
	oracle domain.PriceOracle
	symbol string // reference symbol for the coin/fiat rate
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. symbol names the oracle feed used
// as the coin/fiat reference price.
func NewOrderHandler(svc OrderService, orders domain.OrderStore, oracle domain.PriceOracle, symbol string, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		svc:    svc,
		orders: orders,
		oracle: oracle,
		symbol: symbol,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for PlaceOrder.
type placeOrderRequest struct {
	Side       domain.OrderSide `json:"side"`
	Type       domain.OrderType `json:"type"`
	Amount     float64          `json:"amount"`
	LimitPrice float64          `json:"limit_price,omitempty"`
}

// PlaceOrder executes a market order immediately or rests a limit order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		result, err := h.svc.PlaceLimitOrder(r.Context(), uid, req.Side, req.Amount, req.LimitPrice)
		if err != nil {
			h.writeOrderError(w, r, uid, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	case domain.OrderTypeMarket, "":
		sample, err := h.oracle.GetCurrentPrice(r.Context(), h.symbol)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: reference price unavailable",
				slog.String("symbol", h.symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, "reference price unavailable")
			return
		}
		result, err := h.svc.ExecuteMarketOrder(r.Context(), uid, req.Side, req.Amount, sample)
		if err != nil {
			h.writeOrderError(w, r, uid, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	default:
		writeError(w, http.StatusBadRequest, "type must be market or limit")
	}
}

func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, uid string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, domain.ErrStalePrice):
		writeError(w, http.StatusServiceUnavailable, "reference price is stale")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		h.logger.ErrorContext(r.Context(), "handler: place order failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place order")
	}
}

// CancelOrder cancels a pending limit order, refunding the reserve minus the
// cancellation fee.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if err := h.svc.CancelLimitOrder(r.Context(), id, uid); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrNotOwner):
			writeError(w, http.StatusForbidden, "order belongs to another user")
		case errors.Is(err, domain.ErrNotPending):
			writeError(w, http.StatusConflict, "order is no longer pending")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
		"at":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ListOrders returns the caller's orders.
// GET /api/orders?limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), uid, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
