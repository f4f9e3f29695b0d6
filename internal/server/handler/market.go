package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/pool"
)

// MarketService defines the methods the market handler requires from the
// executor service.
type MarketService interface {
	PoolSnapshot(ctx context.Context, marketID string) (pool.Snapshot, error)
	PlacePosition(ctx context.Context, userID, marketID, option string, stake float64) (domain.Position, error)
}

// MarketHandler serves market and position endpoints.
type MarketHandler struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	svc       MarketService
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets domain.MarketStore, positions domain.PositionStore, svc MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:   markets,
		positions: positions,
		svc:       svc,
		logger:    logger,
	}
}

// ListMarkets returns open markets.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListOpen(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	m, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPools returns the live pool snapshot for a market: per-option totals,
// percentages, and payout multipliers.
// GET /api/markets/{id}/pools
func (h *MarketHandler) GetPools(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	snap, err := h.svc.PoolSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: pool snapshot failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute pools")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// placePositionRequest is the JSON body for PlacePosition.
type placePositionRequest struct {
	MarketID string  `json:"market_id"`
	Option   string  `json:"option"`
	Stake    float64 `json:"stake"`
}

// PlacePosition stakes coin on one option of an open market.
// POST /api/positions
func (h *MarketHandler) PlacePosition(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	var req placePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" || req.Option == "" {
		writeError(w, http.StatusBadRequest, "market_id and option are required")
		return
	}

	p, err := h.svc.PlacePosition(r.Context(), uid, req.MarketID, req.Option, req.Stake)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketClosed):
			writeError(w, http.StatusConflict, "market is closed")
		case errors.Is(err, domain.ErrInvalidOption):
			writeError(w, http.StatusBadRequest, "unknown market option")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "stake must be positive")
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place position failed",
				slog.String("user_id", uid),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place position")
		}
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// ListPositions returns the caller's positions.
// GET /api/positions?limit=50&offset=0
func (h *MarketHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	positions, err := h.positions.ListByUser(r.Context(), uid, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}
