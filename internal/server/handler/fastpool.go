package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// FastPoolService defines the methods the fast-pool handler requires from the
// scheduler.
type FastPoolService interface {
	PlaceBet(ctx context.Context, userID, poolID string, side domain.BetSide, stake float64) (domain.FastPoolBet, error)
}

// FastPoolHandler serves fast-pool round and bet endpoints.
type FastPoolHandler struct {
	svc    FastPoolService
	pools  domain.FastPoolStore
	bets   domain.FastPoolBetStore
	logger *slog.Logger
}

// NewFastPoolHandler creates a FastPoolHandler.
func NewFastPoolHandler(svc FastPoolService, pools domain.FastPoolStore, bets domain.FastPoolBetStore, logger *slog.Logger) *FastPoolHandler {
	return &FastPoolHandler{
		svc:    svc,
		pools:  pools,
		bets:   bets,
		logger: logger,
	}
}

// CurrentRound returns the active round for an asset/category pair.
// GET /api/fastpools/current?asset=BTCUSDT&category=crypto
func (h *FastPoolHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asset := q.Get("asset")
	category := q.Get("category")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset query parameter required")
		return
	}

	round, err := h.pools.ActiveRound(r.Context(), asset, category, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active round")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: current round failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load round")
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// History returns completed rounds, newest first.
// GET /api/fastpools/history?limit=50&offset=0
func (h *FastPoolHandler) History(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.pools.ListCompleted(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: round history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if rounds == nil {
		rounds = []domain.FastPool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// placeBetRequest is the JSON body for PlaceBet.
type placeBetRequest struct {
	PoolID string         `json:"pool_id"`
	Side   domain.BetSide `json:"side"`
	Stake  float64        `json:"stake"`
}

// PlaceBet stakes coin on the direction of the current round.
// POST /api/fastpools/bets
func (h *FastPoolHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PoolID == "" {
		writeError(w, http.StatusBadRequest, "pool_id is required")
		return
	}

	bet, err := h.svc.PlaceBet(r.Context(), uid, req.PoolID, req.Side, req.Stake)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "round not found")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "stake must be positive")
		case errors.Is(err, domain.ErrInvalidOption):
			writeError(w, http.StatusBadRequest, "side must be up or down")
		case errors.Is(err, domain.ErrBettingClosed):
			writeError(w, http.StatusConflict, "betting window is closed")
		case errors.Is(err, domain.ErrPoolPaused):
			writeError(w, http.StatusConflict, "round is paused")
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("user_id", uid),
				slog.String("pool_id", req.PoolID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// ListBets returns the caller's bets.
// GET /api/fastpools/bets?limit=50&offset=0
func (h *FastPoolHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	bets, err := h.bets.ListByUser(r.Context(), uid, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.FastPoolBet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
