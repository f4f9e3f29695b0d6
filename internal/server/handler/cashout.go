package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/riozmarkets/settlement/internal/cashout"
	"github.com/riozmarkets/settlement/internal/domain"
)

// CashoutService defines the methods the cashout handler requires.
type CashoutService interface {
	QuoteCashout(ctx context.Context, positionID string) (cashout.Quote, error)
	PerformCashout(ctx context.Context, positionID, userID string) (cashout.Quote, error)
}

// CashoutHandler serves early-exit quote and execution endpoints.
type CashoutHandler struct {
	svc    CashoutService
	logger *slog.Logger
}

// NewCashoutHandler creates a CashoutHandler.
func NewCashoutHandler(svc CashoutService, logger *slog.Logger) *CashoutHandler {
	return &CashoutHandler{svc: svc, logger: logger}
}

// Quote returns the current cashout value of an active position. The quote
// is informational only; the executed value is recomputed at perform time.
// GET /api/positions/{id}/cashout
func (h *CashoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	q, err := h.svc.QuoteCashout(r.Context(), id)
	if err != nil {
		h.writeCashoutError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Perform cashes out an active position at the current pool state.
// POST /api/positions/{id}/cashout
func (h *CashoutHandler) Perform(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	q, err := h.svc.PerformCashout(r.Context(), id, uid)
	if err != nil {
		h.writeCashoutError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *CashoutHandler) writeCashoutError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "position belongs to another user")
	case errors.Is(err, domain.ErrNotActive):
		writeError(w, http.StatusConflict, "position is not active")
	case errors.Is(err, domain.ErrMarketClosed):
		writeError(w, http.StatusConflict, "market already resolved")
	default:
		h.logger.ErrorContext(r.Context(), "handler: cashout failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cashout failed")
	}
}
