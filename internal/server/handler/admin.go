package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/riozmarkets/settlement/internal/domain"
)

// SettlementService defines the settlement operations reachable through the
// admin surface.
type SettlementService interface {
	SettleMarket(ctx context.Context, marketID, winningOption string) (domain.SettlementResult, error)
}

// PauseService defines the feed-outage operations reachable through the admin
// surface.
type PauseService interface {
	PauseAndRefund(ctx context.Context, assetSymbol string) (domain.RefundResult, error)
}

// Reconciler defines the reconciliation operations reachable through the
// admin surface.
type Reconciler interface {
	Validate(ctx context.Context) ([]domain.ReconciliationReport, error)
}

// AdminHandler serves HMAC-authenticated settlement-control endpoints.
type AdminHandler struct {
	settler    SettlementService
	pauser     PauseService
	reconciler Reconciler
	reports    domain.ReportStore
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(settler SettlementService, pauser PauseService, reconciler Reconciler, reports domain.ReportStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		settler:    settler,
		pauser:     pauser,
		reconciler: reconciler,
		reports:    reports,
		logger:     logger,
	}
}

// resolveMarketRequest is the JSON body for ResolveMarket.
type resolveMarketRequest struct {
	WinningOption string `json:"winning_option"`
}

// ResolveMarket settles a prediction market: pays winners pari-passu, marks
// losers, and resolves the market. Safe to retry.
// POST /api/admin/markets/{id}/resolve
func (h *AdminHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.WinningOption == "" {
		writeError(w, http.StatusBadRequest, "winning_option is required")
		return
	}

	result, err := h.settler.SettleMarket(r.Context(), id, req.WinningOption)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrInvalidOption):
			writeError(w, http.StatusBadRequest, "unknown market option")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "settlement failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// pauseAssetRequest is the JSON body for PauseAsset.
type pauseAssetRequest struct {
	Asset string `json:"asset"`
}

// PauseAsset pauses all active rounds for an asset and refunds open bets.
// POST /api/admin/fastpools/pause
func (h *AdminHandler) PauseAsset(w http.ResponseWriter, r *http.Request) {
	var req pauseAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}

	result, err := h.pauser.PauseAndRefund(r.Context(), req.Asset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: pause asset failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "pause failed")
		return
	}

	status := http.StatusOK
	if !result.Success {
		// Partial failure: some bets could not be refunded and will be
		// retried; surface it so the operator investigates.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// RunReconciliation triggers an immediate reconciliation pass and returns the
// resulting reports.
// POST /api/admin/reconciliation/run
func (h *AdminHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reconciler.Validate(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: reconciliation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// ListReports returns recent reconciliation reports, newest first.
// GET /api/admin/reconciliation/reports?limit=50
func (h *AdminHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	reports, err := h.reports.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reports failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []domain.ReconciliationReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
