package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/riozmarkets/settlement/internal/domain"
)

// WalletHandler serves balance and ledger endpoints.
type WalletHandler struct {
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	logger   *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(accounts domain.AccountStore, ledger domain.LedgerStore, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		accounts: accounts,
		ledger:   ledger,
		logger:   logger,
	}
}

// GetBalances returns the caller's coin and fiat balances.
// GET /api/wallet
func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	acct, err := h.accounts.Get(r.Context(), uid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get balances failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load balances")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      acct.UserID,
		"coin_balance": acct.AvailableBalance,
		"fiat_balance": acct.FiatBalance,
		"updated_at":   acct.UpdatedAt,
	})
}

// ListTransactions returns the caller's ledger history, newest first.
// GET /api/wallet/transactions?limit=50&offset=0
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing user identity")
		return
	}

	txs, err := h.ledger.ListByUser(r.Context(), uid, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list transactions failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []domain.LedgerTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
