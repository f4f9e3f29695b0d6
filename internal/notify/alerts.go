package notify

import (
	"context"
	"fmt"

	"github.com/riozmarkets/settlement/internal/domain"
)

// Event types operators can filter on. These match the event names carried
// on the settlement pub/sub channels.
const (
	EventReconcileMismatch = "reconcile_mismatch"
	EventFeedPaused        = "feed_paused"
	EventSettleFailed      = "settle_failed"
)

// AlertReport formats and dispatches a reconciliation discrepancy alert.
func (n *Notifier) AlertReport(ctx context.Context, r domain.ReconciliationReport) error {
	title := fmt.Sprintf("Reconciliation %s: %s", r.Severity, r.Currency)
	message := fmt.Sprintf(
		"observed=%.2f ledger=%.2f discrepancy=%.2f users=%d",
		r.TotalBalanceObserved, r.TotalBalanceFromLedger, r.Discrepancy, r.TotalUsers,
	)
	return n.Notify(ctx, EventReconcileMismatch, title, message)
}

// AlertSettleFailed dispatches an alert when a settlement pass leaves failed
// payouts behind. Failed payouts are retried on the next sweep, so this is a
// heads-up, not a page.
func (n *Notifier) AlertSettleFailed(ctx context.Context, failed int) error {
	title := "Settlement sweep left failed payouts"
	message := fmt.Sprintf("failed=%d (will retry next sweep)", failed)
	return n.Notify(ctx, EventSettleFailed, title, message)
}

// AlertFeedPaused dispatches a feed-outage alert after fast pools for an
// asset were paused and refunded.
func (n *Notifier) AlertFeedPaused(ctx context.Context, assetSymbol string, res domain.RefundResult) error {
	title := fmt.Sprintf("Feed paused: %s", assetSymbol)
	message := fmt.Sprintf(
		"paused=%d refunded=%d failed=%d",
		res.PausedPools, res.RefundedBets, res.FailedBets,
	)
	return n.Notify(ctx, EventFeedPaused, title, message)
}
