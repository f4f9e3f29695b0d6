// Package reconcile verifies that the live sum of account balances matches
// the balance derived from the append-only ledger. It is strictly
// detection-only: the validator reads balances and transactions, writes
// reports, and alerts operators, but never mutates a balance or a ledger row.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
)

const (
	// Epsilon absorbs float rounding across ledger application. It is not a
	// business tolerance: a real discrepancy is reported however small.
	Epsilon = 0.01
	// defaultUrgentThreshold classifies a discrepancy as urgent.
	defaultUrgentThreshold = 100.0
)

// Alerter receives discrepancy notifications. Satisfied by notify.Notifier.
type Alerter interface {
	AlertReport(ctx context.Context, r domain.ReconciliationReport) error
}

// Validator runs reconciliation sweeps.
type Validator struct {
	accounts        domain.AccountStore
	ledger          domain.LedgerStore
	reports         domain.ReportStore
	bus             domain.SignalBus
	alerter         Alerter
	urgentThreshold float64
	logger          *slog.Logger
}

// NewValidator creates a Validator. alerter may be nil when no notification
// channel is configured. urgentThreshold classifies discrepancies for
// alerting; zero falls back to the default.
func NewValidator(
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	reports domain.ReportStore,
	bus domain.SignalBus,
	alerter Alerter,
	urgentThreshold float64,
	logger *slog.Logger,
) *Validator {
	if urgentThreshold <= 0 {
		urgentThreshold = defaultUrgentThreshold
	}
	return &Validator{
		accounts:        accounts,
		ledger:          ledger,
		reports:         reports,
		bus:             bus,
		alerter:         alerter,
		urgentThreshold: urgentThreshold,
		logger:          logger.With(slog.String("component", "reconcile")),
	}
}

// Validate recomputes per-currency totals from the ledger stream, compares
// them against the live account balances, and persists one report per
// currency. Mismatches are classified and alerted, never corrected here:
// remediation is a separate manual process.
func (v *Validator) Validate(ctx context.Context) ([]domain.ReconciliationReport, error) {
	observed, users, err := v.accounts.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: account totals: %w", err)
	}
	derived, err := v.ledger.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: ledger totals: %w", err)
	}

	now := time.Now().UTC()
	reports := make([]domain.ReconciliationReport, 0, len(observed))

	for _, currency := range []domain.Currency{domain.CurrencyCoin, domain.CurrencyFiat} {
		discrepancy := observed[currency] - derived[currency]
		report := domain.ReconciliationReport{
			ID:                     uuid.New().String(),
			Currency:               currency,
			TotalUsers:             users,
			TotalBalanceObserved:   observed[currency],
			TotalBalanceFromLedger: derived[currency],
			Discrepancy:            discrepancy,
			IsReconciled:           math.Abs(discrepancy) <= Epsilon,
			Severity:               v.severity(discrepancy),
			CheckedAt:              now,
		}

		if err := v.reports.Insert(ctx, report); err != nil {
			return reports, fmt.Errorf("reconcile: persist report: %w", err)
		}
		reports = append(reports, report)

		if report.IsReconciled {
			v.logger.DebugContext(ctx, "reconciled",
				slog.String("currency", string(currency)),
				slog.Float64("total", report.TotalBalanceObserved),
				slog.Int64("users", users),
			)
			continue
		}

		v.logger.ErrorContext(ctx, "reconciliation discrepancy",
			slog.String("currency", string(currency)),
			slog.Float64("observed", report.TotalBalanceObserved),
			slog.Float64("from_ledger", report.TotalBalanceFromLedger),
			slog.Float64("discrepancy", discrepancy),
			slog.String("severity", report.Severity),
		)
		v.alert(ctx, report)
	}

	return reports, nil
}

func (v *Validator) severity(discrepancy float64) string {
	abs := math.Abs(discrepancy)
	switch {
	case abs <= Epsilon:
		return domain.SeverityOK
	case abs >= v.urgentThreshold:
		return domain.SeverityUrgent
	default:
		return domain.SeverityMinor
	}
}

func (v *Validator) alert(ctx context.Context, r domain.ReconciliationReport) {
	ev := domain.NewEvent(domain.EventReconciliationAlert, "", map[string]any{
		"currency":    string(r.Currency),
		"discrepancy": r.Discrepancy,
		"severity":    r.Severity,
		"report_id":   r.ID,
	})
	if err := v.bus.Publish(ctx, domain.ChannelAlerts, ev.Marshal()); err != nil {
		v.logger.WarnContext(ctx, "alert publish failed", slog.String("error", err.Error()))
	}

	if v.alerter == nil {
		return
	}
	if err := v.alerter.AlertReport(ctx, r); err != nil {
		v.logger.WarnContext(ctx, "alert notify failed", slog.String("error", err.Error()))
	}
}
