package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/store/memory"
)

type captureAlerter struct {
	reports []domain.ReconciliationReport
}

func (a *captureAlerter) AlertReport(_ context.Context, r domain.ReconciliationReport) error {
	a.reports = append(a.reports, r)
	return nil
}

type fixture struct {
	accounts *memory.AccountStore
	ledger   *memory.LedgerStore
	reports  *memory.ReportStore
	alerter  *captureAlerter
	v        *Validator
}

func newFixture(t *testing.T, urgentThreshold float64) *fixture {
	t.Helper()
	f := &fixture{
		accounts: memory.NewAccountStore(),
		ledger:   memory.NewLedgerStore(),
		reports:  memory.NewReportStore(),
		alerter:  &captureAlerter{},
	}
	f.v = NewValidator(
		f.accounts, f.ledger, f.reports, memory.NewSignalBus(), f.alerter,
		urgentThreshold, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

// credit books a balance the consistent way: account credit plus its ledger
// row, so the two sides of the reconciliation agree.
func (f *fixture) credit(t *testing.T, userID string, currency domain.Currency, amount float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.accounts.Get(ctx, userID); err != nil {
		require.NoError(t, f.accounts.Create(ctx, domain.Account{UserID: userID}))
	}
	_, err := f.accounts.Adjust(ctx, userID, currency, amount)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Append(ctx, domain.LedgerTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Direction: domain.TxCredit,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}))
}

// drift moves a balance without a ledger row, producing a discrepancy of
// exactly amount.
func (f *fixture) drift(t *testing.T, userID string, currency domain.Currency, amount float64) {
	t.Helper()
	_, err := f.accounts.Adjust(context.Background(), userID, currency, amount)
	require.NoError(t, err)
}

func TestValidate_BalancedBooks(t *testing.T) {
	f := newFixture(t, 0)
	f.credit(t, "alice", domain.CurrencyCoin, 150)
	f.credit(t, "alice", domain.CurrencyFiat, 80)
	f.credit(t, "bob", domain.CurrencyCoin, 50)

	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	for _, r := range reports {
		require.True(t, r.IsReconciled, "currency %s", r.Currency)
		require.Equal(t, domain.SeverityOK, r.Severity)
		require.Equal(t, int64(2), r.TotalUsers)
	}
	require.Empty(t, f.alerter.reports)

	// One report per currency persisted for the audit trail.
	persisted, err := f.reports.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
}

func TestValidate_MinorDiscrepancy(t *testing.T) {
	f := newFixture(t, 100)
	f.credit(t, "alice", domain.CurrencyCoin, 150)
	f.drift(t, "alice", domain.CurrencyCoin, 5)

	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)

	var coin domain.ReconciliationReport
	for _, r := range reports {
		if r.Currency == domain.CurrencyCoin {
			coin = r
		}
	}
	require.False(t, coin.IsReconciled)
	require.Equal(t, domain.SeverityMinor, coin.Severity)
	require.InDelta(t, 5.0, coin.Discrepancy, 1e-9)
	require.Equal(t, 155.0, coin.TotalBalanceObserved)
	require.Equal(t, 150.0, coin.TotalBalanceFromLedger)

	require.Len(t, f.alerter.reports, 1)
	require.Equal(t, domain.CurrencyCoin, f.alerter.reports[0].Currency)
}

func TestValidate_UrgentDiscrepancy(t *testing.T) {
	f := newFixture(t, 100)
	f.credit(t, "alice", domain.CurrencyFiat, 1000)
	f.drift(t, "alice", domain.CurrencyFiat, 500)

	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)

	for _, r := range reports {
		if r.Currency != domain.CurrencyFiat {
			continue
		}
		require.Equal(t, domain.SeverityUrgent, r.Severity)
	}
	require.Len(t, f.alerter.reports, 1)
}

func TestValidate_NegativeDriftDetected(t *testing.T) {
	f := newFixture(t, 100)
	f.credit(t, "alice", domain.CurrencyCoin, 150)
	f.drift(t, "alice", domain.CurrencyCoin, -10)

	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)

	for _, r := range reports {
		if r.Currency != domain.CurrencyCoin {
			continue
		}
		require.False(t, r.IsReconciled)
		require.InDelta(t, -10.0, r.Discrepancy, 1e-9)
		require.Equal(t, domain.SeverityMinor, r.Severity)
	}
}

func TestValidate_EpsilonAbsorbsRounding(t *testing.T) {
	f := newFixture(t, 100)
	f.credit(t, "alice", domain.CurrencyCoin, 150)
	f.drift(t, "alice", domain.CurrencyCoin, 0.005)

	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)

	for _, r := range reports {
		require.True(t, r.IsReconciled, "currency %s", r.Currency)
	}
	require.Empty(t, f.alerter.reports)
}

func TestValidate_NilAlerter(t *testing.T) {
	f := newFixture(t, 100)
	f.v = NewValidator(
		f.accounts, f.ledger, f.reports, memory.NewSignalBus(), nil,
		0, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	f.credit(t, "alice", domain.CurrencyCoin, 150)
	f.drift(t, "alice", domain.CurrencyCoin, 50)

	// A mismatch with no alert channel still produces the report.
	reports, err := f.v.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
}
