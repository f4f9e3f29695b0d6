package domain

import "time"

// Reconciliation report severities. Severity classifies the magnitude of a
// discrepancy for operator triage; the validator never corrects anything.
const (
	SeverityOK     = "ok"
	SeverityMinor  = "minor"
	SeverityUrgent = "urgent"
)

// ReconciliationReport is the append-only audit record produced by one
// reconciliation pass over a single currency. Never mutated after creation.
type ReconciliationReport struct {
	ID                     string
	Currency               Currency
	TotalUsers             int64
	TotalBalanceObserved   float64 // live sum of account balances
	TotalBalanceFromLedger float64 // credits minus debits over the ledger
	Discrepancy            float64
	IsReconciled           bool
	Severity               string
	CheckedAt              time.Time
}
