package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riozmarkets/settlement/internal/domain"
)

// ReportStore implements domain.ReportStore using PostgreSQL.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a new ReportStore backed by the given connection pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Insert appends a reconciliation report. Reports are never updated.
func (s *ReportStore) Insert(ctx context.Context, r domain.ReconciliationReport) error {
	const query = `
		INSERT INTO reconciliation_reports (
			id, currency, total_users, total_balance_observed,
			total_balance_from_ledger, discrepancy, is_reconciled,
			severity, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Currency), r.TotalUsers,
		r.TotalBalanceObserved, r.TotalBalanceFromLedger,
		r.Discrepancy, r.IsReconciled, r.Severity, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert report %s: %w", r.ID, err)
	}
	return nil
}

// ListBefore returns all reports checked strictly before the cutoff, for
// archival.
func (s *ReportStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ReconciliationReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, currency, total_users, total_balance_observed,
		        total_balance_from_ledger, discrepancy, is_reconciled,
		        severity, checked_at
		 FROM reconciliation_reports
		 WHERE checked_at < $1
		 ORDER BY checked_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports before: %w", err)
	}
	defer rows.Close()

	var reports []domain.ReconciliationReport
	for rows.Next() {
		var r domain.ReconciliationReport
		var currency string

		if err := rows.Scan(
			&r.ID, &currency, &r.TotalUsers,
			&r.TotalBalanceObserved, &r.TotalBalanceFromLedger,
			&r.Discrepancy, &r.IsReconciled, &r.Severity, &r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan report before: %w", err)
		}
		r.Currency = domain.Currency(currency)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ListRecent returns the most recent reports, newest first.
func (s *ReportStore) ListRecent(ctx context.Context, limit int) ([]domain.ReconciliationReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, currency, total_users, total_balance_observed,
		        total_balance_from_ledger, discrepancy, is_reconciled,
		        severity, checked_at
		 FROM reconciliation_reports
		 ORDER BY checked_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.ReconciliationReport
	for rows.Next() {
		var r domain.ReconciliationReport
		var currency string

		if err := rows.Scan(
			&r.ID, &currency, &r.TotalUsers,
			&r.TotalBalanceObserved, &r.TotalBalanceFromLedger,
			&r.Discrepancy, &r.IsReconciled, &r.Severity, &r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		r.Currency = domain.Currency(currency)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
