package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riozmarkets/settlement/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs time-ranged read access, not the full domain store
// interfaces. The Postgres stores satisfy these through their ListBefore /
// ListCompletedBefore methods.
// ---------------------------------------------------------------------------

// RoundArchiveStore provides read access to completed fast-pool rounds for
// archival purposes.
type RoundArchiveStore interface {
	ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.FastPool, error)
}

// LedgerArchiveStore provides read access to ledger transactions for archival
// purposes.
type LedgerArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerTransaction, error)
}

// ReportArchiveStore provides read access to reconciliation reports for
// archival purposes.
type ReportArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ReconciliationReport, error)
}

// ledgerMultipartSize is the part size for the ledger export upload. The
// ledger is the one stream that grows without bound.
const ledgerMultipartSize int64 = 8 * 1024 * 1024

// Archiver exports settlement history to object storage as JSONL, partitioned
// by year-month. It only reads; pruning archived rows from the primary store
// is a separate, explicit step to be executed after the archive has been
// verified.
type Archiver struct {
	writer  domain.BlobWriter
	rounds  RoundArchiveStore
	ledger  LedgerArchiveStore
	reports ReportArchiveStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	rounds RoundArchiveStore,
	ledger LedgerArchiveStore,
	reports ReportArchiveStore,
) *Archiver {
	return &Archiver{
		writer:  writer,
		rounds:  rounds,
		ledger:  ledger,
		reports: reports,
	}
}

// ArchiveRounds uploads all fast-pool rounds completed before the cutoff to
// archive/rounds/YYYY-MM.jsonl and returns the archived record count.
func (a *Archiver) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	rounds, err := a.rounds.ListCompletedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}

	path := archivePath("rounds", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}
	return int64(len(rounds)), nil
}

// ArchiveLedger uploads all ledger transactions created before the cutoff to
// archive/ledger/YYYY-MM.jsonl via multipart upload and returns the archived
// record count.
func (a *Archiver) ArchiveLedger(ctx context.Context, before time.Time) (int64, error) {
	txs, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger query: %w", err)
	}
	if len(txs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(txs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger marshal: %w", err)
	}

	path := archivePath("ledger", before)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), ledgerMultipartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger upload: %w", err)
	}
	return int64(len(txs)), nil
}

// ArchiveReports uploads all reconciliation reports checked before the cutoff
// to archive/reports/YYYY-MM.jsonl and returns the archived record count.
func (a *Archiver) ArchiveReports(ctx context.Context, before time.Time) (int64, error) {
	reports, err := a.reports.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive reports query: %w", err)
	}
	if len(reports) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(reports)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive reports marshal: %w", err)
	}

	path := archivePath("reports", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive reports upload: %w", err)
	}
	return int64(len(reports)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/rounds/2026-08.jsonl
//	archive/ledger/2026-08.jsonl
//	archive/reports/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
