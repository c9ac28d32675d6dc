package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jask/ledgerkit/internal/canonical"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repos can join a per-file
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Account represents an account row.
type Account struct {
	ID          string
	Name        string
	Institution string
	Currency    string
	ClosingDay  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	Name      string
	SortOrder int
}

// Tag represents a tag row.
type Tag struct {
	ID   string
	Name string
}

// Import statuses.
const (
	ImportRunning = "running"
	ImportSuccess = "success"
	ImportPartial = "partial"
	ImportFailed  = "failed"
)

// Import is the audit record of one file ingestion.
type Import struct {
	ID         string
	SourceFile string
	BankID     string
	Method     string
	RowCount   int
	Ingested   int
	Duplicates int
	Rejected   int
	Status     string
	Error      *string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StoredTransaction is a persisted canonical transaction.
type StoredTransaction struct {
	ID       string
	ImportID *string
	canonical.Transaction
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEvent is one workflow event.
type AuditEvent struct {
	ID        string
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// Finding kinds written by the reconciler.
const (
	FindingMatched    = "matched"
	FindingPDFOnly    = "pdf_only"
	FindingXMLOnly    = "xml_only"
	FindingDifference = "difference"
)

// Finding is one reconciliation outcome.
type Finding struct {
	ID          string
	ImportID    *string
	Kind        string
	Fingerprint string
	Reference   string
	Detail      string
	CreatedAt   time.Time
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}
