package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// Firefly III transaction types.
const (
	FireflyWithdrawal = "withdrawal"
	FireflyDeposit    = "deposit"
	FireflyTransfer   = "transfer"
)

// Fallback counter accounts when the rule set names none.
const (
	defaultPaymentAccount  = "Assets:Checking"
	refundSourceAccount    = "Income:Other"
	cashbackSourceAccount  = "Income:Cashback"
	expensePrefix          = "Expenses:"
	liabilityAccountPrefix = "Liabilities:"
	cardAccountPrefix      = "cc:"
)

// FireflyHeader is the column order of the export.
var FireflyHeader = []string{
	"type", "date", "amount", "currency_code", "description",
	"source_name", "destination_name", "category_name", "tags",
}

// ExportService writes stored transactions for third-party ledger tools.
type ExportService struct {
	DB    *sql.DB
	Rules *rules.Active
}

// ExportOptions filters and shapes the export.
type ExportOptions struct {
	BankID string
	Period string
	// Normalized writes the normalized description instead of the raw one.
	Normalized bool
}

// FireflyRow is one exported line.
type FireflyRow struct {
	Type        string
	Date        time.Time
	Amount      string
	Currency    string
	Description string
	Source      string
	Destination string
	Category    string
	Tags        []string
}

func (r FireflyRow) record() []string {
	return []string{
		r.Type, r.Date.Format(time.DateOnly), r.Amount, r.Currency, r.Description,
		r.Source, r.Destination, r.Category, strings.Join(r.Tags, ","),
	}
}

// FireflyRows loads the matching transactions ordered by date then
// description and maps each to a Firefly row.
func (s *ExportService) FireflyRows(ctx context.Context, opts ExportOptions) ([]FireflyRow, error) {
	stored, err := repository.NewTransactionRepo(s.DB).List(ctx, repository.TransactionFilters{
		BankID: opts.BankID,
		Period: opts.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	sort.SliceStable(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Description < b.Description
	})
	set := s.Rules.Snapshot().Set
	out := make([]FireflyRow, 0, len(stored))
	for _, st := range stored {
		out = append(out, fireflyRow(set, st.Transaction, opts.Normalized))
	}
	return out, nil
}

// WriteFirefly writes the header and rows as CSV and returns the row count.
func (s *ExportService) WriteFirefly(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	rows, err := s.FireflyRows(ctx, opts)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(FireflyHeader); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ExportFile writes the Firefly CSV to path, creating parent directories.
func (s *ExportService) ExportFile(ctx context.Context, path string, opts ExportOptions) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := s.WriteFirefly(ctx, f, opts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	doneLog := logger.Component(ctx, logger.ComponentExport)
	doneLog.Info().
		Str(logger.FieldPath, path).
		Int(logger.FieldRows, n).
		Msg("firefly export written")
	return n, nil
}

func fireflyRow(set *rules.Set, t canonical.Transaction, normalized bool) FireflyRow {
	account := set.AccountName(t.AccountID)
	category := t.Category
	if category == "" {
		category = set.Defaults.FallbackCategory
	}
	desc := t.RawDescription
	if normalized || desc == "" {
		desc = t.Description
	}
	row := FireflyRow{
		Date:        t.Date,
		Amount:      t.Amount.StringFixed(2),
		Currency:    t.Currency,
		Description: desc,
		Category:    category,
		Tags:        append([]string(nil), t.Tags...),
	}
	if t.Type == canonical.Debit {
		row.Type = FireflyWithdrawal
		row.Source = account
		row.Destination = expensePrefix + category
		return row
	}
	row.Destination = account
	row.Source = refundSourceAccount
	if t.Kind == canonical.KindCashback {
		row.Source = cashbackSourceAccount
	}
	row.Type = FireflyDeposit
	if t.Kind == canonical.KindPayment && isLiability(t.AccountID, account) {
		row.Type = FireflyTransfer
		row.Source = set.Defaults.PaymentAccount
		if row.Source == "" {
			row.Source = defaultPaymentAccount
		}
		row.Tags = appendTag(row.Tags, "pago")
	}
	return row
}

// isLiability reports whether the account is a debt, where a payment is a
// transfer from the paying asset account rather than income.
func isLiability(accountID, name string) bool {
	return strings.HasPrefix(name, liabilityAccountPrefix) || strings.HasPrefix(accountID, cardAccountPrefix)
}

func appendTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
