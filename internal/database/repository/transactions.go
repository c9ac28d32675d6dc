package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/canonical"
)

const transactionColumns = `id, import_id, fingerprint, account_id, bank_id, date, amount, currency,
 raw_description, description, merchant, period, category, category_source, confidence,
 type, kind, fiscal_id, source_file, source_ref, created_at, updated_at`

// TransactionFilters defines list filters. Zero values mean no filter.
type TransactionFilters struct {
	AccountID string
	BankID    string
	Period    string
	ImportID  string
	Sources   []canonical.CategorySource
}

// TransactionRepo handles transactions. It is the only writer of the
// transactions table.
type TransactionRepo struct {
	db   DBTX
	tags *TagRepo
}

func NewTransactionRepo(db DBTX) *TransactionRepo {
	return &TransactionRepo{db: db, tags: NewTagRepo(db)}
}

// InsertIgnore stores t unless a row with the same fingerprint exists. The
// unique constraint decides; there is no read before the write. It reports
// whether a row was inserted.
func (r *TransactionRepo) InsertIgnore(ctx context.Context, t canonical.Transaction, importID string) (bool, error) {
	if t.Fingerprint == "" {
		return false, errors.New("transaction has no fingerprint")
	}
	id := uuid.NewString()
	var imp *string
	if importID != "" {
		imp = &importID
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, import_id, fingerprint, account_id, bank_id, date, amount, amount_cents, currency,
	 raw_description, description, merchant, period, category, category_source, confidence,
	 type, kind, fiscal_id, source_file, source_ref, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(fingerprint) DO NOTHING;
	`,
		id, imp, t.Fingerprint, t.AccountID, t.BankID, t.Date.Format(time.DateOnly), t.Amount.StringFixed(2),
		t.AmountCents(), t.Currency, t.RawDescription, t.Description, t.Merchant, t.Period,
		nullableStr(t.Category), sourceOrNone(t.CategorySource), t.Confidence, string(t.Type), string(t.Kind),
		t.FiscalID, t.SourceFile, t.SourceRef)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := r.attachTags(ctx, id, t.Tags); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateCategory replaces the category of the row with fingerprint and
// attaches tags. It reports false when no such row exists.
func (r *TransactionRepo) UpdateCategory(ctx context.Context, fingerprint, category string, source canonical.CategorySource, confidence *float64, tags []string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category = ?, category_source = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
	WHERE fingerprint = ?`, nullableStr(category), sourceOrNone(source), confidence, fingerprint)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	if len(tags) > 0 {
		var id string
		if err := r.db.QueryRowContext(ctx, `SELECT id FROM transactions WHERE fingerprint = ?`, fingerprint).Scan(&id); err != nil {
			return false, err
		}
		if err := r.attachTags(ctx, id, tags); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *TransactionRepo) attachTags(ctx context.Context, transactionID string, tags []string) error {
	for _, name := range tags {
		tag, err := r.tags.Ensure(ctx, name)
		if err != nil {
			return fmt.Errorf("tag %q: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO transaction_tags(transaction_id, tag_id) VALUES(?, ?)`, transactionID, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]StoredTransaction, error) {
	var where []string
	var args []any

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.BankID != "" {
		where = append(where, "bank_id = ?")
		args = append(args, f.BankID)
	}
	if f.Period != "" {
		where = append(where, "period = ?")
		args = append(args, f.Period)
	}
	if f.ImportID != "" {
		where = append(where, "import_id = ?")
		args = append(args, f.ImportID)
	}
	if len(f.Sources) > 0 {
		marks := make([]string, len(f.Sources))
		for i, s := range f.Sources {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "category_source IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		tags, err := r.fetchTags(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

// Get returns the row with fingerprint, or nil when absent.
func (r *TransactionRepo) Get(ctx context.Context, fingerprint string) (*StoredTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE fingerprint = ?`, fingerprint)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tags, err := r.fetchTags(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return &t, nil
}

// Count returns the number of stored transactions.
func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// SampleDescriptions returns up to limit distinct normalized descriptions,
// most recent first.
func (r *TransactionRepo) SampleDescriptions(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT description FROM transactions
	GROUP BY description
	ORDER BY MAX(date) DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) fetchTags(ctx context.Context, transactionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT t.name FROM tags t JOIN transaction_tags tt ON tt.tag_id = t.id WHERE tt.transaction_id = ? ORDER BY t.name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func scanTransaction(row scanner) (StoredTransaction, error) {
	var t StoredTransaction
	var importID, category sql.NullString
	var confidence sql.NullFloat64
	var date, amount, source, typ, kind string
	if err := row.Scan(&t.ID, &importID, &t.Fingerprint, &t.AccountID, &t.BankID, &date, &amount, &t.Currency,
		&t.RawDescription, &t.Description, &t.Merchant, &t.Period, &category, &source, &confidence,
		&typ, &kind, &t.FiscalID, &t.SourceFile, &t.SourceRef, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return StoredTransaction{}, err
	}
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	t.Date = d
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return StoredTransaction{}, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if importID.Valid {
		t.ImportID = &importID.String
	}
	if category.Valid {
		t.Category = category.String
	}
	if confidence.Valid {
		c := confidence.Float64
		t.Confidence = &c
	}
	t.CategorySource = canonical.CategorySource(source)
	t.Type = canonical.Type(typ)
	t.Kind = canonical.Kind(kind)
	return t, nil
}

func nullableStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func sourceOrNone(s canonical.CategorySource) string {
	if s == "" {
		return string(canonical.SourceNone)
	}
	return string(s)
}
