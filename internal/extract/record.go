package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method records which path produced a record.
type Method string

const (
	MethodTabular    Method = "tabular"
	MethodXML        Method = "xml"
	MethodDirectText Method = "direct_text"
	MethodOCR        Method = "ocr"
)

// Field names used in Record.Fields.
const (
	FieldDate          = "date"
	FieldDescription   = "description"
	FieldAmount        = "amount"
	FieldDebit         = "debit"
	FieldCredit        = "credit"
	FieldCurrency      = "currency"
	FieldFiscalID      = "fiscal_id"
	FieldAccountNumber = "account_number"
)

// Provenance identifies where a record came from.
type Provenance struct {
	SourceFile string
	Ref        string // row:12, node:3, page:2/line:14
	Page       int
	Line       int
	Method     Method
}

// Record is one loosely typed transaction line. Values are strings, numbers
// or an already resolved time.Time for dates.
type Record struct {
	Fields     map[string]any
	Provenance Provenance
}

// NewRecord returns a record with an initialized field map.
func NewRecord(p Provenance) Record {
	return Record{Fields: map[string]any{}, Provenance: p}
}

// String returns the field rendered as trimmed text, "" when absent.
func (r Record) String(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		return t.Format("2006-01-02")
	case decimal.Decimal:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Metadata holds statement header values. Zero values mean missing.
type Metadata struct {
	AccountNumber     string
	CutoffDate        time.Time
	DueDate           time.Time
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TotalDue          decimal.NullDecimal
	MinimumPayment    decimal.NullDecimal
	NoInterestPayment decimal.NullDecimal
	// Source tells which method produced each populated key.
	Source map[string]Method
}

// Critical reports whether the fields that gate the OCR fallback are present.
func (m Metadata) Critical() bool {
	return !m.CutoffDate.IsZero() && m.TotalDue.Valid
}

// Result is the output of one extraction.
type Result struct {
	Records     []Record
	Meta        Metadata
	Method      Method
	Diagnostics []string
}

// Extractor turns one file into raw records. Implementations never write.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}
