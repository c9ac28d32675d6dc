package canonical

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/normalize"
)

// DefaultCurrency applies when neither the record nor the account names one.
const DefaultCurrency = "MXN"

// Builder validates raw records and assembles canonical transactions.
type Builder struct {
	// ReferenceYear resolves year-less dates; zero means the current year.
	ReferenceYear int
	MaxAgeYears   int
	FutureDays    int
	Now           func() time.Time
}

// NewBuilder returns a builder with the given plausibility window.
func NewBuilder(referenceYear, maxAgeYears, futureDays int) *Builder {
	return &Builder{
		ReferenceYear: referenceYear,
		MaxAgeYears:   maxAgeYears,
		FutureDays:    futureDays,
		Now:           time.Now,
	}
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

// Build validates rec and returns the canonical transaction with its
// fingerprint computed. It has no side effects.
func (b *Builder) Build(rec extract.Record, acct AccountConfig) (Transaction, error) {
	ref := rec.Provenance.Ref
	if strings.TrimSpace(acct.AccountID) == "" {
		return Transaction{}, &ValidationError{Kind: MissingField, Field: "account", Ref: ref}
	}

	raw := rec.String(extract.FieldDescription)
	if raw == "" {
		return Transaction{}, &ValidationError{Kind: MissingField, Field: extract.FieldDescription, Ref: ref}
	}

	date, err := b.date(rec)
	if err != nil {
		return Transaction{}, err
	}
	if err := b.plausible(date); err != nil {
		return Transaction{}, &ValidationError{Kind: Implausible, Field: extract.FieldDate, Ref: ref, Err: err}
	}

	amount, explicit, err := amountOf(rec)
	if err != nil {
		return Transaction{}, err
	}
	if explicit && acct.ChargesPositive {
		amount = amount.Neg()
	}

	fiscal := rec.String(extract.FieldFiscalID)
	kind := KindPayment
	if acct.InferKind {
		kind = InferKind(raw, amount.IsNegative(), fiscal)
		if kind == KindCharge {
			amount = amount.Abs().Neg()
		} else {
			amount = amount.Abs()
		}
	} else if amount.IsNegative() {
		kind = KindCharge
	}
	typ := Credit
	if amount.IsNegative() {
		typ = Debit
	}

	currency := strings.ToUpper(rec.String(extract.FieldCurrency))
	if currency == "" {
		currency = strings.ToUpper(acct.Currency)
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	desc := normalize.Description(raw)
	tx := Transaction{
		Date:           date,
		Amount:         amount,
		Currency:       currency,
		RawDescription: raw,
		Description:    desc,
		AccountID:      acct.AccountID,
		BankID:         acct.BankID,
		Period:         StatementPeriod(date, acct.ClosingDay),
		CategorySource: SourceNone,
		Type:           typ,
		Kind:           kind,
		FiscalID:       fiscal,
		SourceFile:     rec.Provenance.SourceFile,
		SourceRef:      ref,
	}
	if acct.Merchants != nil {
		tx.Merchant = acct.Merchants.Merchant(desc)
	} else {
		tx.Merchant = FallbackMerchant(desc)
	}
	tx.AddTag("merchant:" + tx.Merchant)
	tx.AddTag("period:" + tx.Period)
	if fiscal != "" {
		tx.AddTag("rfc:" + strings.ToUpper(fiscal))
	}
	tx.AddTag(acct.CardTag)

	tx.Fingerprint = Fingerprint(tx.AccountID, tx.Date, tx.Amount, tx.Description, tx.SourceFile)
	return tx, nil
}

func (b *Builder) date(rec extract.Record) (time.Time, error) {
	ref := rec.Provenance.Ref
	v, ok := rec.Fields[extract.FieldDate]
	if !ok || v == nil || rec.String(extract.FieldDate) == "" {
		return time.Time{}, &ValidationError{Kind: MissingField, Field: extract.FieldDate, Ref: ref}
	}
	if t, ok := v.(time.Time); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	year := b.ReferenceYear
	if year == 0 {
		year = b.now().Year()
	}
	t, err := normalize.ParseDate(rec.String(extract.FieldDate), year)
	if err != nil {
		return time.Time{}, &ValidationError{Kind: InvalidField, Field: extract.FieldDate, Ref: ref, Err: err}
	}
	return t, nil
}

func (b *Builder) plausible(date time.Time) error {
	now := b.now()
	if b.MaxAgeYears > 0 && date.Before(now.AddDate(-b.MaxAgeYears, 0, 0)) {
		return fmt.Errorf("%s is older than %d years", normalize.FormatDate(date), b.MaxAgeYears)
	}
	if b.FutureDays >= 0 && date.After(now.AddDate(0, 0, b.FutureDays)) {
		return fmt.Errorf("%s is more than %d days in the future", normalize.FormatDate(date), b.FutureDays)
	}
	return nil
}

var errZeroAmount = errors.New("amount is zero")

// amountOf reads the signed amount. explicit is false when the value came
// from separate debit/credit columns, which already carry their direction.
func amountOf(rec extract.Record) (decimal.Decimal, bool, error) {
	ref := rec.Provenance.Ref
	if v, ok := rec.Fields[extract.FieldAmount]; ok && rec.String(extract.FieldAmount) != "" {
		d, err := toDecimal(v)
		if err != nil {
			return decimal.Zero, true, &ValidationError{Kind: InvalidField, Field: extract.FieldAmount, Ref: ref, Err: err}
		}
		if d.IsZero() {
			return decimal.Zero, true, &ValidationError{Kind: InvalidField, Field: extract.FieldAmount, Ref: ref, Err: errZeroAmount}
		}
		return d, true, nil
	}

	var total decimal.Decimal
	seen := false
	for _, col := range []string{extract.FieldDebit, extract.FieldCredit} {
		v, ok := rec.Fields[col]
		if !ok || rec.String(col) == "" {
			continue
		}
		d, err := toDecimal(v)
		if err != nil {
			return decimal.Zero, false, &ValidationError{Kind: InvalidField, Field: col, Ref: ref, Err: err}
		}
		if d.IsZero() {
			continue
		}
		seen = true
		if col == extract.FieldDebit {
			total = total.Sub(d.Abs())
		} else {
			total = total.Add(d.Abs())
		}
	}
	if !seen {
		return decimal.Zero, false, &ValidationError{Kind: MissingField, Field: extract.FieldAmount, Ref: ref}
	}
	if total.IsZero() {
		return decimal.Zero, false, &ValidationError{Kind: InvalidField, Field: extract.FieldAmount, Ref: ref, Err: errZeroAmount}
	}
	return total, false, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, fmt.Errorf("amount %v is not finite", t)
		}
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		return normalize.ParseAmount(t)
	default:
		return normalize.ParseAmount(fmt.Sprint(t))
	}
}

var digitsRe = regexp.MustCompile(`\d+`)

// FallbackMerchant derives a merchant tag from the first two words of the
// description once digits are removed.
func FallbackMerchant(normalized string) string {
	d := strings.ToLower(normalize.Fold(normalized))
	d = digitsRe.ReplaceAllString(d, "")
	parts := strings.Fields(d)
	if len(parts) == 0 {
		return "unknown"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "_")
}
