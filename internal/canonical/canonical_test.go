package canonical

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkit/internal/extract"
)

func fixedBuilder() *Builder {
	b := NewBuilder(2024, 10, 45)
	b.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func record(fields map[string]any) extract.Record {
	rec := extract.NewRecord(extract.Provenance{SourceFile: "/tmp/Statements/HSBC_2024-05.xlsx", Ref: "row:7", Method: extract.MethodTabular})
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return rec
}

var debitAccount = AccountConfig{AccountID: "bbva_debit", BankID: "bbva", Currency: "MXN", ClosingDay: 31}

func TestBuildComputesFingerprint(t *testing.T) {
	t.Parallel()
	b := fixedBuilder()
	rec := record(map[string]any{
		extract.FieldDate:        "12/05/2024",
		extract.FieldDescription: "OXXO SUC 1234",
		extract.FieldAmount:      "-45.50",
	})

	tx, err := b.Build(rec, debitAccount)
	require.NoError(t, err)
	require.Equal(t, "2024-05-12", tx.Date.Format("2006-01-02"))
	require.True(t, tx.Amount.Equal(decimal.RequireFromString("-45.50")))
	require.Equal(t, Debit, tx.Type)
	require.Equal(t, KindCharge, tx.Kind)
	require.Equal(t, "2024-05", tx.Period)
	require.Equal(t, SourceNone, tx.CategorySource)
	require.Equal(t, "OXXO suc 1234", tx.Description)
	require.Equal(t, "oxxo_suc", tx.Merchant)
	require.Contains(t, tx.Tags, "merchant:oxxo_suc")
	require.Contains(t, tx.Tags, "period:2024-05")
	require.Len(t, tx.Fingerprint, 64)
	require.Equal(t, int64(-4550), tx.AmountCents())

	again, err := b.Build(rec, debitAccount)
	require.NoError(t, err)
	require.Equal(t, tx.Fingerprint, again.Fingerprint)
}

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()
	d := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString("-100.5")

	a := Fingerprint("acct", d, amt, "oxxo", "/a/Stmt.XLSX")
	b := Fingerprint("acct", d, decimal.RequireFromString("-100.50"), "oxxo", "/b/stmt.xlsx")
	require.Equal(t, a, b)

	require.NotEqual(t, a, Fingerprint("acct2", d, amt, "oxxo", "stmt.xlsx"))
	require.NotEqual(t, a, Fingerprint("acct", d.AddDate(0, 0, 1), amt, "oxxo", "stmt.xlsx"))
	require.NotEqual(t, a, Fingerprint("acct", d, amt.Neg(), "oxxo", "stmt.xlsx"))
	require.NotEqual(t, a, Fingerprint("acct", d, amt, "oxxo 2", "stmt.xlsx"))
	require.NotEqual(t, a, Fingerprint("acct", d, amt, "oxxo", "other.xlsx"))
}

func TestStatementPeriod(t *testing.T) {
	t.Parallel()
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	require.Equal(t, "2024-04", StatementPeriod(day(2024, 3, 20), 15))
	require.Equal(t, "2024-03", StatementPeriod(day(2024, 3, 15), 15))
	require.Equal(t, "2025-01", StatementPeriod(day(2024, 12, 16), 15))
	require.Equal(t, "2024-03", StatementPeriod(day(2024, 3, 31), 31))
	require.Equal(t, "2024-03", StatementPeriod(day(2024, 3, 31), 0))
	require.Equal(t, "2024-02", StatementPeriod(day(2024, 1, 31), 30))
}

func TestBuildClosingDayAdvancesPeriod(t *testing.T) {
	t.Parallel()
	acct := debitAccount
	acct.ClosingDay = 15
	tx, err := fixedBuilder().Build(record(map[string]any{
		extract.FieldDate:        "20/03/2024",
		extract.FieldDescription: "SORIANA",
		extract.FieldAmount:      "-10",
	}), acct)
	require.NoError(t, err)
	require.Equal(t, "2024-04", tx.Period)
}

func TestBuildRejections(t *testing.T) {
	t.Parallel()
	b := fixedBuilder()
	cases := []struct {
		name   string
		fields map[string]any
		kind   ErrorKind
		field  string
	}{
		{"bad date", map[string]any{"date": "not a date", "description": "x", "amount": "1"}, InvalidField, "date"},
		{"bad amount", map[string]any{"date": "2024-05-01", "description": "x", "amount": "not-a-number"}, InvalidField, "amount"},
		{"zero amount", map[string]any{"date": "2024-05-01", "description": "x", "amount": "0.00"}, InvalidField, "amount"},
		{"missing amount", map[string]any{"date": "2024-05-01", "description": "x"}, MissingField, "amount"},
		{"missing date", map[string]any{"description": "x", "amount": "1"}, MissingField, "date"},
		{"missing description", map[string]any{"date": "2024-05-01", "amount": "1"}, MissingField, "description"},
		{"too old", map[string]any{"date": "2001-05-01", "description": "x", "amount": "1"}, Implausible, "date"},
		{"future", map[string]any{"date": "2025-05-01", "description": "x", "amount": "1"}, Implausible, "date"},
	}
	for _, tc := range cases {
		_, err := b.Build(record(tc.fields), debitAccount)
		require.Error(t, err, tc.name)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, tc.name)
		require.Equal(t, tc.kind, ve.Kind, tc.name)
		require.Equal(t, tc.field, ve.Field, tc.name)
		require.Equal(t, "row:7", ve.Ref, tc.name)
		require.True(t, IsValidation(err))
	}
}

func TestBuildDebitCreditColumns(t *testing.T) {
	t.Parallel()
	b := fixedBuilder()
	tx, err := b.Build(record(map[string]any{
		"date": "2024-05-02", "description": "NOMINA", "debit": "", "credit": "15,000.00",
	}), debitAccount)
	require.NoError(t, err)
	require.True(t, tx.Amount.Equal(decimal.NewFromInt(15000)))
	require.Equal(t, Credit, tx.Type)
	require.Equal(t, "nómina", tx.Description)

	tx, err = b.Build(record(map[string]any{
		"date": "2024-05-02", "description": "RETIRO ATM", "debit": "500.00", "credit": "",
	}), debitAccount)
	require.NoError(t, err)
	require.True(t, tx.Amount.Equal(decimal.NewFromInt(-500)))
}

func TestBuildInferKindForCreditCard(t *testing.T) {
	t.Parallel()
	acct := AccountConfig{AccountID: "hsbc_credit", BankID: "hsbc", ClosingDay: 15, ChargesPositive: true, InferKind: true, CardTag: "card:hsbc"}
	b := fixedBuilder()

	charge, err := b.Build(record(map[string]any{
		"date": time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), "description": "NETFLIX.COM", "amount": 219.0, "fiscal_id": "nme910101abc",
	}), acct)
	require.NoError(t, err)
	require.True(t, charge.Amount.Equal(decimal.NewFromInt(-219)))
	require.Equal(t, KindCharge, charge.Kind)
	require.Contains(t, charge.Tags, "rfc:NME910101ABC")
	require.Contains(t, charge.Tags, "card:hsbc")
	require.Equal(t, "MXN", charge.Currency)

	payment, err := b.Build(record(map[string]any{
		"date": "2024-05-10", "description": "SU PAGO GRACIAS SPEI", "amount": "5000.00",
	}), acct)
	require.NoError(t, err)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, KindPayment, payment.Kind)
	require.Equal(t, Credit, payment.Type)
}

func TestInferKind(t *testing.T) {
	t.Parallel()
	require.Equal(t, KindCharge, InferKind("SPOTIFY PAGO", false, ""))
	require.Equal(t, KindCashback, InferKind("BONIFICACIÓN PROMO", false, ""))
	require.Equal(t, KindRefund, InferKind("DEVOLUCION AMAZON", false, ""))
	require.Equal(t, KindCharge, InferKind("MERPAGO*TIENDA", false, ""))
	require.Equal(t, KindPayment, InferKind("MERCADOPAGO SU PAGO GRACIAS", false, ""))
	require.Equal(t, KindPayment, InferKind("PAGO INTERBANCARIO", false, ""))
	require.Equal(t, KindCharge, InferKind("FARMACIA", false, "RFC123"))
	require.Equal(t, KindCharge, InferKind("FARMACIA", true, ""))
	require.Equal(t, KindPayment, InferKind("FARMACIA", false, ""))
}

func TestFallbackMerchant(t *testing.T) {
	t.Parallel()
	require.Equal(t, "uber_eats", FallbackMerchant("uber eats 1234 cdmx"))
	require.Equal(t, "unknown", FallbackMerchant("1234"))
	require.Equal(t, "debito", FallbackMerchant("débito"))
}
