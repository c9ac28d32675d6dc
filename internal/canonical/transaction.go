package canonical

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategorySource records who assigned the category.
type CategorySource string

const (
	SourceRule   CategorySource = "rule"
	SourceML     CategorySource = "ml"
	SourceManual CategorySource = "manual"
	SourceNone   CategorySource = "none"
)

// Type is the ledger direction.
type Type string

const (
	Debit  Type = "debit"
	Credit Type = "credit"
)

// Kind is the inferred business meaning of a movement.
type Kind string

const (
	KindCharge   Kind = "charge"
	KindPayment  Kind = "payment"
	KindRefund   Kind = "refund"
	KindCashback Kind = "cashback"
)

// Transaction is the validated record every downstream consumer works with.
// Amount is negative for money leaving the account.
type Transaction struct {
	Date           time.Time
	Amount         decimal.Decimal
	Currency       string
	RawDescription string
	Description    string
	Merchant       string
	AccountID      string
	BankID         string
	Period         string
	Category       string
	CategorySource CategorySource
	Confidence     *float64
	Type           Type
	Kind           Kind
	Tags           []string
	FiscalID       string
	SourceFile     string
	SourceRef      string
	Fingerprint    string
}

// AccountConfig carries everything the builder needs to know about the
// account a file belongs to.
type AccountConfig struct {
	AccountID       string
	BankID          string
	Currency        string
	ClosingDay      int
	ChargesPositive bool
	InferKind       bool
	CardTag         string
	Merchants       MerchantResolver
}

// MerchantResolver maps a normalized description to a canonical merchant tag.
type MerchantResolver interface {
	Merchant(normalized string) string
}

// AmountCents returns the amount in minor units.
func (t Transaction) AmountCents() int64 {
	return t.Amount.Shift(2).Round(0).IntPart()
}

// AddTag appends tag if it is not already present.
func (t *Transaction) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, existing := range t.Tags {
		if existing == tag {
			return
		}
	}
	t.Tags = append(t.Tags, tag)
}
