package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jask/ledgerkit/internal/canonical"
)

// Rule maps description patterns to a category. Patterns are OR-ed.
type Rule struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Patterns []string `yaml:"patterns"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Defaults applies when an account or bank leaves a value unset.
type Defaults struct {
	Currency         string `yaml:"currency"`
	FallbackCategory string `yaml:"fallback_category"`
	PaymentAccount   string `yaml:"payment_account"`
}

// Account is the per-account configuration.
type Account struct {
	AccountName string `yaml:"account_name"`
	ClosingDay  int    `yaml:"closing_day"`
	Currency    string `yaml:"currency,omitempty"`
}

// Bank is a bank profile: which extractor reads its files and how its
// amounts are signed.
type Bank struct {
	Type            string `yaml:"type"`
	Account         string `yaml:"account"`
	ChargesPositive bool   `yaml:"charges_positive,omitempty"`
	InferKind       bool   `yaml:"infer_kind,omitempty"`
	CardTag         string `yaml:"card_tag,omitempty"`
}

// MerchantAlias maps description patterns to a canonical merchant name.
type MerchantAlias struct {
	Canon    string   `yaml:"canon"`
	Patterns []string `yaml:"patterns"`
}

// Set is the active rule configuration, loaded once per run.
type Set struct {
	Version         int                `yaml:"version"`
	Defaults        Defaults           `yaml:"defaults"`
	Accounts        map[string]Account `yaml:"accounts,omitempty"`
	Banks           map[string]Bank    `yaml:"banks,omitempty"`
	MerchantAliases []MerchantAlias    `yaml:"merchant_aliases,omitempty"`
	Rules           []Rule             `yaml:"rules"`
}

// Pending is the staged rule file.
type Pending struct {
	UpdatedAt time.Time `yaml:"updated_at_utc"`
	Rules     []Rule    `yaml:"pending_rules"`
}

// ErrNoPending is returned by Merge when nothing is staged.
var ErrNoPending = errors.New("no pending rules")

// Validate checks a rule before it is staged.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %q: category is required", r.Name)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %q: at least one pattern is required", r.Name)
	}
	for _, p := range r.Patterns {
		if _, err := compilePattern(p); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// Load reads a rule set. A missing file yields an empty set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Set{Version: 1}, nil
		}
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a rule set and checks every rule.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	for _, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Marshal encodes the set as YAML.
func (s *Set) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Hash is the content hash of the set, used to key derived state.
func (s *Set) Hash() string {
	data, err := s.Marshal()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy so a merge never touches the live set.
func (s *Set) Clone() *Set {
	data, err := s.Marshal()
	if err != nil {
		return &Set{Version: s.Version}
	}
	out, err := Parse(data)
	if err != nil {
		return &Set{Version: s.Version}
	}
	return out
}

// AccountID resolves the canonical account for a bank; unknown banks get
// "cc:<bank>".
func (s *Set) AccountID(bankID string) string {
	if b, ok := s.Banks[bankID]; ok && b.Account != "" {
		return b.Account
	}
	return "cc:" + bankID
}

// AccountName returns the ledger name of an account, falling back to the id.
func (s *Set) AccountName(accountID string) string {
	if a, ok := s.Accounts[accountID]; ok && a.AccountName != "" {
		return a.AccountName
	}
	return accountID
}

// AccountConfig assembles the builder configuration for a bank.
func (s *Set) AccountConfig(bankID string, merchants canonical.MerchantResolver) canonical.AccountConfig {
	id := s.AccountID(bankID)
	cfg := canonical.AccountConfig{
		AccountID:  id,
		BankID:     bankID,
		Currency:   s.Defaults.Currency,
		ClosingDay: canonical.DefaultClosingDay,
		Merchants:  merchants,
	}
	if a, ok := s.Accounts[id]; ok {
		if a.ClosingDay > 0 {
			cfg.ClosingDay = a.ClosingDay
		}
		if a.Currency != "" {
			cfg.Currency = a.Currency
		}
	}
	if b, ok := s.Banks[bankID]; ok {
		cfg.ChargesPositive = b.ChargesPositive
		cfg.InferKind = b.InferKind
		cfg.CardTag = b.CardTag
	}
	return cfg
}

// LoadPending reads the staged rules. A missing file is an empty set.
func LoadPending(path string) (Pending, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Pending{}, nil
		}
		return Pending{}, fmt.Errorf("read pending rules %s: %w", path, err)
	}
	var p Pending
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pending{}, fmt.Errorf("parse pending rules: %w", err)
	}
	return p, nil
}
