package database

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/rules"
)

// SyncRuleSet mirrors the accounts, bank fallback accounts and categories
// named in the rule set. It is idempotent and safe to run on every startup.
func SyncRuleSet(ctx context.Context, db *sql.DB, set *rules.Set) error {
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		accts := repository.NewAccountRepo(tx)
		institutions := map[string]string{}
		for _, bankID := range sortedKeys(set.Banks) {
			id := set.AccountID(bankID)
			if _, ok := institutions[id]; !ok {
				institutions[id] = bankID
			}
		}
		for _, id := range sortedKeys(set.Accounts) {
			a := set.Accounts[id]
			cfg := canonical.AccountConfig{AccountID: id, Currency: a.Currency, ClosingDay: a.ClosingDay}
			if cfg.Currency == "" {
				cfg.Currency = set.Defaults.Currency
			}
			if cfg.ClosingDay <= 0 {
				cfg.ClosingDay = canonical.DefaultClosingDay
			}
			if err := accts.Upsert(ctx, accountRow(set, cfg, institutions[id])); err != nil {
				return err
			}
		}
		for _, bankID := range sortedKeys(set.Banks) {
			cfg := set.AccountConfig(bankID, nil)
			if err := accts.Ensure(ctx, accountRow(set, cfg, bankID)); err != nil {
				return err
			}
		}

		cats := repository.NewCategoryRepo(tx)
		seen := map[string]bool{}
		order := 0
		add := func(name string) error {
			if name == "" || seen[name] {
				return nil
			}
			seen[name] = true
			order++
			return cats.Upsert(ctx, repository.Category{Name: name, SortOrder: order})
		}
		for _, r := range set.Rules {
			if err := add(r.Category); err != nil {
				return err
			}
		}
		return add(set.Defaults.FallbackCategory)
	})
}

// EnsureAccount makes sure the canonical account for bankID exists so
// transactions can reference it.
func EnsureAccount(ctx context.Context, db repository.DBTX, set *rules.Set, bankID string) error {
	cfg := set.AccountConfig(bankID, nil)
	return repository.NewAccountRepo(db).Ensure(ctx, accountRow(set, cfg, bankID))
}

func accountRow(set *rules.Set, cfg canonical.AccountConfig, bankID string) repository.Account {
	currency := cfg.Currency
	if currency == "" {
		currency = canonical.DefaultCurrency
	}
	return repository.Account{
		ID:          cfg.AccountID,
		Name:        set.AccountName(cfg.AccountID),
		Institution: bankID,
		Currency:    currency,
		ClosingDay:  cfg.ClosingDay,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
