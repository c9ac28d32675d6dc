package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/rules"
	"github.com/jask/ledgerkit/internal/testdata"
)

func importCoffee(t *testing.T, ctx context.Context, h *harness) {
	t.Helper()
	path := h.path("bbva_cafe.csv")
	require.NoError(t, testdata.WriteCSV(path, []testdata.Movement{
		{Date: day(1), Description: "OXXO SUC 1234", Amount: amt("-45.50")},
		{Date: day(2), Description: "STARBUCKS COFFEE", Amount: amt("-89.00")},
		{Date: day(4), Description: "STARBUCKS COFFEE", Amount: amt("-65.00")},
		{Date: day(5), Description: "WALMART SUPERCENTER", Amount: amt("-1320.10")},
		{Date: day(6), Description: "STARBUCKS COFFEE", Amount: amt("-72.00")},
		{Date: day(7), Description: "CFE SUMINISTRADOR", Amount: amt("-612.00")},
	}))
	rep, err := h.ingest.ImportFile(ctx, path, ImportOptions{BankID: "bbva"})
	require.NoError(t, err)
	require.Equal(t, 6, rep.Ingested)
}

func TestRecategorizeKeepsManualAndRuleRows(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := setupServiceTest(t)
	importCoffee(t, ctx, h)

	oxxo := h.byDescription(t, ctx)["OXXO SUC 1234"]
	require.NoError(t, h.cat.SetManual(ctx, oxxo.Fingerprint, "Convenience", "corner store"))

	require.NoError(t, h.workflow.Stage(ctx, rules.Rule{
		Name:     "Coffee",
		Priority: 30,
		Patterns: []string{"starbucks", `\boxxo\b`},
		Category: "Coffee",
	}))
	res, err := h.workflow.Merge(ctx, rules.MergeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Coffee"}, res.Merged)

	out, err := h.cat.Recategorize(ctx)
	require.NoError(t, err)
	// three coffees and the power bill had no category
	require.Equal(t, 4, out.Examined)
	require.Equal(t, 3, out.Updated)

	got := h.byDescription(t, ctx)
	require.Equal(t, "Convenience", got["OXXO SUC 1234"].Category)
	require.Equal(t, canonical.SourceManual, got["OXXO SUC 1234"].CategorySource)
	require.Equal(t, "Groceries", got["WALMART SUPERCENTER"].Category)
	require.Equal(t, "Coffee", got["STARBUCKS COFFEE"].Category)
	require.Equal(t, canonical.SourceRule, got["STARBUCKS COFFEE"].CategorySource)
	require.Equal(t, canonical.SourceNone, got["CFE SUMINISTRADOR"].CategorySource)

	again, err := h.cat.Recategorize(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, again.Examined)
	require.Zero(t, again.Updated)

	events, err := repository.NewAuditRepo(h.db).List(ctx, EventRecategorization)
	require.NoError(t, err)
	require.Len(t, events, 2)
	merged, err := repository.NewAuditRepo(h.db).List(ctx, rules.EventRulesMerged)
	require.NoError(t, err)
	require.Len(t, merged, 1)
}

func TestSetManualUnknownFingerprint(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := setupServiceTest(t)

	err := h.cat.SetManual(ctx, "does-not-exist", "Coffee", "")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, h.cat.SetManual(ctx, "does-not-exist", "  ", ""))

	events, err := repository.NewAuditRepo(h.db).List(ctx, EventRecategorization)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSetManualAddsCategory(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := setupServiceTest(t)
	importCoffee(t, ctx, h)

	walmart := h.byDescription(t, ctx)["WALMART SUPERCENTER"]
	require.NoError(t, h.cat.SetManual(ctx, walmart.Fingerprint, "Household", "bulk shopping"))

	cats, err := repository.NewCategoryRepo(h.db).List(ctx)
	require.NoError(t, err)
	var names []string
	for _, c := range cats {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"Groceries", "Subscriptions", "Uncategorized", "Household"}, names)

	// manual rows are training data too
	examples, err := TrainingStore{Transactions: h.txs}.TrainingExamples(ctx)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	require.Equal(t, "Household", examples[0].Category)
}

func TestSuggestAndStage(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := setupServiceTest(t)
	importCoffee(t, ctx, h)

	sugs, err := h.cat.Suggest(ctx, categorize.SuggestOptions{MinCount: 2})
	require.NoError(t, err)
	require.Len(t, sugs, 1)
	require.Equal(t, "starbucks_coffee", sugs[0].Merchant)
	require.Equal(t, 3, sugs[0].Count)
	require.Equal(t, "226", sugs[0].Total.String())
	require.Equal(t, "Auto:starbucks_coffee", sugs[0].Rule.Name)
	require.Equal(t, "Uncategorized", sugs[0].Rule.Category)

	require.NoError(t, h.cat.StageSuggestions(ctx, sugs))
	pending, err := h.workflow.Pending()
	require.NoError(t, err)
	require.Len(t, pending.Rules, 1)
	require.Equal(t, "Auto:starbucks_coffee", pending.Rules[0].Name)

	staged, err := repository.NewAuditRepo(h.db).List(ctx, rules.EventRuleStaged)
	require.NoError(t, err)
	require.Len(t, staged, 1)
}

func TestModelCacheTrainsFromStoredHistory(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := setupServiceTest(t)
	importCoffee(t, ctx, h)

	got := h.byDescription(t, ctx)
	require.NoError(t, h.cat.SetManual(ctx, got["STARBUCKS COFFEE"].Fingerprint, "Coffee", ""))

	cache := categorize.NewModelCache(TrainingStore{Transactions: h.txs}, 2)
	model := cache.Get(ctx, h.active.Snapshot())
	require.NotNil(t, model)
	require.Equal(t, 2, model.Examples())
}
