package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/database"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/rules"
	"github.com/jask/ledgerkit/internal/testdata"
)

const serviceRules = `version: 1
defaults:
  currency: MXN
  fallback_category: Uncategorized
  payment_account: "Assets:Checking"
accounts:
  hsbc_credit:
    account_name: "Liabilities:HSBC"
    closing_day: 15
  bbva_debit:
    account_name: "Assets:BBVA"
banks:
  hsbc:
    type: xml
    account: hsbc_credit
    charges_positive: true
    infer_kind: true
    card_tag: "card:hsbc"
  bbva:
    type: tabular
    account: bbva_debit
merchant_aliases:
  - canon: oxxo
    patterns: ["\\boxxo\\b"]
rules:
  - name: Groceries
    priority: 10
    patterns: ["walmart"]
    category: Groceries
  - name: Streaming
    priority: 5
    patterns: ["netflix"]
    category: Subscriptions
    tags: ["bucket:fun"]
`

var serviceNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	dir      string
	db       *sql.DB
	active   *rules.Active
	workflow *rules.Workflow
	ingest   *IngestService
	cat      *CategorizerService
	export   *ExportService
	maint    *MaintenanceService
	txs      *repository.TransactionRepo
}

func setupServiceTest(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rulesPath := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(serviceRules), 0o644))
	active, err := rules.LoadActive(rulesPath)
	require.NoError(t, err)
	require.NoError(t, database.SyncRuleSet(context.Background(), db, active.Snapshot().Set))

	txs := repository.NewTransactionRepo(db)
	wf := rules.NewWorkflow(rulesPath, filepath.Join(dir, "pending.yml"), filepath.Join(dir, "backups"), active)
	wf.Samples = txs
	wf.Audit = repository.NewAuditRepo(db)
	wf.Now = func() time.Time { return serviceNow }

	builder := canonical.NewBuilder(0, 5, 7)
	builder.Now = func() time.Time { return serviceNow }
	engine := categorize.NewEngine(active, nil, 0)

	return &harness{
		dir:      dir,
		db:       db,
		active:   active,
		workflow: wf,
		ingest: &IngestService{
			DB:      db,
			Rules:   active,
			Builder: builder,
			Engine:  engine,
			Extractors: map[string]extract.Extractor{
				TypeTabular: extract.NewTabular(),
				TypeXML:     extract.NewXML(),
			},
			Reconciler: &Reconciler{},
		},
		cat:    &CategorizerService{DB: db, Engine: engine, Workflow: wf},
		export: &ExportService{DB: db, Rules: active},
		maint:  &MaintenanceService{DB: db, Rules: active},
		txs:    txs,
	}
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (h *harness) byDescription(t *testing.T, ctx context.Context) map[string]repository.StoredTransaction {
	t.Helper()
	rows, err := h.txs.List(ctx, repository.TransactionFilters{})
	require.NoError(t, err)
	out := map[string]repository.StoredTransaction{}
	for _, r := range rows {
		out[r.RawDescription] = r
	}
	return out
}

func basicMovements() []testdata.Movement {
	return []testdata.Movement{
		{Date: day(1), Description: "OXXO SUC 1234", Amount: amt("-45.50")},
		{Date: day(2), Description: "WALMART SUPERCENTER", Amount: amt("-1320.10")},
		{Date: day(3), Description: "NOMINA EMPRESA", Amount: amt("15000.00")},
	}
}
