package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/database"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// EventRecategorization is the audit kind for category changes made after
// ingestion.
const EventRecategorization = "recategorization"

// manualSortOrder places categories first seen in manual edits after the
// configured ones.
const manualSortOrder = 1000

// ErrNotFound is returned when no stored transaction has the fingerprint.
var ErrNotFound = errors.New("transaction not found")

// CategorizerService re-runs and overrides categorization of stored rows.
type CategorizerService struct {
	DB       *sql.DB
	Engine   *categorize.Engine
	Workflow *rules.Workflow
}

// RecategorizeResult counts a recategorization pass.
type RecategorizeResult struct {
	Examined int
	Updated  int
}

// Recategorize re-applies rules and the classifier to rows whose category
// came from the classifier or is unset. Rule and manual assignments are
// left alone.
func (s *CategorizerService) Recategorize(ctx context.Context) (RecategorizeResult, error) {
	log := logger.Component(ctx, logger.ComponentCategorize)
	var res RecategorizeResult
	// The single connection is held by the transaction, so the model must
	// be trained before it starts.
	if s.Engine.Models != nil {
		s.Engine.Models.Get(ctx, s.Engine.Active.Snapshot())
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repo := repository.NewTransactionRepo(tx)
		rows, err := repo.List(ctx, repository.TransactionFilters{
			Sources: []canonical.CategorySource{canonical.SourceNone, canonical.SourceML},
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			res.Examined++
			before := row.Transaction
			t := row.Transaction
			out := s.Engine.Apply(ctx, &t)
			if out.Category == before.Category && out.Source == before.CategorySource && sameConfidence(out.Confidence, before.Confidence) {
				continue
			}
			if _, err := repo.UpdateCategory(ctx, t.Fingerprint, t.Category, t.CategorySource, t.Confidence, out.Tags); err != nil {
				return fmt.Errorf("update %s: %w", t.Fingerprint, err)
			}
			res.Updated++
		}
		if res.Updated == 0 {
			return nil
		}
		return repository.NewAuditRepo(tx).Record(ctx, EventRecategorization, map[string]any{
			"mode":     "auto",
			"examined": res.Examined,
			"updated":  res.Updated,
		})
	})
	if err != nil {
		return RecategorizeResult{}, err
	}
	log.Info().Int("examined", res.Examined).Int("updated", res.Updated).Msg("recategorization done")
	return res, nil
}

// SetManual assigns category to one transaction. Manual assignments are
// never overwritten by rules or the classifier, and they feed training, so
// the cached model is dropped.
func (s *CategorizerService) SetManual(ctx context.Context, fingerprint, category, reason string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return errors.New("category is required")
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repo := repository.NewTransactionRepo(tx)
		cur, err := repo.Get(ctx, fingerprint)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
		}
		if _, err := repo.UpdateCategory(ctx, fingerprint, category, canonical.SourceManual, nil, nil); err != nil {
			return err
		}
		if err := repository.NewCategoryRepo(tx).Ensure(ctx, category, manualSortOrder); err != nil {
			return err
		}
		return repository.NewAuditRepo(tx).Record(ctx, EventRecategorization, map[string]any{
			"mode":        "manual",
			"fingerprint": fingerprint,
			"from":        cur.Category,
			"from_source": string(cur.CategorySource),
			"to":          category,
			"reason":      reason,
		})
	})
	if err != nil {
		return err
	}
	if s.Engine != nil && s.Engine.Models != nil {
		s.Engine.Models.Invalidate()
	}
	doneLog := logger.Component(ctx, logger.ComponentCategorize)
	doneLog.Info().
		Str(logger.FieldFingerprint, fingerprint).
		Str(logger.FieldCategory, category).
		Msg("manual category set")
	return nil
}

// Suggest proposes rules for uncategorized charges.
func (s *CategorizerService) Suggest(ctx context.Context, opts categorize.SuggestOptions) ([]categorize.Suggestion, error) {
	rows, err := repository.NewTransactionRepo(s.DB).List(ctx, repository.TransactionFilters{
		Sources: []canonical.CategorySource{canonical.SourceNone},
	})
	if err != nil {
		return nil, err
	}
	var items []categorize.Unmatched
	for _, r := range rows {
		if r.Type != canonical.Debit {
			continue
		}
		items = append(items, categorize.Unmatched{Merchant: r.Merchant, Description: r.Description, Amount: r.Amount.Abs()})
	}
	snap := s.Engine.Active.Snapshot()
	if opts.FallbackCategory == "" {
		opts.FallbackCategory = snap.Set.Defaults.FallbackCategory
	}
	if opts.Model == nil && s.Engine.Models != nil {
		opts.Model = s.Engine.Models.Get(ctx, snap)
	}
	if opts.Floor <= 0 {
		opts.Floor = s.Engine.Floor
	}
	return categorize.SuggestRules(items, opts), nil
}

// StageSuggestions stages the suggested rules through the workflow.
func (s *CategorizerService) StageSuggestions(ctx context.Context, suggestions []categorize.Suggestion) error {
	if s.Workflow == nil {
		return errors.New("rule workflow not configured")
	}
	rs := make([]rules.Rule, 0, len(suggestions))
	for _, sg := range suggestions {
		rs = append(rs, sg.Rule)
	}
	return s.Workflow.Stage(ctx, rs...)
}

func sameConfidence(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// TrainingStore adapts stored history for the classifier: every row whose
// category came from a rule or a person is a labelled example.
type TrainingStore struct {
	Transactions *repository.TransactionRepo
}

// TrainingExamples implements categorize.TrainingSource.
func (s TrainingStore) TrainingExamples(ctx context.Context) ([]categorize.Example, error) {
	rows, err := s.Transactions.List(ctx, repository.TransactionFilters{
		Sources: []canonical.CategorySource{canonical.SourceRule, canonical.SourceManual},
	})
	if err != nil {
		return nil, err
	}
	out := make([]categorize.Example, 0, len(rows))
	for _, r := range rows {
		if r.Category == "" {
			continue
		}
		out = append(out, categorize.Example{Description: r.Description, Amount: r.Amount, Category: r.Category})
	}
	return out, nil
}

var (
	_ categorize.TrainingSource = TrainingStore{}
	_ rules.SampleSource        = (*repository.TransactionRepo)(nil)
	_ rules.AuditRecorder       = (*repository.AuditRepo)(nil)
)
