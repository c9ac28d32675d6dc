package categorize

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// DefaultConfidenceFloor is the minimum probability for an ml assignment.
const DefaultConfidenceFloor = 0.70

// Result is a categorization decision. Confidence is set only for ml.
type Result struct {
	Category   string
	Source     canonical.CategorySource
	Confidence *float64
	Rule       string
	Tags       []string
}

// Categorize applies rules in priority order and falls back to the model.
// A prediction below floor leaves the category unset with source none. It
// reads its inputs only.
func Categorize(text string, amount decimal.Decimal, compiled *rules.Compiled, model *Model, floor float64) Result {
	if r, ok := compiled.Match(text); ok {
		return Result{
			Category: r.Category,
			Source:   canonical.SourceRule,
			Rule:     r.Name,
			Tags:     append([]string(nil), r.Tags...),
		}
	}
	if p, ok := model.Predict(text, amount); ok && p.Probability >= floor {
		conf := p.Probability
		return Result{Category: p.Category, Source: canonical.SourceML, Confidence: &conf}
	}
	return Result{Source: canonical.SourceNone}
}

// Engine categorizes transactions against the active rule set and the
// model cached for it.
type Engine struct {
	Active *rules.Active
	Models *ModelCache
	Floor  float64
}

// NewEngine returns an engine using the default confidence floor when floor
// is zero.
func NewEngine(active *rules.Active, models *ModelCache, floor float64) *Engine {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Engine{Active: active, Models: models, Floor: floor}
}

// Apply categorizes tx in place. Manual assignments are never replaced.
func (e *Engine) Apply(ctx context.Context, tx *canonical.Transaction) Result {
	if tx.CategorySource == canonical.SourceManual {
		return Result{Category: tx.Category, Source: canonical.SourceManual}
	}
	snap := e.Active.Snapshot()
	var model *Model
	if e.Models != nil {
		model = e.Models.Get(ctx, snap)
	}
	res := Categorize(tx.Description, tx.Amount, snap.Compiled, model, e.Floor)
	tx.Category = res.Category
	tx.CategorySource = res.Source
	tx.Confidence = res.Confidence
	for _, tag := range res.Tags {
		tx.AddTag(tag)
	}

	log := logger.Component(ctx, logger.ComponentCategorize)
	ev := log.Debug().Str(logger.FieldFingerprint, tx.Fingerprint).Str(logger.FieldSource, string(res.Source))
	if res.Rule != "" {
		ev = ev.Str(logger.FieldRule, res.Rule)
	}
	if res.Confidence != nil {
		ev = ev.Float64(logger.FieldConfidence, *res.Confidence)
	}
	ev.Str(logger.FieldCategory, res.Category).Msg("categorized")
	return res
}
