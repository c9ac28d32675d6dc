package categorize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jbrukh/bayesian"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/normalize"
)

// ErrInsufficientData means there is not enough labelled history to train.
var ErrInsufficientData = errors.New("insufficient training data")

// Example is one labelled transaction.
type Example struct {
	Description string
	Amount      decimal.Decimal
	Category    string
}

// Prediction is the model's best guess.
type Prediction struct {
	Category    string
	Probability float64
}

// Model is a naive Bayes classifier over description tokens and an amount
// bucket. It is derived state and can be rebuilt at any time.
type Model struct {
	cl       *bayesian.Classifier
	classes  []bayesian.Class
	examples int
}

// Train builds a model. At least two categories and minExamples labelled
// rows are required.
func Train(examples []Example, minExamples int) (*Model, error) {
	var usable []Example
	seen := map[string]struct{}{}
	var classes []bayesian.Class
	for _, ex := range examples {
		cat := strings.TrimSpace(ex.Category)
		if cat == "" || len(Features(ex.Description, ex.Amount)) == 0 {
			continue
		}
		ex.Category = cat
		usable = append(usable, ex)
		if _, ok := seen[cat]; !ok {
			seen[cat] = struct{}{}
			classes = append(classes, bayesian.Class(cat))
		}
	}
	if len(usable) < minExamples || len(classes) < 2 {
		return nil, fmt.Errorf("%w: %d examples across %d categories", ErrInsufficientData, len(usable), len(classes))
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	cl := bayesian.NewClassifier(classes...)
	for _, ex := range usable {
		cl.Learn(Features(ex.Description, ex.Amount), bayesian.Class(ex.Category))
	}
	return &Model{cl: cl, classes: classes, examples: len(usable)}, nil
}

// Examples is the number of rows the model learned from.
func (m *Model) Examples() int {
	if m == nil {
		return 0
	}
	return m.examples
}

// Predict returns the most probable category.
func (m *Model) Predict(description string, amount decimal.Decimal) (Prediction, bool) {
	if m == nil {
		return Prediction{}, false
	}
	feats := Features(description, amount)
	if len(feats) == 0 {
		return Prediction{}, false
	}
	scores, best, _ := m.cl.ProbScores(feats)
	if best < 0 || best >= len(scores) {
		return Prediction{}, false
	}
	return Prediction{Category: string(m.classes[best]), Probability: scores[best]}, true
}

// Features tokenizes a description for the classifier: folded lower-case
// words of two or more letters plus direction and amount-bucket tokens.
func Features(description string, amount decimal.Decimal) []string {
	var out []string
	for _, tok := range strings.Fields(normalize.MatchText(description)) {
		tok = strings.Trim(tok, "./&@#-")
		if len([]rune(tok)) < 2 || strings.IndexFunc(tok, isLetter) < 0 {
			continue
		}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil
	}
	if !amount.IsZero() {
		out = append(out, "dir:"+direction(amount), "amt:"+bucket(amount))
	}
	return out
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || r > 0x7f
}

func direction(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "out"
	}
	return "in"
}

var bucketEdges = []struct {
	limit decimal.Decimal
	name  string
}{
	{decimal.NewFromInt(50), "xs"},
	{decimal.NewFromInt(200), "s"},
	{decimal.NewFromInt(1000), "m"},
	{decimal.NewFromInt(5000), "l"},
}

func bucket(amount decimal.Decimal) string {
	a := amount.Abs()
	for _, e := range bucketEdges {
		if a.LessThan(e.limit) {
			return e.name
		}
	}
	return "xl"
}
