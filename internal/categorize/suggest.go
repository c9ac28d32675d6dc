package categorize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/rules"
)

// Unmatched is a stored transaction no rule claimed.
type Unmatched struct {
	Merchant    string
	Description string
	Amount      decimal.Decimal
}

// Suggestion proposes a rule for a group of similar merchants.
type Suggestion struct {
	Merchant string
	Variants []string
	Count    int
	Total    decimal.Decimal
	Examples []string
	Rule     rules.Rule
}

// SuggestOptions tunes SuggestRules.
type SuggestOptions struct {
	MinCount         int
	Similarity       float64
	Priority         int
	FallbackCategory string
	Model            *Model
	Floor            float64
}

const maxSuggestionExamples = 3

// SuggestRules groups unmatched merchants, folding near-identical names
// together by edit distance, and proposes an Auto:<merchant> rule for each
// group seen at least MinCount times. The category comes from the model
// when it is confident, else the fallback category.
func SuggestRules(items []Unmatched, opts SuggestOptions) []Suggestion {
	if opts.MinCount <= 0 {
		opts.MinCount = 2
	}
	if opts.Similarity <= 0 {
		opts.Similarity = 0.8
	}
	if opts.Priority == 0 {
		opts.Priority = 900
	}
	if opts.FallbackCategory == "" {
		opts.FallbackCategory = "Uncategorized"
	}
	if opts.Floor <= 0 {
		opts.Floor = DefaultConfidenceFloor
	}

	byMerchant := map[string][]Unmatched{}
	var names []string
	for _, it := range items {
		m := strings.TrimSpace(it.Merchant)
		if m == "" || m == "unknown" {
			continue
		}
		if _, ok := byMerchant[m]; !ok {
			names = append(names, m)
		}
		byMerchant[m] = append(byMerchant[m], it)
	}
	// most frequent first so the group is named after its dominant spelling
	sort.SliceStable(names, func(i, j int) bool {
		ci, cj := len(byMerchant[names[i]]), len(byMerchant[names[j]])
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})

	var groups [][]string
	for _, n := range names {
		placed := false
		for gi, g := range groups {
			if Similarity(g[0], n) >= opts.Similarity {
				groups[gi] = append(groups[gi], n)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []string{n})
		}
	}

	var out []Suggestion
	for _, g := range groups {
		s := Suggestion{Merchant: g[0], Variants: g}
		var patterns []string
		for _, variant := range g {
			for _, it := range byMerchant[variant] {
				s.Count++
				s.Total = s.Total.Add(it.Amount)
				if len(s.Examples) < maxSuggestionExamples {
					s.Examples = append(s.Examples, it.Description)
				}
			}
			patterns = append(patterns, merchantPattern(variant))
		}
		if s.Count < opts.MinCount {
			continue
		}
		category := opts.FallbackCategory
		if p, ok := opts.Model.Predict(strings.Join(s.Examples, " "), decimal.Zero); ok && p.Probability >= opts.Floor {
			category = p.Category
		}
		s.Rule = rules.Rule{
			Name:     "Auto:" + s.Merchant,
			Priority: opts.Priority,
			Patterns: patterns,
			Category: category,
			Tags:     []string{"bucket:" + s.Merchant},
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Similarity is 1 minus the edit distance over the longer length.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func merchantPattern(merchant string) string {
	words := strings.Split(merchant, "_")
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return fmt.Sprintf(`\b%s\b`, strings.Join(words, `\s+`))
}
