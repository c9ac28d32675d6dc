package rules

import (
	"fmt"
	"regexp/syntax"
	"strings"
)

// ConflictReason says why two rules clash.
type ConflictReason string

const (
	ReasonName    ConflictReason = "name_collision"
	ReasonPattern ConflictReason = "pattern_overlap"
	ReasonSample  ConflictReason = "sample_overlap"
)

// Conflict pairs a pending rule with the rule it clashes with.
type Conflict struct {
	Pending  string
	Existing string
	Reason   ConflictReason
	// Evidence is the pattern or description both rules match.
	Evidence string
}

func (c Conflict) String() string {
	if c.Evidence == "" {
		return fmt.Sprintf("%s vs %s: %s", c.Pending, c.Existing, c.Reason)
	}
	return fmt.Sprintf("%s vs %s: %s (%q)", c.Pending, c.Existing, c.Reason, c.Evidence)
}

// ConflictError blocks a stage or merge.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%d rule conflict(s): %s", len(e.Conflicts), strings.Join(parts, "; "))
}

// DetectConflicts compares candidate rules against existing ones. Two rules
// with the same name always conflict; otherwise they conflict when they map
// to different categories and some text matches both: an identical pattern,
// a literal one pattern accepts, or one of the sample descriptions.
func DetectConflicts(candidates, existing []Rule, samples []string) ([]Conflict, error) {
	exCompiled := make([]CompiledRule, 0, len(existing))
	for i, r := range existing {
		cr, err := compileRule(r, i)
		if err != nil {
			return nil, err
		}
		exCompiled = append(exCompiled, cr)
	}

	var out []Conflict
	for i, cand := range candidates {
		cc, err := compileRule(cand, i)
		if err != nil {
			return nil, err
		}
		candWitness := witnesses(cand.Patterns)
		for _, ex := range exCompiled {
			if strings.EqualFold(cand.Name, ex.Name) {
				out = append(out, Conflict{Pending: cand.Name, Existing: ex.Name, Reason: ReasonName})
				continue
			}
			if strings.EqualFold(cand.Category, ex.Category) {
				continue
			}
			if c, ok := overlap(cc, ex, candWitness); ok {
				out = append(out, c)
				continue
			}
			for _, s := range samples {
				if matchesEither(cc, s) && matchesEither(ex, s) {
					out = append(out, Conflict{Pending: cand.Name, Existing: ex.Name, Reason: ReasonSample, Evidence: s})
					break
				}
			}
		}
	}
	return out, nil
}

func matchesEither(r CompiledRule, text string) bool {
	return r.Matches(text) || r.Matches(strings.ToLower(text))
}

func overlap(cand, ex CompiledRule, candWitness []string) (Conflict, bool) {
	for _, p := range cand.Patterns {
		for _, q := range ex.Patterns {
			if strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(q)) {
				return Conflict{Pending: cand.Name, Existing: ex.Name, Reason: ReasonPattern, Evidence: p}, true
			}
		}
	}
	for _, w := range candWitness {
		if ex.Matches(w) {
			return Conflict{Pending: cand.Name, Existing: ex.Name, Reason: ReasonPattern, Evidence: w}, true
		}
	}
	for _, w := range witnesses(ex.Patterns) {
		if cand.Matches(w) {
			return Conflict{Pending: cand.Name, Existing: ex.Name, Reason: ReasonPattern, Evidence: w}, true
		}
	}
	return Conflict{}, false
}

const maxWitnesses = 32

// witnesses returns short strings each pattern is known to accept, derived
// from the pattern's syntax tree. Patterns that are not literal enough yield
// nothing.
func witnesses(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		re, err := syntax.Parse(p, syntax.Perl|syntax.FoldCase)
		if err != nil {
			continue
		}
		cr, err := compilePattern(p)
		if err != nil {
			continue
		}
		for _, w := range expand(re.Simplify()) {
			w = strings.ToLower(w)
			if strings.TrimSpace(w) != "" && cr.MatchString(w) {
				out = append(out, w)
			}
		}
	}
	return out
}

func expand(re *syntax.Regexp) []string {
	switch re.Op {
	case syntax.OpLiteral:
		return []string{string(re.Rune)}
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary:
		return []string{""}
	case syntax.OpCharClass:
		if len(re.Rune) < 2 {
			return nil
		}
		for i := 0; i+1 < len(re.Rune); i += 2 {
			if re.Rune[i] <= ' ' && ' ' <= re.Rune[i+1] {
				return []string{" "}
			}
		}
		return []string{string(re.Rune[0])}
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		return []string{" "}
	case syntax.OpCapture, syntax.OpPlus:
		return expand(re.Sub[0])
	case syntax.OpStar, syntax.OpQuest:
		return optional(re.Sub[0])
	case syntax.OpRepeat:
		if re.Min == 0 {
			return optional(re.Sub[0])
		}
		one := expand(re.Sub[0])
		out := make([]string, 0, len(one))
		for _, s := range one {
			out = append(out, strings.Repeat(s, re.Min))
		}
		return out
	case syntax.OpAlternate:
		var out []string
		for _, sub := range re.Sub {
			out = append(out, expand(sub)...)
			if len(out) >= maxWitnesses {
				return out[:maxWitnesses]
			}
		}
		return out
	case syntax.OpConcat:
		acc := []string{""}
		for _, sub := range re.Sub {
			parts := expand(sub)
			if len(parts) == 0 {
				return nil
			}
			next := make([]string, 0, min(len(acc)*len(parts), maxWitnesses))
		product:
			for _, a := range acc {
				for _, p := range parts {
					next = append(next, a+p)
					if len(next) >= maxWitnesses {
						break product
					}
				}
			}
			acc = next
		}
		return acc
	default:
		return nil
	}
}

// optional expands a sub-expression that may be skipped: the empty string
// plus one pass through it.
func optional(sub *syntax.Regexp) []string {
	out := []string{""}
	for _, s := range expand(sub) {
		if len(out) >= maxWitnesses {
			break
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
