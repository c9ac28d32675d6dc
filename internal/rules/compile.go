package rules

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/normalize"
)

func compilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
	}
	return re, nil
}

// CompiledRule is a rule with its patterns compiled. Index is the position
// in the declared order.
type CompiledRule struct {
	Rule
	Index int
	res   []*regexp.Regexp
}

// Matches reports whether any pattern matches the text.
func (r CompiledRule) Matches(text string) bool {
	for _, re := range r.res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

type compiledAlias struct {
	canon string
	res   []*regexp.Regexp
}

// Compiled is an immutable, evaluation-ready rule set.
type Compiled struct {
	Rules    []CompiledRule
	Fallback string
	aliases  []compiledAlias
}

// Compile orders rules by ascending priority. Equal priorities keep their
// declared order.
func Compile(s *Set) (*Compiled, error) {
	c := &Compiled{Fallback: s.Defaults.FallbackCategory}
	for i, r := range s.Rules {
		cr, err := compileRule(r, i)
		if err != nil {
			return nil, err
		}
		c.Rules = append(c.Rules, cr)
	}
	sort.SliceStable(c.Rules, func(i, j int) bool {
		return c.Rules[i].Priority < c.Rules[j].Priority
	})
	for _, a := range s.MerchantAliases {
		ca := compiledAlias{canon: a.Canon}
		for _, p := range a.Patterns {
			re, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("merchant alias %q: %w", a.Canon, err)
			}
			ca.res = append(ca.res, re)
		}
		c.aliases = append(c.aliases, ca)
	}
	return c, nil
}

func compileRule(r Rule, index int) (CompiledRule, error) {
	cr := CompiledRule{Rule: r, Index: index}
	for _, p := range r.Patterns {
		re, err := compilePattern(p)
		if err != nil {
			return CompiledRule{}, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		cr.res = append(cr.res, re)
	}
	return cr, nil
}

// Match returns the first rule in priority order whose patterns match the
// normalized description, tried as is and with accents folded.
func (c *Compiled) Match(normalized string) (CompiledRule, bool) {
	if c == nil {
		return CompiledRule{}, false
	}
	folded := normalize.MatchText(normalized)
	for _, r := range c.Rules {
		if r.Matches(normalized) || r.Matches(folded) {
			return r, true
		}
	}
	return CompiledRule{}, false
}

// Merchant returns the canonical merchant for a normalized description.
func (c *Compiled) Merchant(normalized string) string {
	if c != nil {
		folded := normalize.MatchText(normalized)
		for _, a := range c.aliases {
			for _, re := range a.res {
				if re.MatchString(normalized) || re.MatchString(folded) {
					if a.canon == "" {
						return "unknown"
					}
					return a.canon
				}
			}
		}
	}
	return canonical.FallbackMerchant(normalized)
}
