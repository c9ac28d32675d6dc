package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/logger"
)

// Reconciler cross-checks statement rows (usually from a PDF) against a
// reference export of the same period (usually the bank's XML).
type Reconciler struct{}

// ReconcileItem identifies one unmatched row.
type ReconcileItem struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Ref         string `json:"ref"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Difference is a matched pair whose description or sign disagree.
type Difference struct {
	Date            string  `json:"date"`
	Fingerprint     string  `json:"fingerprint"`
	Amount          string  `json:"amount"`
	ReferenceAmount string  `json:"reference_amount"`
	Description     string  `json:"description"`
	ReferenceDesc   string  `json:"reference_description"`
	Similarity      float64 `json:"similarity"`
}

// ReconcileSummary is the outcome of one reconciliation.
type ReconcileSummary struct {
	Matched        int             `json:"matched"`
	Total          int             `json:"total"`
	TotalReference int             `json:"total_reference"`
	Only           []ReconcileItem `json:"pdf_only,omitempty"`
	ReferenceOnly  []ReconcileItem `json:"xml_only,omitempty"`
	Differences    []Difference    `json:"differences,omitempty"`
	matched        []string
}

type matchKey struct {
	date  string
	cents int64
}

func keyOf(t canonical.Transaction) matchKey {
	c := t.AmountCents()
	if c < 0 {
		c = -c
	}
	return matchKey{date: t.Date.Format(time.DateOnly), cents: c}
}

// Reconcile pairs rows by date and absolute amount, each reference row used
// at most once in order. Matched rows take the reference fiscal id when
// they have none. The returned slice has the same rows and order as txs.
func (r *Reconciler) Reconcile(ctx context.Context, txs, reference []canonical.Transaction) ([]canonical.Transaction, ReconcileSummary) {
	log := logger.Component(ctx, logger.ComponentReconcile)
	index := map[matchKey][]int{}
	for i, ref := range reference {
		k := keyOf(ref)
		index[k] = append(index[k], i)
	}
	used := make([]bool, len(reference))
	sum := ReconcileSummary{Total: len(txs), TotalReference: len(reference)}

	out := make([]canonical.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx
		j := -1
		for _, cand := range index[keyOf(tx)] {
			if !used[cand] {
				j = cand
				break
			}
		}
		if j < 0 {
			sum.Only = append(sum.Only, item(tx))
			continue
		}
		used[j] = true
		ref := reference[j]
		sum.Matched++
		sum.matched = append(sum.matched, tx.Fingerprint)
		if out[i].FiscalID == "" && ref.FiscalID != "" {
			out[i].FiscalID = ref.FiscalID
			out[i].AddTag("rfc:" + strings.ToUpper(ref.FiscalID))
		}
		sim := descSimilarity(tx.Description, ref.Description)
		if sim < 1 || tx.Amount.Sub(ref.Amount).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
			sum.Differences = append(sum.Differences, Difference{
				Date:            tx.Date.Format(time.DateOnly),
				Fingerprint:     tx.Fingerprint,
				Amount:          tx.Amount.StringFixed(2),
				ReferenceAmount: ref.Amount.StringFixed(2),
				Description:     tx.Description,
				ReferenceDesc:   ref.Description,
				Similarity:      sim,
			})
		}
	}
	for i, ref := range reference {
		if !used[i] {
			sum.ReferenceOnly = append(sum.ReferenceOnly, item(ref))
		}
	}

	log.Info().
		Int("matched", sum.Matched).
		Int("pdf_only", len(sum.Only)).
		Int("xml_only", len(sum.ReferenceOnly)).
		Int("differences", len(sum.Differences)).
		Msg("reconciled against reference")
	return out, sum
}

// Findings converts the summary into rows for the reconciliation table.
func (s ReconcileSummary) Findings(importID string) []repository.Finding {
	imp := &importID
	var out []repository.Finding
	for _, fp := range s.matched {
		out = append(out, repository.Finding{ImportID: imp, Kind: repository.FindingMatched, Fingerprint: fp})
	}
	for _, it := range s.Only {
		out = append(out, repository.Finding{ImportID: imp, Kind: repository.FindingPDFOnly, Fingerprint: it.Fingerprint, Reference: it.Ref, Detail: it.String()})
	}
	for _, it := range s.ReferenceOnly {
		out = append(out, repository.Finding{ImportID: imp, Kind: repository.FindingXMLOnly, Reference: it.Ref, Detail: it.String()})
	}
	for _, d := range s.Differences {
		out = append(out, repository.Finding{
			ImportID:    imp,
			Kind:        repository.FindingDifference,
			Fingerprint: d.Fingerprint,
			Detail: fmt.Sprintf("%s amount %s vs %s, description %q vs %q (similarity %.2f)",
				d.Date, d.Amount, d.ReferenceAmount, d.Description, d.ReferenceDesc, d.Similarity),
		})
	}
	return out
}

func (it ReconcileItem) String() string {
	return fmt.Sprintf("%s %s %s", it.Date, it.Amount, it.Description)
}

func item(t canonical.Transaction) ReconcileItem {
	return ReconcileItem{
		Date:        t.Date.Format(time.DateOnly),
		Amount:      t.Amount.StringFixed(2),
		Description: t.Description,
		Ref:         t.SourceRef,
		Fingerprint: t.Fingerprint,
	}
}

func descSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.Join(strings.Fields(a), " "))
	b = strings.ToLower(strings.Join(strings.Fields(b), " "))
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
