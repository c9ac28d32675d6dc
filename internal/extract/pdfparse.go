package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/normalize"
)

const (
	datePart   = `\d{1,2}(?:\s*[/-]?\s*[A-Za-z]{3,10}\.?|\s*[/-]\s*\d{1,2}\s*[/-]\s*\d{2,4})`
	amountPart = `[-+]?\$?\s?(?:\d{1,3}(?:[,.\s]\d{3})+|\d+)[.,]\d{2}-?`
)

// A row is a leading date (optionally a second posting date), a
// description and the first amount after it.
var rowRe = regexp.MustCompile(`^\s*(` + datePart + `)(?:\s+` + datePart + `)?\s+(.+?)\s+(` + amountPart + `)(?:\s|$)`)

var ocrLineCleanup = strings.NewReplacer(" - ", "-", "$ ", "", "$", "", "|", " ")

// metaDate accepts 15/ENE/2024, 15-ene-24 and 15/01/2024.
const metaDate = `(\d{1,2}\s*[/-]\s*(?:[A-Za-z]{3,10}|\d{1,2})\s*[/-]\s*\d{2,4}|\d{1,2}\s+(?:de\s+)?[A-Za-z]{3,10}\s+(?:de\s+)?\d{4})`
const metaAmount = `\$?\s*([\d,]+\.\d{2})`

var metaPatterns = map[string][]*regexp.Regexp{
	"cutoff_date": {
		regexp.MustCompile(`(?i)(?:fecha|periodo)\s*de\s*corte[:.\s]*` + metaDate),
		regexp.MustCompile(`(?i)corte[:.\s]*` + metaDate),
	},
	"due_date": {
		regexp.MustCompile(`(?i)(?:fecha|l[ií]mite)\s*(?:l[ií]mite\s*)?de\s*pago[:.\s]*` + metaDate),
	},
	"period": {
		regexp.MustCompile(`(?i)periodo[:.\s]*(\d{1,2}\s*[/-]?\s*\w{3,10}\s*[/-]?\s*\d{2,4})\s*(?:-|al|a)\s*(\d{1,2}\s*[/-]?\s*\w{3,10}\s*[/-]?\s*\d{2,4})`),
	},
	"minimum_payment": {
		regexp.MustCompile(`(?i)pago\s*m[ií]nimo[:.\s]*` + metaAmount),
	},
	"no_interest_payment": {
		regexp.MustCompile(`(?i)pago\s*para\s*no\s*generar\s*intereses[:.\s]*` + metaAmount),
	},
	"total_due": {
		regexp.MustCompile(`(?i)(?:total\s*a\s*pagar|saldo\s*total)[:.\s]*` + metaAmount),
	},
}

var metaOrder = []string{"cutoff_date", "due_date", "period", "minimum_payment", "no_interest_payment", "total_due"}

// maxStatementAmount bounds header totals; larger values are misreads.
var maxStatementAmount = decimal.NewFromInt(100_000_000)

// MetaWindow bounds plausible header dates.
type MetaWindow struct {
	Now         time.Time
	MaxAgeYears int
	FutureDays  int
}

func (w MetaWindow) plausibleDate(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	now := w.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	age := w.MaxAgeYears
	if age <= 0 {
		age = 10
	}
	future := w.FutureDays
	if future <= 0 {
		future = 60
	}
	return !t.Before(now.AddDate(-age, 0, 0)) && !t.After(now.AddDate(0, 0, future))
}

func plausibleAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(maxStatementAmount)
}

// ParseMetadata finds statement header values in text. Values that do not
// parse or fall outside the window are dropped. Keys already present in
// into are kept; method is recorded for each key filled.
func ParseMetadata(text string, into Metadata, method Method, w MetaWindow) Metadata {
	if into.Source == nil {
		into.Source = map[string]Method{}
	}
	for _, key := range metaOrder {
		if _, done := into.Source[key]; done {
			continue
		}
		for _, re := range metaPatterns[key] {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if applyMeta(&into, key, m, w) {
				into.Source[key] = method
				break
			}
		}
	}
	// a due date before the cutoff means one of them was misread
	if !into.DueDate.IsZero() && !into.CutoffDate.IsZero() && into.DueDate.Before(into.CutoffDate) && into.Source["due_date"] == method {
		into.DueDate = time.Time{}
		delete(into.Source, "due_date")
	}
	return into
}

func applyMeta(m *Metadata, key string, match []string, w MetaWindow) bool {
	switch key {
	case "cutoff_date", "due_date":
		t, err := normalize.ParseDate(match[1], 0)
		if err != nil || !w.plausibleDate(t) {
			return false
		}
		if key == "cutoff_date" {
			m.CutoffDate = t
		} else {
			m.DueDate = t
		}
	case "period":
		start, err1 := normalize.ParseDate(match[1], 0)
		end, err2 := normalize.ParseDate(match[2], 0)
		if err1 != nil || err2 != nil || end.Before(start) || !w.plausibleDate(end) {
			return false
		}
		m.PeriodStart, m.PeriodEnd = start, end
	default:
		d, err := normalize.ParseAmount(match[1])
		if err != nil || !plausibleAmount(d) {
			return false
		}
		nd := decimal.NewNullDecimal(d)
		switch key {
		case "minimum_payment":
			m.MinimumPayment = nd
		case "no_interest_payment":
			m.NoInterestPayment = nd
		case "total_due":
			m.TotalDue = nd
		}
	}
	return true
}

// ParseRows applies the row pattern to every line of every page. Year-less
// dates are resolved against cutoff when it is known.
func ParseRows(pages []string, path string, method Method, cutoff time.Time) []Record {
	var out []Record
	for pi, page := range pages {
		for li, line := range strings.Split(page, "\n") {
			if method == MethodOCR {
				line = ocrLineCleanup.Replace(line)
			}
			m := rowRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			date, ok := rowDate(m[1], cutoff)
			if !ok {
				continue
			}
			if _, err := normalize.ParseAmount(m[3]); err != nil {
				continue
			}
			rec := NewRecord(Provenance{
				SourceFile: path,
				Ref:        pageRef(pi+1, li+1),
				Page:       pi + 1,
				Line:       li + 1,
				Method:     method,
			})
			rec.Fields[FieldDate] = date
			rec.Fields[FieldDescription] = strings.Join(strings.Fields(m[2]), " ")
			rec.Fields[FieldAmount] = strings.TrimSpace(m[3])
			out = append(out, rec)
		}
	}
	return out
}

// rowDate returns a time.Time when the year is known and the cleaned raw
// string otherwise, leaving year inference to the builder.
func rowDate(raw string, cutoff time.Time) (any, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if !cutoff.IsZero() {
		t, err := normalize.ParseDateBefore(raw, cutoff)
		return t, err == nil
	}
	// leap year probe: only validity matters here
	if _, err := normalize.ParseDate(raw, 2000); err != nil {
		return nil, false
	}
	if t, err := normalize.ParseDate(raw, 0); err == nil {
		return t, true
	}
	return raw, true
}

func pageRef(page, line int) string {
	return "page:" + strconv.Itoa(page) + "/line:" + strconv.Itoa(line)
}
