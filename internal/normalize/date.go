package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRe     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:[ T].*)?$`)
	numericDateRe = regexp.MustCompile(`^(\d{1,2})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{4}|\d{2})$`)
	// 12 ENE, 12/ene/26, 12-enero-2024, 12 de enero de 2024
	monthDateRe = regexp.MustCompile(`^(\d{1,2})(?:\s+de)?[\s/\-.]*([a-z]{3,10})\.?(?:(?:\s+de)?[\s/\-.]*(\d{4}|\d{2}))?$`)
)

var spanishMonths = map[string]time.Month{
	"ene": time.January, "enero": time.January,
	"feb": time.February, "febrero": time.February,
	"mar": time.March, "marzo": time.March,
	"abr": time.April, "abril": time.April,
	"may": time.May, "mayo": time.May,
	"jun": time.June, "junio": time.June,
	"jul": time.July, "julio": time.July,
	"ago": time.August, "agosto": time.August,
	"sep": time.September, "set": time.September, "sept": time.September,
	"septiembre": time.September, "setiembre": time.September,
	"oct": time.October, "octubre": time.October,
	"nov": time.November, "noviembre": time.November,
	"dic": time.December, "diciembre": time.December,
}

// MonthFromName resolves a Spanish month abbreviation or full name, ignoring
// case and accents.
func MonthFromName(name string) (time.Month, bool) {
	m, ok := spanishMonths[strings.ToLower(Fold(strings.TrimSpace(name)))]
	return m, ok
}

type dateParts struct {
	year, month, day int
	hasYear          bool
}

func splitDate(raw string) (dateParts, error) {
	s := strings.ToLower(Fold(strings.Join(strings.Fields(raw), " ")))
	if s == "" {
		return dateParts{}, dateErr(raw, "empty")
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return dateParts{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3]), hasYear: true}, nil
	}
	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		return dateParts{year: fullYear(m[3]), month: atoi(m[2]), day: atoi(m[1]), hasYear: true}, nil
	}
	if m := monthDateRe.FindStringSubmatch(s); m != nil {
		month, ok := MonthFromName(m[2])
		if !ok {
			return dateParts{}, dateErr(raw, "unknown month "+m[2])
		}
		p := dateParts{month: int(month), day: atoi(m[1])}
		if m[3] != "" {
			p.year = fullYear(m[3])
			p.hasYear = true
		}
		return p, nil
	}
	return dateParts{}, dateErr(raw, "unrecognized date format")
}

func (p dateParts) date(raw string) (time.Time, error) {
	if p.month < 1 || p.month > 12 {
		return time.Time{}, dateErr(raw, "month out of range")
	}
	t := time.Date(p.year, time.Month(p.month), p.day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, so 31/02 would silently become March
	if t.Day() != p.day || int(t.Month()) != p.month {
		return time.Time{}, dateErr(raw, "day out of range")
	}
	return t, nil
}

// ParseDate parses ISO, dd/mm/yy[yy], dd-mm-yyyy and Spanish month forms.
// Year-less inputs such as "12 ENE" take refYear; a zero refYear makes them an
// error. The result is a UTC calendar date.
func ParseDate(raw string, refYear int) (time.Time, error) {
	p, err := splitDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if !p.hasYear {
		if refYear <= 0 {
			return time.Time{}, dateErr(raw, "no year and no reference year")
		}
		p.year = refYear
	}
	return p.date(raw)
}

// ParseDateBefore parses raw like ParseDate but infers a missing year from a
// statement cutoff: months after the cutoff month belong to the previous year.
func ParseDateBefore(raw string, cutoff time.Time) (time.Time, error) {
	p, err := splitDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if !p.hasYear {
		p.year = cutoff.Year()
		if p.month > int(cutoff.Month()) {
			p.year--
		}
	}
	return p.date(raw)
}

// FormatDate renders the canonical YYYY-MM-DD form.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func fullYear(s string) int {
	n := atoi(s)
	if len(s) == 2 {
		return 2000 + n
	}
	return n
}
