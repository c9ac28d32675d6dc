package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyTokens   = strings.NewReplacer("$", "", "€", "", "MXN", "", "USD", "", "EUR", "", "mxn", "", "usd", "", "eur", "", "\u00a0", "", " ", "", "\t", "")
	amountCharsRe    = regexp.MustCompile(`^[+-]?[\d.,]+$`)
	commaThousandsRe = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	dotThousandsRe   = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}$`)
)

// ParseAmount parses thousands-separated and plain decimal amounts such as
// "1,234.56", "$ -45.00", "1.234,56", "(300.00)" or "99.90-". The last of
// '.' or ',' is the decimal separator when both appear. Unparsable input is an
// error, never zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, amountErr(raw, "empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = currencyTokens.Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if !amountCharsRe.MatchString(s) {
		return decimal.Zero, amountErr(raw, "not a number")
	}

	sign := ""
	if s[0] == '+' || s[0] == '-' {
		if s[0] == '-' {
			negative = !negative
		}
		s = s[1:]
	}

	digits, err := canonicalDigits(s)
	if err != nil {
		return decimal.Zero, amountErr(raw, err.Error())
	}
	if negative {
		sign = "-"
	}
	d, err := decimal.NewFromString(sign + digits)
	if err != nil {
		return decimal.Zero, amountErr(raw, "not a number")
	}
	return d, nil
}

type amountFormatError string

func (e amountFormatError) Error() string { return string(e) }

// canonicalDigits rewrites an unsigned grouped number into "1234.56" form.
func canonicalDigits(s string) (string, error) {
	if s == "" || strings.Trim(s, ".,") == "" {
		return "", amountFormatError("no digits")
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		if commaThousandsRe.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			return "", amountFormatError("ambiguous separators")
		}
	case lastDot >= 0:
		if dotThousandsRe.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	if strings.Count(s, ".") > 1 || strings.ContainsAny(s, ",") {
		return "", amountFormatError("ambiguous separators")
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return strings.TrimSuffix(s, "."), nil
}
