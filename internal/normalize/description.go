package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keys are accent-free upper case; values are the normalized form.
var glossary = map[string]string{
	"COMISION":       "comisión",
	"ADMINISTRACION": "administración",
	"CANCELACION":    "cancelación",
	"DEVOLUCION":     "devolución",
	"DISPOSICION":    "disposición",
	"RENOVACION":     "renovación",
	"OPERACION":      "operación",
	"TRANSACCION":    "transacción",
	"PROTECCION":     "protección",
	"REPOSICION":     "reposición",
	"FACTURACION":    "facturación",
	"COMUNICACION":   "comunicación",
	"NOTIFICACION":   "notificación",
	"PUBLICACION":    "publicación",
	"PENSION":        "pensión",
	"DEPOSITO":       "depósito",
	"CREDITO":        "crédito",
	"DEBITO":         "débito",
	"AUTOMATICO":     "automático",
	"ELECTRONICO":    "electrónico",
	"MEDICO":         "médico",
	"NUMERO":         "número",
	"MINIMO":         "mínimo",
	"MAXIMO":         "máximo",
	"UNICO":          "único",
	"PUBLICO":        "público",
	"NOMINA":         "nómina",
	"INTERES":        "interés",
	"INTERESES":      "intereses",
	"TRANSF":         "transferencia",
	"TRASP":          "traspaso",
	"SUPERCT":        "supercenter",
	"MERPAGO":        "mercadopago",
	"MERCADOPAGO":    "mercadopago",
}

var acronyms = map[string]struct{}{
	"SPEI": {}, "IVA": {}, "RFC": {}, "ATM": {}, "PIN": {}, "CVV": {}, "CIE": {},
	"CLABE": {}, "SAT": {}, "CFE": {}, "IMSS": {}, "ISSSTE": {}, "INFONAVIT": {},
	"OXXO": {}, "ISR": {}, "TDC": {}, "TDD": {},
}

var (
	longNumberRe   = regexp.MustCompile(`^\d{12,}$`)
	repeatedPunct  = regexp.MustCompile(`([*./&@#-])[*./&@#-]+`)
	tokenTrimChars = `*.,;:/&@#-_'"!?()[]{}<>|\`
)

// Description cleans a raw bank description: NFKC, lower case, redundant
// punctuation and long reference numbers removed, known abbreviations
// expanded, accents restored, acronyms kept upper case. Applying it twice is
// the same as applying it once. A non-empty input never yields "".
func Description(raw string) string {
	lower := cases.Lower(language.Spanish)
	s := norm.NFKC.String(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("./&@#-", r) {
			return r
		}
		return ' '
	}, s)
	s = repeatedPunct.ReplaceAllString(s, "$1")

	var out []string
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, tokenTrimChars)
		if tok == "" || longNumberRe.MatchString(tok) {
			continue
		}
		out = append(out, normalizeToken(lower, tok))
	}
	joined := strings.Join(joinCompounds(out), " ")
	if joined == "" {
		return lowerString(lower, strings.Join(strings.Fields(norm.NFKC.String(raw)), " "))
	}
	return joined
}

// lowerString lower-cases s and drops combining marks the caser leaves
// behind ("İ" becomes "i" plus U+0307), which a second pass would split on.
func lowerString(lower cases.Caser, s string) string {
	t := transform.Chain(lower, norm.NFC, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return lower.String(s)
	}
	return out
}

func normalizeToken(lower cases.Caser, tok string) string {
	key := strings.ToUpper(Fold(tok))
	if v, ok := glossary[key]; ok {
		return v
	}
	if _, ok := acronyms[key]; ok {
		return key
	}
	return lowerString(lower, tok)
}

// Adjacent token pairs that banks print split.
var compounds = map[[2]string]string{
	{"mercado", "pago"}: "mercadopago",
}

func joinCompounds(toks []string) []string {
	out := toks[:0:0]
	for i := 0; i < len(toks); i++ {
		if i+1 < len(toks) {
			if v, ok := compounds[[2]string{toks[i], toks[i+1]}]; ok {
				out = append(out, v)
				i++
				continue
			}
		}
		out = append(out, toks[i])
	}
	return out
}

// Fold strips diacritics ("débito" -> "debito"). Case is preserved.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// MatchText is the form rule patterns are evaluated against: the normalized
// description with accents folded, lower case.
func MatchText(normalized string) string {
	return strings.ToLower(Fold(normalized))
}
