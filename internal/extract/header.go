package extract

import (
	"strings"

	"github.com/jask/ledgerkit/internal/normalize"
)

// DefaultHeaderScan is how many leading rows are searched for the header.
const DefaultHeaderScan = 40

var headerAliases = []struct {
	field   string
	aliases []string
}{
	{FieldDate, []string{"fecha", "date", "dia de operacion", "transaction date"}},
	{FieldDescription, []string{"concepto", "descripcion", "description", "detalle", "movimiento", "establecimiento", "comercio", "narrative"}},
	{FieldAmount, []string{"importe", "monto", "amount", "cantidad"}},
	{FieldDebit, []string{"cargo", "retiro", "debito", "debit", "withdrawal"}},
	{FieldCredit, []string{"abono", "deposito", "credito", "credit"}},
	{FieldCurrency, []string{"moneda", "currency", "divisa"}},
}

// Header maps canonical field names to column indexes.
type Header struct {
	Row     int
	Columns map[string]int
}

// Valid reports whether the header has enough columns to build records.
func (h Header) Valid() bool {
	_, date := h.Columns[FieldDate]
	_, desc := h.Columns[FieldDescription]
	_, amt := h.Columns[FieldAmount]
	_, deb := h.Columns[FieldDebit]
	_, cred := h.Columns[FieldCredit]
	return date && desc && (amt || deb || cred)
}

// LocateHeader scans the first rows for one that names a date, a
// description and an amount (or debit/credit) column. Exports differ in how
// many banner rows precede it, so no fixed offset is assumed.
func LocateHeader(rows [][]string, maxScan int) (Header, bool) {
	if maxScan <= 0 {
		maxScan = DefaultHeaderScan
	}
	for i := 0; i < len(rows) && i < maxScan; i++ {
		h := Header{Row: i, Columns: map[string]int{}}
		for col, cell := range rows[i] {
			name := headerKey(cell)
			if name == "" {
				continue
			}
			if field := matchHeader(name); field != "" {
				if _, taken := h.Columns[field]; !taken {
					h.Columns[field] = col
				}
			}
		}
		if h.Valid() {
			return h, true
		}
	}
	return Header{}, false
}

func headerKey(cell string) string {
	s := strings.ToLower(normalize.Fold(strings.TrimSpace(cell)))
	s = strings.Trim(s, " .:*")
	return strings.Join(strings.Fields(s), " ")
}

func matchHeader(name string) string {
	// header cells are short labels; long cells are banner text
	if len(name) > 40 {
		return ""
	}
	for _, h := range headerAliases {
		for _, a := range h.aliases {
			if name == a || strings.HasPrefix(name, a+" ") || strings.HasPrefix(name, a+"s") || strings.HasPrefix(name, a+"(") {
				return h.field
			}
		}
	}
	return ""
}
