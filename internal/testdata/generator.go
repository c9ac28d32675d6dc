// Package testdata writes statement fixtures in the formats the extractors
// read. Amounts are written the way the bank prints them.
package testdata

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Movement is one statement line.
type Movement struct {
	Date        time.Time
	Description string
	// Amount is negative for charges.
	Amount   decimal.Decimal
	FiscalID string
}

var merchants = []string{
	"OXXO SUC 1234",
	"WALMART SUPERCENTER",
	"NETFLIX.COM",
	"UBER *TRIP",
	"FARMACIA GUADALAJARA",
	"AMAZON MX MARKETPLACE",
	"CFE SUMINISTRADOR",
	"STARBUCKS COFFEE",
}

// Sample returns n deterministic charges spread over the 30 days before
// end.
func Sample(n int, seed int64, end time.Time) []Movement {
	r := rand.New(rand.NewSource(seed))
	out := make([]Movement, 0, n)
	for i := 0; i < n; i++ {
		cents := int64(r.Intn(200000) + 500)
		out = append(out, Movement{
			Date:        end.AddDate(0, 0, -r.Intn(30)),
			Description: merchants[r.Intn(len(merchants))],
			Amount:      decimal.New(-cents, -2),
		})
	}
	return out
}

// WriteCSV writes a semicolon separated export with a banner line above
// the header, as bank portals do.
func WriteCSV(path string, ms []Movement) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Comma = ';'
	records := [][]string{
		{"Consulta de movimientos", "", ""},
		{"Fecha", "Descripción", "Importe"},
	}
	for _, m := range ms {
		records = append(records, []string{m.Date.Format("02/01/2006"), m.Description, m.Amount.StringFixed(2)})
	}
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteXLSX writes a workbook with separate charge and credit columns
// under two banner rows.
func WriteXLSX(path string, ms []Movement) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"BANCO EJEMPLO S.A."},
		{"Estado de cuenta"},
		{"Fecha", "Concepto", "Cargos", "Abonos"},
	}
	for _, m := range ms {
		debit, credit := "", ""
		if m.Amount.IsNegative() {
			debit = m.Amount.Abs().StringFixed(2)
		} else {
			credit = m.Amount.StringFixed(2)
		}
		rows = append(rows, []any{m.Date.Format("02/01/2006"), m.Description, debit, credit})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// WriteCFDI writes a tax-invoice statement whose addenda lists the
// movements. Charges are written positive, as the issuing bank does.
func WriteCFDI(path, accountNumber string, ms []Movement) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	el := func(name string, attrs ...string) xml.StartElement {
		start := xml.StartElement{Name: xml.Name{Local: name}}
		for i := 0; i+1 < len(attrs); i += 2 {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
		}
		return start
	}
	root := el("cfdi:Comprobante", "xmlns:cfdi", "http://www.sat.gob.mx/cfd/4")
	addenda := el("cfdi:Addenda")
	stmt := el("EC:EstadoDeCuenta", "xmlns:EC", "http://bank.example/ec")
	tokens := []xml.Token{
		xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)},
		root,
		el("cfdi:Emisor", "Rfc", "BEJ950125KG8"), xml.EndElement{Name: xml.Name{Local: "cfdi:Emisor"}},
		addenda,
		el("DG:DatosGenerales", "xmlns:DG", "http://bank.example/dg", "numerodecuenta", accountNumber),
		xml.EndElement{Name: xml.Name{Local: "DG:DatosGenerales"}},
		stmt,
	}
	for _, m := range ms {
		name := "EC:MovimientosDelCliente"
		attrs := []string{
			"fecha", m.Date.Format("2006-01-02") + "T00:00:00",
			"descripcion", m.Description,
			"importe", m.Amount.Neg().StringFixed(2),
		}
		if m.FiscalID != "" {
			name = "EC:MovimientoDelClienteFiscal"
			attrs = append(attrs, "RFCenajenante", m.FiscalID)
		}
		tokens = append(tokens, el(name, attrs...), xml.EndElement{Name: xml.Name{Local: name}})
	}
	tokens = append(tokens, stmt.End(), addenda.End(), root.End())
	for _, tok := range tokens {
		if err := enc.EncodeToken(tok); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var monthAbbr = [...]string{"ENE", "FEB", "MAR", "ABR", "MAY", "JUN", "JUL", "AGO", "SEP", "OCT", "NOV", "DIC"}

// StatementText renders the text layer of a card statement: a header with
// the cutoff date followed by year-less movement lines.
func StatementText(cutoff time.Time, ms []Movement) string {
	var b strings.Builder
	b.WriteString("ESTADO DE CUENTA\n")
	fmt.Fprintf(&b, "FECHA DE CORTE: %02d/%s/%d\n", cutoff.Day(), monthAbbr[cutoff.Month()-1], cutoff.Year())
	for _, m := range ms {
		fmt.Fprintf(&b, "%02d %s %s %s\n", m.Date.Day(), monthAbbr[m.Date.Month()-1], m.Description, m.Amount.Neg().StringFixed(2))
	}
	return b.String()
}
