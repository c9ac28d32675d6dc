package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLocateHeaderSkipsBanner(t *testing.T) {
	t.Parallel()
	rows := [][]string{
		{"BANCO EJEMPLO S.A."},
		{"Estado de cuenta", "", "Mayo 2024"},
		{},
		{"Fecha Operación", "Concepto", "Cargos", "Abonos", "Saldo"},
		{"01/05/2024", "OXXO", "45.50", "", "1000"},
	}
	h, ok := LocateHeader(rows, 0)
	require.True(t, ok)
	require.Equal(t, 3, h.Row)
	require.Equal(t, 0, h.Columns[FieldDate])
	require.Equal(t, 1, h.Columns[FieldDescription])
	require.Equal(t, 2, h.Columns[FieldDebit])
	require.Equal(t, 3, h.Columns[FieldCredit])
	_, hasAmount := h.Columns[FieldAmount]
	require.False(t, hasAmount)

	_, ok = LocateHeader(rows[:3], 0)
	require.False(t, ok)
}

func TestTabularCSV(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "bbva.csv", "Reporte de movimientos;;\n\nFecha;Descripción;Importe\n01/05/2024;OXXO SUC 12;-45,50\n02/05/2024;NOMINA;15.000,00\n;;\nTotal;;14954,50\n03/05/2024;IGNORED;1\n")
	res, err := NewTabular().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, MethodTabular, res.Method)
	require.Len(t, res.Records, 2)
	require.Equal(t, "01/05/2024", res.Records[0].String(FieldDate))
	require.Equal(t, "OXXO SUC 12", res.Records[0].String(FieldDescription))
	require.Equal(t, "-45,50", res.Records[0].String(FieldAmount))
	require.Equal(t, "row:3", res.Records[0].Provenance.Ref)
	require.Equal(t, path, res.Records[0].Provenance.SourceFile)
}

func TestTabularXLSX(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "santander.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Santander"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Fecha", "Descripcion", "Monto"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"12/05/2024", "WALMART", "-320.10"}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]any{time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), "SORIANA", -99.5}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := NewTabular().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Equal(t, "WALMART", res.Records[0].String(FieldDescription))
	d, ok := res.Records[1].Fields[FieldDate].(time.Time)
	require.True(t, ok)
	require.Equal(t, "2024-05-13", d.Format("2006-01-02"))
}

func TestTabularSchemaMismatch(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "x.csv", "a,b,c\n1,2,3\n")
	_, err := NewTabular().Extract(context.Background(), path)
	require.True(t, IsKind(err, SchemaMismatch))
}

func TestTabularMalformed(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "broken.xlsx", "this is not a zip")
	_, err := NewTabular().Extract(context.Background(), path)
	require.True(t, IsKind(err, Malformed))

	_, err = NewTabular().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.True(t, IsKind(err, Unreadable))
}

const cfdi = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Fecha="2024-05-15T00:00:00">
  <cfdi:Emisor Rfc="HMI950125KG8"/>
  <cfdi:Addenda>
    <DG:DatosGenerales xmlns:DG="http://bank.example/dg" numerodecuenta="4000123412341234"/>
    <EC:EstadoDeCuenta xmlns:EC="http://bank.example/ec">
      <EC:MovimientosDelCliente fecha="2024-05-03T00:00:00" descripcion="SU PAGO  GRACIAS" importe="5000.00"/>
      <EC:MovimientoDelClienteFiscal fecha="2024-05-04T00:00:00" descripcion="NETFLIX.COM" importe="219.00" RFCenajenante="NME910101ABC"/>
      <EC:MovimientosDelCliente fecha="2024-05-05T00:00:00" importe="10.00"/>
    </EC:EstadoDeCuenta>
  </cfdi:Addenda>
</cfdi:Comprobante>`

func TestXMLExtract(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "hsbc.xml", cfdi)
	res, err := NewXML().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, MethodXML, res.Method)
	require.Equal(t, "4000123412341234", res.Meta.AccountNumber)
	require.Len(t, res.Records, 3)

	require.Equal(t, "SU PAGO GRACIAS", res.Records[0].String(FieldDescription))
	require.Equal(t, "", res.Records[0].String(FieldFiscalID))
	require.Equal(t, "NME910101ABC", res.Records[1].String(FieldFiscalID))
	require.Equal(t, "219.00", res.Records[1].String(FieldAmount))
	// missing description is left for validation to reject
	_, ok := res.Records[2].Fields[FieldDescription]
	require.False(t, ok)
}

func TestXMLErrors(t *testing.T) {
	t.Parallel()
	_, err := NewXML().Extract(context.Background(), writeFile(t, "a.xml", `<root><x/></root>`))
	require.True(t, IsKind(err, SchemaMismatch))

	_, err = NewXML().Extract(context.Background(), writeFile(t, "b.xml", `<root><Addenda><a b="unterminated></Addenda></root>`))
	require.True(t, IsKind(err, Malformed))
}

type fakeText struct {
	pages []string
	err   error
}

func (f fakeText) PageTexts(context.Context, string) ([]string, error) { return f.pages, f.err }

type fakeOCR struct {
	pages      []string
	header     string
	err        error
	pageCalls  int
	headerCall int
}

func (f *fakeOCR) RecognizePages(context.Context, string) ([]string, error) {
	f.pageCalls++
	return f.pages, f.err
}

func (f *fakeOCR) RecognizeHeader(context.Context, string) (string, error) {
	f.headerCall++
	return f.header, f.err
}

var window = MetaWindow{Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), MaxAgeYears: 10, FutureDays: 60}

const statementText = `ESTADO DE CUENTA
FECHA DE CORTE: 15/ENE/2024
FECHA LIMITE DE PAGO: 05/FEB/2024
PAGO MINIMO: $1,200.00
TOTAL A PAGAR: $12,345.67
12 DIC OXXO SUC 1234 45.50
14 ENE 15 ENE WALMART SUPERCENTER 1,320.10
texto sin movimientos
`

func TestPDFDirectText(t *testing.T) {
	t.Parallel()
	ocr := &fakeOCR{}
	p := &PDF{Text: fakeText{pages: []string{statementText}}, OCR: ocr, Window: window}

	res, err := p.Extract(context.Background(), "stmt.pdf")
	require.NoError(t, err)
	require.Equal(t, MethodDirectText, res.Method)
	require.Zero(t, ocr.pageCalls)
	require.Zero(t, ocr.headerCall)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	require.Equal(t, "OXXO SUC 1234", first.String(FieldDescription))
	require.Equal(t, "45.50", first.String(FieldAmount))
	require.Equal(t, "2023-12-12", first.String(FieldDate))
	require.Equal(t, "page:1/line:6", first.Provenance.Ref)
	require.Equal(t, "WALMART SUPERCENTER", res.Records[1].String(FieldDescription))
	require.Equal(t, "2024-01-14", res.Records[1].String(FieldDate))

	require.Equal(t, "2024-01-15", res.Meta.CutoffDate.Format("2006-01-02"))
	require.Equal(t, "2024-02-05", res.Meta.DueDate.Format("2006-01-02"))
	require.Equal(t, "12345.67", res.Meta.TotalDue.Decimal.String())
	require.Equal(t, "1200", res.Meta.MinimumPayment.Decimal.String())
	require.Equal(t, MethodDirectText, res.Meta.Source["cutoff_date"])
}

func TestPDFFallsBackToOCRWhenNoRows(t *testing.T) {
	t.Parallel()
	ocr := &fakeOCR{pages: []string{
		"Fecha de corte: 15/ene/2024\nTotal a pagar: $ 980.00\n03 ENE UBER TRIP $ 120.00\n10 ENE FARMACIA - GDL 860.00\n",
	}}
	p := &PDF{Text: fakeText{pages: []string{"  \n(scanned image)\n"}}, OCR: ocr, Window: window}

	res, err := p.Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)
	require.Equal(t, 1, ocr.pageCalls)
	require.Equal(t, MethodOCR, res.Method)
	require.NotEmpty(t, res.Records)
	require.Len(t, res.Records, 2)
	require.Equal(t, "120.00", res.Records[0].String(FieldAmount))
	require.Equal(t, "FARMACIA-GDL", res.Records[1].String(FieldDescription))
	require.Equal(t, MethodOCR, res.Records[0].Provenance.Method)

	cutoff := res.Meta.CutoffDate
	require.False(t, cutoff.IsZero())
	require.Equal(t, 2024, cutoff.Year())
	require.Equal(t, time.January, cutoff.Month())
	for _, r := range res.Records {
		d := r.Fields[FieldDate].(time.Time)
		require.False(t, d.After(cutoff))
	}
	require.Equal(t, MethodOCR, res.Meta.Source["cutoff_date"])
}

func TestPDFHeaderOCROnlyFillsMissing(t *testing.T) {
	t.Parallel()
	text := "PAGO MINIMO: $100.00\n03/01/2024 UBER TRIP 120.00\n"
	ocr := &fakeOCR{header: "fecha de corte: 15/ene/2024\npago minimo: $999.00\ntotal a pagar: $ 5,000.00\n"}
	p := &PDF{Text: fakeText{pages: []string{text}}, OCR: ocr, Window: window}

	res, err := p.Extract(context.Background(), "stmt.pdf")
	require.NoError(t, err)
	require.Zero(t, ocr.pageCalls)
	require.Equal(t, 1, ocr.headerCall)
	require.Equal(t, MethodDirectText, res.Method)
	require.Equal(t, "100", res.Meta.MinimumPayment.Decimal.String())
	require.Equal(t, "5000", res.Meta.TotalDue.Decimal.String())
	require.Equal(t, MethodOCR, res.Meta.Source["total_due"])
	require.True(t, res.Meta.Critical())
}

func TestPDFDiscardsImplausibleOCRMetadata(t *testing.T) {
	t.Parallel()
	ocr := &fakeOCR{header: "fecha de corte: 15/ene/1987\ntotal a pagar: $ 5,000.00\n"}
	p := &PDF{Text: fakeText{pages: []string{"03/01/2024 UBER TRIP 120.00\n"}}, OCR: ocr, Window: window}

	res, err := p.Extract(context.Background(), "stmt.pdf")
	require.NoError(t, err)
	require.True(t, res.Meta.CutoffDate.IsZero())
	require.True(t, res.Meta.TotalDue.Valid)
}

func TestPDFFailedReportsFirstPage(t *testing.T) {
	t.Parallel()
	p := &PDF{Text: fakeText{pages: []string{"nothing useful here"}}, OCR: &fakeOCR{pages: []string{"still nothing"}}, Window: window}
	_, err := p.Extract(context.Background(), "empty.pdf")
	var oe *OCRError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, OCREmpty, oe.Reason)
	require.Equal(t, "nothing useful here", oe.FirstPageText)

	p = &PDF{Text: fakeText{pages: []string{"nothing"}}, Window: window}
	_, err = p.Extract(context.Background(), "empty.pdf")
	require.ErrorAs(t, err, &oe)
	require.Equal(t, OCRUnavailable, oe.Reason)

	engineDown := &fakeOCR{err: errors.New("tesseract missing")}
	p = &PDF{Text: fakeText{pages: []string{"nothing"}}, OCR: engineDown, Window: window}
	_, err = p.Extract(context.Background(), "empty.pdf")
	require.ErrorAs(t, err, &oe)
	require.Contains(t, oe.Error(), "tesseract missing")
}

func TestParseRowsWithoutCutoffKeepsRawDate(t *testing.T) {
	t.Parallel()
	recs := ParseRows([]string{"12 ENE OXXO 45.50\n31 FEB BAD 10.00\n05/03/2024 SPEI 1.234,56\n"}, "x.pdf", MethodDirectText, time.Time{})
	require.Len(t, recs, 2)
	require.Equal(t, "12 ENE", recs[0].Fields[FieldDate])
	require.Equal(t, "2024-03-05", recs[1].String(FieldDate))
	require.Equal(t, "1.234,56", recs[1].String(FieldAmount))
}
