package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/normalize"
)

// Tabular reads spreadsheet exports: .xlsx through excelize, legacy .xls
// and delimited .csv files.
type Tabular struct {
	MaxHeaderScan int
}

// NewTabular returns a tabular extractor with the default header scan.
func NewTabular() *Tabular {
	return &Tabular{MaxHeaderScan: DefaultHeaderScan}
}

// Extract implements Extractor.
func (t *Tabular) Extract(ctx context.Context, path string) (Result, error) {
	log := logger.Component(ctx, logger.ComponentExtract)
	rows, err := readRows(path)
	if err != nil {
		return Result{}, err
	}

	h, ok := LocateHeader(rows, t.MaxHeaderScan)
	if !ok {
		return Result{}, newError(SchemaMismatch, path, fmt.Errorf("no header row with date, description and amount columns in the first %d rows", t.scan()))
	}
	log.Debug().Str(logger.FieldFile, path).Int("header_row", h.Row+1).Msg("header located")

	res := Result{Method: MethodTabular}
	for i := h.Row + 1; i < len(rows); i++ {
		row := rows[i]
		if isSummaryRow(row) {
			break
		}
		rec := NewRecord(Provenance{SourceFile: path, Ref: "row:" + strconv.Itoa(i+1), Line: i + 1, Method: MethodTabular})
		empty := true
		for field, col := range h.Columns {
			if col >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[col])
			if v == "" {
				continue
			}
			empty = false
			rec.Fields[field] = cellValue(field, v)
		}
		if empty || rec.String(FieldDate) == "" && rec.String(FieldAmount) == "" && rec.String(FieldDebit) == "" && rec.String(FieldCredit) == "" {
			continue
		}
		res.Records = append(res.Records, rec)
	}
	res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("header at row %d", h.Row+1))
	log.Info().Str(logger.FieldFile, path).Int(logger.FieldRows, len(res.Records)).Msg("tabular extraction done")
	return res, nil
}

func (t *Tabular) scan() int {
	if t.MaxHeaderScan <= 0 {
		return DefaultHeaderScan
	}
	return t.MaxHeaderScan
}

// cellValue turns Excel date serials in the date column into dates.
func cellValue(field, v string) any {
	if field != FieldDate {
		return v
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 20000 || serial > 80000 {
		return v
	}
	tm, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return tm
}

func isSummaryRow(row []string) bool {
	for _, cell := range row {
		c := strings.ToLower(normalize.Fold(strings.TrimSpace(cell)))
		if c == "" {
			continue
		}
		return strings.HasPrefix(c, "total") || strings.HasPrefix(c, "saldo final")
	}
	return false
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	case ".xls":
		return readXLS(path)
	case ".csv", ".txt":
		return readCSV(path)
	default:
		return nil, newError(Unreadable, path, fmt.Errorf("unsupported extension %q", filepath.Ext(path)))
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(Unreadable, path, err)
	}
	defer f.Close()

	xl, err := excelize.OpenReader(f)
	if err != nil {
		return nil, newError(Malformed, path, err)
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		return nil, newError(SchemaMismatch, path, errors.New("workbook has no sheets"))
	}
	rows, err := xl.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, newError(Malformed, path, err)
	}
	return rows, nil
}

func readXLS(path string) (rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(Unreadable, path, err)
	}
	defer f.Close()

	// the xls reader panics on some corrupt workbooks
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = newError(Malformed, path, fmt.Errorf("xls reader: %v", r))
		}
	}()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, newError(Malformed, path, err)
	}
	if wb.NumSheets() == 0 {
		return nil, newError(SchemaMismatch, path, errors.New("workbook has no sheets"))
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, newError(Malformed, path, errors.New("could not read first sheet"))
	}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(Unreadable, path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newError(Malformed, path, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	counts := map[rune]int{}
	for n := 0; n < 10 && sc.Scan(); n++ {
		line := sc.Text()
		for _, d := range []rune{',', ';', '\t', '|'} {
			counts[d] += strings.Count(line, string(d))
		}
	}
	best := ','
	for _, d := range []rune{';', '\t', '|'} {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
