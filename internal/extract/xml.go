package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jask/ledgerkit/internal/logger"
)

// XML reads tax-invoice (CFDI) statements whose movements live in the
// Addenda. Namespaces are ignored; only local names matter.
type XML struct {
	// Container is the element that must enclose the movements.
	Container string
	// Movements lists the element names that carry one transaction each.
	Movements []string
}

// NewXML returns an extractor for the bank CFDI addenda layout.
func NewXML() *XML {
	return &XML{
		Container: "Addenda",
		Movements: []string{"MovimientosDelCliente", "MovimientoDelClienteFiscal"},
	}
}

// Extract implements Extractor. Missing attributes are left out of the
// record and surface later as validation errors.
func (x *XML) Extract(ctx context.Context, path string) (Result, error) {
	log := logger.Component(ctx, logger.ComponentExtract)
	f, err := os.Open(path)
	if err != nil {
		return Result{}, newError(Unreadable, path, err)
	}
	defer f.Close()

	res, found, err := x.decode(f, path)
	if err != nil {
		return Result{}, newError(Malformed, path, err)
	}
	if !found {
		return Result{}, newError(SchemaMismatch, path, fmt.Errorf("no %s element", x.Container))
	}
	if len(res.Records) == 0 {
		res.Diagnostics = append(res.Diagnostics, "no movement nodes in "+x.Container)
	}
	log.Info().Str(logger.FieldFile, path).Int(logger.FieldRows, len(res.Records)).Msg("xml extraction done")
	return res, nil
}

func (x *XML) decode(r io.Reader, path string) (Result, bool, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	res := Result{Method: MethodXML}
	depth, found := 0, false
	node := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, found, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if strings.EqualFold(name, x.Container) {
				depth++
				found = true
				continue
			}
			if depth == 0 {
				continue
			}
			node++
			switch {
			case strings.EqualFold(name, "DatosGenerales"):
				if acct := attr(t, "numerodecuenta"); acct != "" {
					res.Meta.AccountNumber = acct
				}
			case x.isMovement(name):
				rec := NewRecord(Provenance{SourceFile: path, Ref: "node:" + strconv.Itoa(node), Line: node, Method: MethodXML})
				setIf(rec, FieldDate, attr(t, "fecha"))
				setIf(rec, FieldDescription, strings.Join(strings.Fields(attr(t, "descripcion")), " "))
				setIf(rec, FieldAmount, attr(t, "importe"))
				setIf(rec, FieldFiscalID, attr(t, "RFCenajenante"))
				setIf(rec, FieldCurrency, attr(t, "moneda"))
				setIf(rec, FieldAccountNumber, res.Meta.AccountNumber)
				res.Records = append(res.Records, rec)
			}
		case xml.EndElement:
			if strings.EqualFold(t.Name.Local, x.Container) && depth > 0 {
				depth--
			}
		}
	}
	return res, found, nil
}

func (x *XML) isMovement(name string) bool {
	for _, m := range x.Movements {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func setIf(rec Record, key, value string) {
	if value != "" {
		rec.Fields[key] = value
	}
}
