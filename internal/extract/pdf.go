package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jask/ledgerkit/internal/logger"
)

// State is a step of the PDF extraction state machine.
type State string

const (
	StateDirectText  State = "direct_text"
	StateOCRFallback State = "ocr_fallback"
	StateFailed      State = "failed"
)

// PageRecognizer recovers text from rendered pages.
type PageRecognizer interface {
	RecognizePages(ctx context.Context, path string) ([]string, error)
	RecognizeHeader(ctx context.Context, path string) (string, error)
}

const firstPageSample = 2000

// PDF extracts statement rows and header metadata. The text layer is tried
// first; recognition runs only when it yields no rows, or, for metadata
// alone, when the cutoff date or total due is missing.
type PDF struct {
	Text   TextSource
	OCR    PageRecognizer
	Window MetaWindow
}

// NewPDF returns a PDF extractor. ocr may be nil to disable the fallback.
func NewPDF(ocr PageRecognizer, window MetaWindow) *PDF {
	return &PDF{Text: PDFTextLayer{}, OCR: ocr, Window: window}
}

// Extract implements Extractor.
func (p *PDF) Extract(ctx context.Context, path string) (Result, error) {
	log := logger.Component(ctx, logger.ComponentExtract).With().Str(logger.FieldFile, path).Logger()

	pages, textErr := p.Text.PageTexts(ctx, path)
	if textErr != nil {
		if errors.Is(textErr, context.Canceled) || errors.Is(textErr, context.DeadlineExceeded) || IsKind(textErr, Unreadable) {
			return Result{}, textErr
		}
		log.Warn().Err(textErr).Msg("text layer unusable")
	}

	res := Result{Method: MethodDirectText}
	trail := []State{StateDirectText}
	res.Meta = ParseMetadata(strings.Join(pages, "\n"), Metadata{}, MethodDirectText, p.Window)
	res.Records = ParseRows(pages, path, MethodDirectText, res.Meta.CutoffDate)
	log.Debug().Str(logger.FieldState, string(StateDirectText)).Int(logger.FieldRows, len(res.Records)).Bool("critical_meta", res.Meta.Critical()).Msg("direct text parsed")

	var ocrErr error
	switch {
	case len(res.Records) == 0:
		trail = append(trail, StateOCRFallback)
		log.Info().Str(logger.FieldState, string(StateOCRFallback)).Msg("no rows in text layer, running ocr")
		ocrErr = p.recoverRows(ctx, path, &res)
	case !res.Meta.Critical():
		log.Info().Str(logger.FieldState, string(StateOCRFallback)).Msg("critical header fields missing, running header ocr")
		hadCutoff := !res.Meta.CutoffDate.IsZero()
		if err := p.recoverHeader(ctx, path, &res); err != nil {
			res.Diagnostics = append(res.Diagnostics, "header ocr: "+err.Error())
		}
		if !hadCutoff && !res.Meta.CutoffDate.IsZero() {
			res.Records = ParseRows(pages, path, MethodDirectText, res.Meta.CutoffDate)
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if len(res.Records) == 0 {
		trail = append(trail, StateFailed)
		log.Warn().Str(logger.FieldState, string(StateFailed)).Err(ocrErr).Msg("no transactions found")
		if p.OCR == nil && textErr != nil {
			return Result{}, textErr
		}
		oe := &OCRError{Source: path, Reason: OCREmpty, FirstPageText: firstPage(pages), Err: ocrErr}
		if p.OCR == nil || errors.Is(ocrErr, ErrOCRUnavailable) {
			oe.Reason = OCRUnavailable
		}
		if oe.Err == nil {
			oe.Err = textErr
		}
		return Result{}, oe
	}

	res.Diagnostics = append(res.Diagnostics, "states: "+joinStates(trail))
	log.Info().Str("method", string(res.Method)).Int(logger.FieldRows, len(res.Records)).Msg("pdf extraction done")
	return res, nil
}

func (p *PDF) recoverRows(ctx context.Context, path string, res *Result) error {
	if p.OCR == nil {
		return ErrOCRUnavailable
	}
	pages, err := p.OCR.RecognizePages(ctx, path)
	if err != nil {
		return err
	}
	joined := strings.Join(pages, "\n")
	res.Meta = ParseMetadata(strings.ToLower(joined), res.Meta, MethodOCR, p.Window)
	res.Records = ParseRows(pages, path, MethodOCR, res.Meta.CutoffDate)
	res.Method = MethodOCR
	return nil
}

func (p *PDF) recoverHeader(ctx context.Context, path string, res *Result) error {
	if p.OCR == nil {
		return ErrOCRUnavailable
	}
	text, err := p.OCR.RecognizeHeader(ctx, path)
	if err != nil {
		return err
	}
	res.Meta = ParseMetadata(strings.ToLower(text), res.Meta, MethodOCR, p.Window)
	return nil
}

func firstPage(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	s := pages[0]
	if len(s) > firstPageSample {
		s = strings.ToValidUTF8(s[:firstPageSample], "")
	}
	return s
}

func joinStates(states []State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}

// Window returns a metadata window anchored at now.
func Window(now time.Time, maxAgeYears, futureDays int) MetaWindow {
	return MetaWindow{Now: now, MaxAgeYears: maxAgeYears, FutureDays: futureDays}
}
