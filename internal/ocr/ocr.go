// Package ocr recovers text from scanned statement pages: each page is
// rasterized, cleaned up and handed to a recognition engine.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/logger"
)

// Document is an opened file whose pages can be rasterized. Pages are
// zero-indexed.
type Document interface {
	NumPages() int
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Renderer opens documents for rasterization.
type Renderer interface {
	Open(path string) (Document, error)
}

// Recognizer turns an image into text. languages are engine codes such as
// "spa" and "eng", most likely first.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, languages []string) (string, error)
}

const DefaultDPI = 216

// Header region, as fractions of the first page.
const (
	headerTop    = 0.05
	headerBottom = 0.50
	headerLeft   = 0.05
	headerRight  = 0.95
)

// Pipeline implements extract.PageRecognizer.
type Pipeline struct {
	Renderer   Renderer
	Recognizer Recognizer
	Languages  []string
	DPI        int
	// HeaderCrop limits header recognition to the top half of page one.
	HeaderCrop bool
	Preprocess Options
}

var _ extract.PageRecognizer = (*Pipeline)(nil)

// NewPipeline returns a pipeline with default preprocessing.
func NewPipeline(r Renderer, rec Recognizer, languages []string, dpi int, headerCrop bool) *Pipeline {
	return &Pipeline{
		Renderer:   r,
		Recognizer: rec,
		Languages:  languages,
		DPI:        dpi,
		HeaderCrop: headerCrop,
		Preprocess: DefaultOptions,
	}
}

func (p *Pipeline) available() error {
	if p == nil || p.Renderer == nil || p.Recognizer == nil {
		return extract.ErrOCRUnavailable
	}
	return nil
}

func (p *Pipeline) dpi() float64 {
	if p.DPI <= 0 {
		return DefaultDPI
	}
	return float64(p.DPI)
}

func (p *Pipeline) languages() []string {
	if len(p.Languages) == 0 {
		return []string{"spa", "eng"}
	}
	return p.Languages
}

// RecognizePages recognizes every page in order. Pages that fail are left
// empty; an error is returned only when no page produced text.
func (p *Pipeline) RecognizePages(ctx context.Context, path string) ([]string, error) {
	if err := p.available(); err != nil {
		return nil, err
	}
	log := logger.Component(ctx, logger.ComponentOCR).With().Str(logger.FieldFile, path).Logger()

	doc, err := p.Renderer.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open for rendering: %w", err)
	}
	defer doc.Close()

	n := doc.NumPages()
	pages := make([]string, n)
	var errs []error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		text, err := p.recognize(ctx, doc, i, false)
		if err != nil {
			if errors.Is(err, extract.ErrOCRUnavailable) {
				return nil, err
			}
			log.Warn().Err(err).Int(logger.FieldPage, i+1).Msg("page recognition failed")
			errs = append(errs, fmt.Errorf("page %d: %w", i+1, err))
			continue
		}
		pages[i] = text
		log.Debug().Int(logger.FieldPage, i+1).Int("chars", len(text)).Int64(logger.FieldDuration, time.Since(start).Milliseconds()).Msg("page recognized")
	}
	if len(errs) == n && n > 0 {
		return nil, errors.Join(errs...)
	}
	return pages, nil
}

// RecognizeHeader recognizes the header region of the first page.
func (p *Pipeline) RecognizeHeader(ctx context.Context, path string) (string, error) {
	if err := p.available(); err != nil {
		return "", err
	}
	doc, err := p.Renderer.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for rendering: %w", err)
	}
	defer doc.Close()
	if doc.NumPages() == 0 {
		return "", errors.New("document has no pages")
	}
	return p.recognize(ctx, doc, 0, p.HeaderCrop)
}

func (p *Pipeline) recognize(ctx context.Context, doc Document, page int, header bool) (string, error) {
	img, err := doc.Render(page, p.dpi())
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	if header {
		img = cropHeader(img)
	}
	clean := Preprocess(img, p.Preprocess)
	text, err := p.Recognizer.Recognize(ctx, clean, p.languages())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func cropHeader(img image.Image) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rect := image.Rect(
		b.Min.X+int(w*headerLeft), b.Min.Y+int(h*headerTop),
		b.Min.X+int(w*headerRight), b.Min.Y+int(h*headerBottom),
	)
	return imaging.Crop(img, rect)
}
