// Package mupdf rasterizes PDF pages with MuPDF.
package mupdf

import (
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"

	"github.com/jask/ledgerkit/internal/ocr"
)

// Renderer implements ocr.Renderer.
type Renderer struct{}

var _ ocr.Renderer = Renderer{}

// Open implements ocr.Renderer.
func (Renderer) Open(path string) (ocr.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("mupdf open %s: %w", path, err)
	}
	return &document{doc: doc}, nil
}

type document struct {
	doc *fitz.Document
}

func (d *document) NumPages() int { return d.doc.NumPage() }

func (d *document) Render(page int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("mupdf render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d *document) Close() error { return d.doc.Close() }
