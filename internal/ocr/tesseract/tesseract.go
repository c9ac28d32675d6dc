// Package tesseract recognizes text with the Tesseract engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/ocr"
)

// Recognizer implements ocr.Recognizer. A new engine client is created per
// image since clients are not safe for concurrent use.
type Recognizer struct {
	PageSegMode gosseract.PageSegMode
}

var _ ocr.Recognizer = Recognizer{}

// New returns a recognizer that treats each image as one block of text.
func New() Recognizer {
	return Recognizer{PageSegMode: gosseract.PSM_SINGLE_BLOCK}
}

// Recognize implements ocr.Recognizer. Engine setup failures, such as
// missing language data, are reported as extract.ErrOCRUnavailable.
func (r Recognizer) Recognize(ctx context.Context, img image.Image, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrOCRUnavailable, err)
	}
	if err := client.SetPageSegMode(r.PageSegMode); err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrOCRUnavailable, err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize page: %w", err)
	}
	return text, nil
}
