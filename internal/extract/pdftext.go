package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/dslipak/pdf"
)

// TextSource returns the direct text layer of each page.
type TextSource interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
}

// PDFTextLayer reads text layers with the pure-Go PDF reader.
type PDFTextLayer struct{}

// PageTexts implements TextSource. The reader panics on some damaged
// files; that is reported as Malformed.
func (PDFTextLayer) PageTexts(ctx context.Context, path string) (pages []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(Unreadable, path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, newError(Unreadable, path, err)
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = newError(Malformed, path, fmt.Errorf("pdf reader: %v", r))
		}
	}()

	r, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		return nil, newError(Malformed, path, err)
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, newError(Malformed, path, fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, text)
	}
	return pages, nil
}
