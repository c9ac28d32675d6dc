package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkit/internal/extract"
)

type fakeDoc struct {
	pages  int
	w, h   int
	dpi    []float64
	closed bool
	fail   map[int]bool
}

func (d *fakeDoc) NumPages() int { return d.pages }

func (d *fakeDoc) Render(page int, dpi float64) (image.Image, error) {
	d.dpi = append(d.dpi, dpi)
	if d.fail[page] {
		return nil, errors.New("render failed")
	}
	return imaging.New(d.w, d.h, color.White), nil
}

func (d *fakeDoc) Close() error { d.closed = true; return nil }

type fakeRenderer struct{ doc *fakeDoc }

func (r fakeRenderer) Open(string) (Document, error) { return r.doc, nil }

type fakeRecognizer struct {
	calls  int
	bounds []image.Rectangle
	langs  []string
	err    error
	// failOn fails only the given calls (1-based) with a page-level error.
	failOn map[int]bool
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image, languages []string) (string, error) {
	f.calls++
	f.bounds = append(f.bounds, img.Bounds())
	f.langs = languages
	if f.err != nil {
		return "", f.err
	}
	if f.failOn[f.calls] {
		return "", errors.New("recognize page: empty result")
	}
	return "  page text\n", nil
}

func TestPipelineRecognizesEveryPage(t *testing.T) {
	t.Parallel()
	doc := &fakeDoc{pages: 3, w: 60, h: 80}
	rec := &fakeRecognizer{}
	p := NewPipeline(fakeRenderer{doc}, rec, []string{"spa", "eng"}, 300, true)

	pages, err := p.RecognizePages(context.Background(), "scan.pdf")
	require.NoError(t, err)
	require.Equal(t, []string{"page text", "page text", "page text"}, pages)
	require.Equal(t, 3, rec.calls)
	require.Equal(t, []string{"spa", "eng"}, rec.langs)
	require.Equal(t, []float64{300, 300, 300}, doc.dpi)
	require.True(t, doc.closed)
	// upscaled 2x, no skew on a blank page
	require.Equal(t, image.Rect(0, 0, 120, 160), rec.bounds[0])
}

func TestPipelineSkipsFailedPages(t *testing.T) {
	t.Parallel()
	doc := &fakeDoc{pages: 2, w: 20, h: 20, fail: map[int]bool{0: true}}
	p := NewPipeline(fakeRenderer{doc}, &fakeRecognizer{}, nil, 0, false)

	pages, err := p.RecognizePages(context.Background(), "scan.pdf")
	require.NoError(t, err)
	require.Equal(t, []string{"", "page text"}, pages)
	require.Equal(t, []float64{DefaultDPI, DefaultDPI}, doc.dpi)

	doc = &fakeDoc{pages: 2, w: 20, h: 20, fail: map[int]bool{0: true, 1: true}}
	p = NewPipeline(fakeRenderer{doc}, &fakeRecognizer{}, nil, 0, false)
	_, err = p.RecognizePages(context.Background(), "scan.pdf")
	require.Error(t, err)
}

func TestPipelineKeepsGoingWhenRecognitionFails(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{failOn: map[int]bool{2: true}}
	p := NewPipeline(fakeRenderer{&fakeDoc{pages: 3, w: 10, h: 10}}, rec, nil, 0, false)

	pages, err := p.RecognizePages(context.Background(), "scan.pdf")
	require.NoError(t, err)
	require.Equal(t, []string{"page text", "", "page text"}, pages)
	require.Equal(t, 3, rec.calls)
}

func TestPipelineUnavailable(t *testing.T) {
	t.Parallel()
	var p *Pipeline
	_, err := p.RecognizePages(context.Background(), "x.pdf")
	require.ErrorIs(t, err, extract.ErrOCRUnavailable)

	p = NewPipeline(fakeRenderer{&fakeDoc{pages: 1, w: 10, h: 10}}, nil, nil, 0, true)
	_, err = p.RecognizeHeader(context.Background(), "x.pdf")
	require.ErrorIs(t, err, extract.ErrOCRUnavailable)

	rec := &fakeRecognizer{err: extract.ErrOCRUnavailable}
	p = NewPipeline(fakeRenderer{&fakeDoc{pages: 3, w: 10, h: 10}}, rec, nil, 0, true)
	_, err = p.RecognizePages(context.Background(), "x.pdf")
	require.ErrorIs(t, err, extract.ErrOCRUnavailable)
	require.Equal(t, 1, rec.calls)
}

func TestPipelineHeaderCrop(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	p := NewPipeline(fakeRenderer{&fakeDoc{pages: 2, w: 100, h: 200}}, rec, nil, 0, true)

	text, err := p.RecognizeHeader(context.Background(), "stmt.pdf")
	require.NoError(t, err)
	require.Equal(t, "page text", text)
	require.Equal(t, 1, rec.calls)
	// 90x90 crop, upscaled 2x
	require.Equal(t, image.Rect(0, 0, 180, 180), rec.bounds[0])

	rec = &fakeRecognizer{}
	p.Recognizer, p.HeaderCrop = rec, false
	_, err = p.RecognizeHeader(context.Background(), "stmt.pdf")
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 400), rec.bounds[0])
}

func TestPipelineStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &fakeRecognizer{}
	p := NewPipeline(fakeRenderer{&fakeDoc{pages: 2, w: 10, h: 10}}, rec, nil, 0, false)
	_, err := p.RecognizePages(ctx, "x.pdf")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, rec.calls)
}

func TestOtsuThresholdSplitsBimodal(t *testing.T) {
	t.Parallel()
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 220
		if i%3 == 0 {
			img.Pix[i] = 20
		}
	}
	level := OtsuThreshold(img)
	require.GreaterOrEqual(t, level, uint8(20))
	require.Less(t, level, uint8(220))

	bin := Binarize(img)
	require.Equal(t, uint8(0), bin.Pix[0])
	require.Equal(t, uint8(255), bin.Pix[1])
}

func TestBinarizeUniformPage(t *testing.T) {
	t.Parallel()
	bin := Binarize(imaging.New(8, 8, color.White))
	for _, v := range bin.Pix {
		require.Equal(t, uint8(255), v)
	}
}

func linedPage() *image.NRGBA {
	img := imaging.New(400, 300, color.White)
	for y := 40; y < 260; y += 20 {
		for dy := 0; dy < 4; dy++ {
			for x := 40; x < 360; x++ {
				img.Set(x, y+dy, color.Black)
			}
		}
	}
	return img
}

func TestEstimateSkewFindsCorrection(t *testing.T) {
	t.Parallel()
	tilted := imaging.Rotate(linedPage(), 3, color.White)
	angle := EstimateSkew(Binarize(tilted), 5, 0.5)
	require.InDelta(t, -3.0, angle, 0.5)

	require.Zero(t, EstimateSkew(Binarize(linedPage()), 5, 0.5))
}

func TestPreprocessIsDeterministic(t *testing.T) {
	t.Parallel()
	tilted := imaging.Rotate(linedPage(), -2, color.White)
	a := Preprocess(tilted, DefaultOptions)
	b := Preprocess(tilted, DefaultOptions)
	require.Equal(t, a.Bounds(), b.Bounds())
	require.Equal(t, a.Pix, b.Pix)
	for _, v := range a.Pix {
		require.True(t, v == 0 || v == 255)
	}
}
