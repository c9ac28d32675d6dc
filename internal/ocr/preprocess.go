package ocr

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Options tunes page cleanup before recognition.
type Options struct {
	// Upscale enlarges the page; recognition engines do better on larger glyphs.
	Upscale float64
	// BlurSigma smooths speckle before thresholding. Zero disables it.
	BlurSigma float64
	// MaxSkew and SkewStep bound the deskew search, in degrees.
	MaxSkew  float64
	SkewStep float64
}

var DefaultOptions = Options{Upscale: 2, BlurSigma: 0.5, MaxSkew: 5, SkewStep: 0.5}

// skewProbeWidth caps the image width used to score skew angles.
const skewProbeWidth = 800

// Preprocess converts img to a deskewed black-on-white bitmap. The result
// depends only on img and o.
func Preprocess(img image.Image, o Options) *image.Gray {
	g := imaging.Grayscale(img)
	if o.Upscale > 1 {
		w := int(math.Round(float64(g.Bounds().Dx()) * o.Upscale))
		g = imaging.Resize(g, w, 0, imaging.Lanczos)
	}
	if o.BlurSigma > 0 {
		g = imaging.Blur(g, o.BlurSigma)
	}
	bin := Binarize(g)
	if o.MaxSkew <= 0 || o.SkewStep <= 0 {
		return bin
	}
	if angle := EstimateSkew(bin, o.MaxSkew, o.SkewStep); angle != 0 {
		bin = threshold(imaging.Rotate(bin, angle, color.White), 128)
	}
	return bin
}

// Binarize thresholds img with Otsu's method.
func Binarize(img image.Image) *image.Gray {
	return threshold(img, OtsuThreshold(img))
}

// OtsuThreshold returns the gray level that maximizes between-class
// variance. Pixels above it are background.
func OtsuThreshold(img image.Image) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[luma(img.At(x, y))]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB, best float64
	wB := 0
	level := uint8(0)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level
}

// EstimateSkew returns the rotation, in degrees counter-clockwise, that
// best aligns text lines with the horizontal. It scores each candidate
// angle by the variance of the dark-pixel row profile; aligned lines give
// sharp peaks.
func EstimateSkew(bin image.Image, maxDeg, step float64) float64 {
	probe := image.Image(bin)
	if probe.Bounds().Dx() > skewProbeWidth {
		probe = imaging.Resize(bin, skewProbeWidth, 0, imaging.Box)
	}
	bestAngle, bestScore := 0.0, profileScore(probe)
	n := int(math.Round(maxDeg / step))
	for i := -n; i <= n; i++ {
		if i == 0 {
			continue
		}
		a := float64(i) * step
		s := profileScore(imaging.Rotate(probe, a, color.White))
		// ties keep the smaller correction
		if s > bestScore*1.0001 || (s > bestScore && math.Abs(a) < math.Abs(bestAngle)) {
			bestAngle, bestScore = a, s
		}
	}
	return bestAngle
}

func profileScore(img image.Image) float64 {
	b := img.Bounds()
	h := b.Dy()
	if h == 0 {
		return 0
	}
	rows := make([]float64, h)
	var mean float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dark := 0
		for x := b.Min.X; x < b.Max.X; x++ {
			if luma(img.At(x, y)) < 128 {
				dark++
			}
		}
		rows[y-b.Min.Y] = float64(dark)
		mean += float64(dark)
	}
	mean /= float64(h)
	var v float64
	for _, r := range rows {
		v += (r - mean) * (r - mean)
	}
	return v / float64(h)
}

func threshold(img image.Image, level uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8(255)
			if luma(img.At(x, y)) <= level {
				v = 0
			}
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = v
		}
	}
	return out
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
