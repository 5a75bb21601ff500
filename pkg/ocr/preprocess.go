package ocr

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

const (
	MethodAdaptive = "adaptive"
	MethodOtsu     = "otsu"

	DefaultMinWidth = 2000
	DefaultPadding  = 50
)

// Candidate is one binarized rendition of the source image.
type Candidate struct {
	Method string
	Image  *image.Gray
}

// Preprocessor turns a photo into binarized candidates for recognition.
type Preprocessor struct {
	MinWidth int
	Padding  int
	// Debug, when set, receives every finished candidate.
	Debug  DebugSink
	Logger zerolog.Logger
}

func NewPreprocessor(minWidth int, debug DebugSink, logger zerolog.Logger) *Preprocessor {
	if minWidth <= 0 {
		minWidth = DefaultMinWidth
	}
	return &Preprocessor{MinWidth: minWidth, Padding: DefaultPadding, Debug: debug, Logger: logger}
}

// Preprocess returns two candidates, adaptive threshold first and Otsu second.
// It fails only when img is nil or empty.
func (p *Preprocessor) Preprocess(img image.Image) ([]Candidate, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrImageDecode
	}
	gray := imaging.Grayscale(img)
	if w := gray.Bounds().Dx(); w < p.minWidth() {
		gray = imaging.Resize(gray, p.minWidth(), 0, imaging.CatmullRom)
	}
	base := grayFromNRGBA(gray)
	smooth := bilateral(base, 11, 85, 85)
	enhanced := clahe(smooth, 2.5, 8, 8)

	out := []Candidate{
		{Method: MethodAdaptive, Image: p.finish(adaptiveGaussian(enhanced, 13, 3))},
		{Method: MethodOtsu, Image: p.finish(binarize(enhanced, otsuThreshold(enhanced)))},
	}
	p.Logger.Debug().
		Int("src_w", img.Bounds().Dx()).
		Int("src_h", img.Bounds().Dy()).
		Int("out_w", out[0].Image.Rect.Dx()).
		Int("out_h", out[0].Image.Rect.Dy()).
		Msg("preprocessed candidates")
	if p.Debug != nil {
		for _, c := range out {
			if err := p.Debug.Candidate(c); err != nil {
				p.Logger.Warn().Err(err).Str("method", c.Method).Msg("debug sink failed")
			}
		}
	}
	return out, nil
}

// finish cleans a binarized candidate: drop specks, bridge broken strokes,
// fill small holes inside glyphs, drop specks again, then pad.
func (p *Preprocessor) finish(img *image.Gray) *image.Gray {
	img = opening(img, 2, 2)
	img = closing(img, 3, 1)
	img = invert(closing(invert(img), 2, 2))
	img = opening(img, 2, 2)
	return pad(img, p.padding(), 255)
}

func (p *Preprocessor) minWidth() int {
	if p.MinWidth <= 0 {
		return DefaultMinWidth
	}
	return p.MinWidth
}

func (p *Preprocessor) padding() int {
	if p.Padding < 0 {
		return 0
	}
	return p.Padding
}

// grayFromNRGBA copies the red channel of an already-grayscale image into a
// zero-origin *image.Gray.
func grayFromNRGBA(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// binarize performs a global threshold: values at or below threshold become black.
func binarize(src *image.Gray, threshold uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8 = 255
			if src.Pix[y*src.Stride+x] <= threshold {
				v = 0
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}
