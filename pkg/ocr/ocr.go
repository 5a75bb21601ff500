// Package ocr extracts ingredient text from label photos: it builds binarized
// candidates from the photo, recognizes each one with tesseract under several
// page segmentation profiles, and keeps the most confident text.
package ocr

import (
	"context"
	"image"

	"github.com/rs/zerolog"
)

// Extractor chains a Preprocessor and a Recognizer.
type Extractor struct {
	pre    *Preprocessor
	rec    *Recognizer
	logger zerolog.Logger
}

func NewExtractor(pre *Preprocessor, rec *Recognizer, logger zerolog.Logger) *Extractor {
	return &Extractor{pre: pre, rec: rec, logger: logger}
}

// ExtractText preprocesses img and returns the best recognized text.
func (e *Extractor) ExtractText(ctx context.Context, img image.Image) (*Text, error) {
	cands, err := e.pre.Preprocess(img)
	if err != nil {
		return nil, err
	}
	return e.rec.Recognize(ctx, cands)
}

// ExtractTextFromFile opens path and runs ExtractText on it.
func (e *Extractor) ExtractTextFromFile(ctx context.Context, path string) (*Text, error) {
	img, err := OpenImage(path)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("ocr open failed")
		return nil, err
	}
	return e.ExtractText(ctx, img)
}
