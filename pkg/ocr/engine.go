package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// LabelWhitelist restricts recognition to characters that appear on printed
// ingredient lists.
const LabelWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789(),.%:;-' "

// Profile is one recognition configuration.
type Profile struct {
	Name      string
	PSM       gosseract.PageSegMode
	Whitelist string
}

var (
	ProfileBlock  = Profile{Name: "block", PSM: gosseract.PSM_SINGLE_BLOCK}
	ProfileColumn = Profile{Name: "column", PSM: gosseract.PSM_SINGLE_COLUMN}
	ProfileAuto   = Profile{Name: "auto", PSM: gosseract.PSM_AUTO}
	ProfileLabel  = Profile{Name: "label", PSM: gosseract.PSM_SINGLE_BLOCK, Whitelist: LabelWhitelist}
)

// DefaultProfiles returns the block, column and auto profiles, plus the
// whitelisted label profile when withWhitelist is set.
func DefaultProfiles(withWhitelist bool) []Profile {
	ps := []Profile{ProfileBlock, ProfileColumn, ProfileAuto}
	if withWhitelist {
		ps = append(ps, ProfileLabel)
	}
	return ps
}

// Result is the output of one (candidate, profile) run.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Profile    string  `json:"profile"`
	Candidate  string  `json:"candidate"`
}

// Engine recognizes text in a single image under a single profile.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, p Profile) (Result, error)
}

// Tesseract is the gosseract backed Engine. A fresh client is used per call so
// the engine is safe for concurrent use.
type Tesseract struct {
	Language       string
	TessdataPrefix string
}

func NewTesseract(language, tessdataPrefix string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language, TessdataPrefix: tessdataPrefix}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, p Profile) (Result, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return Result{}, fmt.Errorf("encode candidate: %w", err)
	}
	type outcome struct {
		res Result
		err error
	}
	// gosseract calls cannot be interrupted; a timed out call finishes in the
	// background and its result is dropped.
	ch := make(chan outcome, 1)
	go func() {
		res, err := t.run(buf.Bytes(), p)
		ch <- outcome{res, err}
	}()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: profile %s: %v", ErrTimeout, p.Name, ctx.Err())
	}
}

func (t *Tesseract) run(data []byte, p Profile) (Result, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return Result{}, fmt.Errorf("tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	if p.Whitelist != "" {
		if err := client.SetWhitelist(p.Whitelist); err != nil {
			return Result{}, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(p.PSM); err != nil {
		return Result{}, fmt.Errorf("set psm: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("ocr error: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Result{}, fmt.Errorf("word boxes: %w", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{Text: b.Word, Confidence: b.Confidence})
	}
	return Result{Text: text, Confidence: MeanConfidence(words), Profile: p.Name}, nil
}

// Word is a recognized word and the engine's confidence in it.
type Word struct {
	Text       string
	Confidence float64
}

// MeanConfidence averages word confidences, skipping words the engine marked
// as unrecognized (negative confidence or empty text). Returns 0 when nothing
// was recognized.
func MeanConfidence(words []Word) float64 {
	sum, n := 0.0, 0
	for _, w := range words {
		if w.Confidence < 0 || strings.TrimSpace(w.Text) == "" {
			continue
		}
		sum += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CheckEngine verifies tesseract is linked and, when a tessdata directory is
// configured, that it exists. It returns the tesseract version.
func CheckEngine(tessdataPrefix string) (string, error) {
	v := strings.TrimSpace(gosseract.Version())
	if v == "" {
		return "", fmt.Errorf("%w: tesseract version unavailable", ErrEngineUnavailable)
	}
	if tessdataPrefix != "" {
		fi, err := os.Stat(tessdataPrefix)
		if err != nil {
			return v, fmt.Errorf("%w: tessdata %s: %v", ErrEngineUnavailable, tessdataPrefix, err)
		}
		if !fi.IsDir() {
			return v, fmt.Errorf("%w: tessdata %s is not a directory", ErrEngineUnavailable, tessdataPrefix)
		}
	}
	return v, nil
}
