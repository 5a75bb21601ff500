// Package analyzer runs the label pipeline end to end: OCR for photos,
// tokenizing, classification and scoring.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"labelscan/pkg/category"
	"labelscan/pkg/classify"
	"labelscan/pkg/ingredients"
	"labelscan/pkg/ocr"
	"labelscan/pkg/score"
)

const DefaultProductName = "Unnamed Product"

// Input sources.
const (
	SourceText  = "text"
	SourceImage = "image"
)

// MinExtractedLen is the shortest OCR text, in runes, worth classifying.
const MinExtractedLen = 3

// ErrNoStore is returned by Save when the service was built without a Store.
var ErrNoStore = errors.New("analysis store not configured")

// TextExtractor is satisfied by *ocr.Extractor.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (*ocr.Text, error)
}

// Classifier is satisfied by *classify.Client.
type Classifier interface {
	Classify(ctx context.Context, text string) (*classify.Record, error)
}

// Store persists finished analyses and returns their public id.
type Store interface {
	SaveAnalysis(ctx context.Context, userID uint, text string, res *Result) (string, error)
}

// Summary counts classified ingredients per group.
type Summary struct {
	TotalIngredients      int `json:"total_ingredients"`
	NaturalIngredients    int `json:"natural_ingredients"`
	ArtificialIngredients int `json:"artificial_ingredients"`
	Additives             int `json:"additives"`
}

// Result is one finished analysis.
type Result struct {
	classify.Record

	ProductName    string                       `json:"product_name"`
	Source         string                       `json:"source"`
	ExtractedText  string                       `json:"extracted_text"`
	Tokens         []string                     `json:"tokens"`
	OCR            *ocr.Result                  `json:"ocr,omitempty"`
	Summary        Summary                      `json:"summary"`
	CategoryColors map[category.Category]string `json:"category_colors"`
	WeightedScore  float64                      `json:"weighted_score"`
}

type Service struct {
	extractor  TextExtractor
	classifier Classifier
	store      Store
	ocrTimeout time.Duration
	llmTimeout time.Duration
	logger     zerolog.Logger
}

type Option func(*Service)

func WithStore(s Store) Option { return func(svc *Service) { svc.store = s } }

// WithTimeouts bounds the OCR and classification stages. Zero leaves a stage
// bounded only by the caller's context.
func WithTimeouts(ocrTimeout, llmTimeout time.Duration) Option {
	return func(svc *Service) {
		svc.ocrTimeout = ocrTimeout
		svc.llmTimeout = llmTimeout
	}
}

func WithLogger(l zerolog.Logger) Option { return func(svc *Service) { svc.logger = l } }

// New builds a Service. extractor may be nil for text-only use.
func New(extractor TextExtractor, classifier Classifier, opts ...Option) *Service {
	s := &Service{extractor: extractor, classifier: classifier, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AnalyzeText classifies typed ingredient text.
func (s *Service) AnalyzeText(ctx context.Context, text, productName string) (*Result, error) {
	res := &Result{ProductName: productNameOr(productName), Source: SourceText, ExtractedText: strings.TrimSpace(text)}
	if err := s.classify(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// AnalyzeImage decodes a base64 photo (data URL headers allowed) and analyzes it.
func (s *Service) AnalyzeImage(ctx context.Context, b64, productName string) (*Result, error) {
	img, err := ocr.DecodeBase64(b64)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeDecoded(ctx, img, productName)
}

// AnalyzeFile opens a photo on disk and analyzes it.
func (s *Service) AnalyzeFile(ctx context.Context, path, productName string) (*Result, error) {
	img, err := ocr.OpenImage(path)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeDecoded(ctx, img, productName)
}

// AnalyzeDecoded runs OCR on img and classifies the text.
func (s *Service) AnalyzeDecoded(ctx context.Context, img image.Image, productName string) (*Result, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("%w: ocr not configured", ocr.ErrEngineUnavailable)
	}
	ocrCtx, cancel := withTimeout(ctx, s.ocrTimeout)
	text, err := s.extractor.ExtractText(ocrCtx, img)
	cancel()
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text.Text)) < MinExtractedLen {
		return nil, ocr.ErrNoTextExtracted
	}

	best := text.Best
	res := &Result{
		ProductName:   productNameOr(productName),
		Source:        SourceImage,
		ExtractedText: text.Text,
		OCR:           &best,
	}
	if err := s.classify(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) classify(ctx context.Context, res *Result) error {
	res.Tokens = ingredients.Tokenize(res.ExtractedText)
	if len(res.Tokens) == 0 {
		return fmt.Errorf("%w: no ingredients found", classify.ErrValidation)
	}

	llmCtx, cancel := withTimeout(ctx, s.llmTimeout)
	defer cancel()
	rec, err := s.classifier.Classify(llmCtx, ingredients.Join(res.Tokens))
	if err != nil {
		return err
	}

	res.Record = *rec
	res.Summary = Summarize(rec)
	res.CategoryColors = category.Colors()
	res.WeightedScore = score.Score(rec.IngredientPercentages)
	s.logger.Info().
		Str("product", res.ProductName).
		Str("source", res.Source).
		Int("tokens", len(res.Tokens)).
		Float64("health_score", rec.HealthScore).
		Float64("weighted_score", res.WeightedScore).
		Msg("analysis done")
	return nil
}

// Save persists res for userID through the configured Store.
func (s *Service) Save(ctx context.Context, userID uint, input string, res *Result) (string, error) {
	if s.store == nil {
		return "", ErrNoStore
	}
	id, err := s.store.SaveAnalysis(ctx, userID, input, res)
	if err != nil {
		return "", fmt.Errorf("save analysis: %w", err)
	}
	return id, nil
}

// Summarize counts the names listed per category. Artificial counts both
// Artificial Colors and Preservatives.
func Summarize(rec *classify.Record) Summary {
	return Summary{
		TotalIngredients:      len(rec.Ingredients),
		NaturalIngredients:    len(rec.ClassificationSummary[category.Natural]),
		ArtificialIngredients: len(rec.ClassificationSummary[category.ArtificialColors]) + len(rec.ClassificationSummary[category.Preservatives]),
		Additives:             len(rec.ClassificationSummary[category.Additives]),
	}
}

func productNameOr(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return DefaultProductName
	}
	return name
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
