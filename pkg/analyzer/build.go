package analyzer

import (
	"fmt"

	"github.com/rs/zerolog"

	"labelscan/pkg/classify"
	"labelscan/pkg/config"
	"labelscan/pkg/llm"
	"labelscan/pkg/ocr"
)

// NewGenerator picks the model backend named in cfg.
func NewGenerator(cfg config.LLMConfig, logger zerolog.Logger) (llm.Generator, error) {
	opts := llm.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		JSONFormat:  cfg.JSONFormat,
		MaxTokens:   cfg.MaxTokens,
	}
	switch cfg.Backend {
	case config.BackendOllama:
		return llm.NewOllama(cfg.URL, opts, cfg.Timeout, logger), nil
	case config.BackendOpenAI:
		return llm.NewOpenAI(cfg.URL, cfg.APIKey, opts, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// NewExtractor wires tesseract with the configured profiles and, when
// OCR_DEBUG_DIR is set, a sink that keeps every preprocessed candidate.
func NewExtractor(cfg config.OCRConfig, logger zerolog.Logger) *ocr.Extractor {
	var sink ocr.DebugSink
	if cfg.DebugDir != "" {
		sink = ocr.DirSink{Dir: cfg.DebugDir, Prefix: "candidate"}
	}
	pre := ocr.NewPreprocessor(cfg.MinWidth, sink, logger)
	engine := ocr.NewTesseract(cfg.Language, cfg.TessdataPrefix)
	rec := ocr.NewRecognizer(engine, ocr.DefaultProfiles(cfg.WhitelistProfile), logger)
	return ocr.NewExtractor(pre, rec, logger)
}

// Build assembles the full pipeline from cfg. store may be nil. The cache is
// returned so callers can report its stats.
func Build(cfg *config.Config, store Store, logger zerolog.Logger) (*Service, *classify.LRU, error) {
	gen, err := NewGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}
	cache := classify.NewLRU(cfg.Cache.Size)
	client := classify.New(gen, classify.WithCache(cache), classify.WithTimeout(cfg.LLM.Timeout), classify.WithLogger(logger))

	opts := []Option{WithTimeouts(cfg.OCR.Timeout, cfg.LLM.Timeout), WithLogger(logger)}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	return New(NewExtractor(cfg.OCR, logger), client, opts...), cache, nil
}
