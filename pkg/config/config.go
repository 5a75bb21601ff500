// Package config loads service settings from .env, an optional config.yaml
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// DefaultJWTSecret is only accepted outside production.
const DefaultJWTSecret = "dev-insecure-secret-change"

// LLM backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

type AppConfig struct {
	Env            Environment
	LogLevel       string
	HTTPAddr       string
	GRPCHealthAddr string
	JWTSecret      string
	MaxImageBytes  int64
	OCRConcurrency int
	RequestTimeout time.Duration
}

type DBConfig struct {
	DSN         string
	AutoMigrate bool
}

type OCRConfig struct {
	Language         string
	TessdataPrefix   string
	MinWidth         int
	Timeout          time.Duration
	DebugDir         string
	WhitelistProfile bool
}

type LLMConfig struct {
	Backend     string
	URL         string
	Model       string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
	JSONFormat  bool
	MaxTokens   int
}

type CacheConfig struct {
	Size int
}

type Config struct {
	App   AppConfig
	DB    DBConfig
	OCR   OCRConfig
	LLM   LLMConfig
	Cache CacheConfig
}

var defaults = map[string]any{
	"app.env":               string(Development),
	"app.log_level":         "",
	"app.http_addr":         ":8081",
	"app.grpc_health_addr":  ":9091",
	"app.jwt_secret":        DefaultJWTSecret,
	"app.max_image_bytes":   10 << 20,
	"app.ocr_concurrency":   2,
	"app.request_timeout":   "3m",
	"db.dsn":                "",
	"db.auto_migrate":       true,
	"ocr.language":          "eng",
	"ocr.tessdata_prefix":   "",
	"ocr.min_width":         2000,
	"ocr.timeout":           "60s",
	"ocr.debug_dir":         "",
	"ocr.whitelist_profile": false,
	"llm.backend":           BackendOllama,
	"llm.url":               "http://localhost:11434",
	"llm.model":             "deepseek-r1:8b",
	"llm.api_key":           "",
	"llm.temperature":       0.1,
	"llm.timeout":           "120s",
	"llm.json_format":       true,
	"llm.max_tokens":        0,
	"cache.size":            100,
}

// Load reads ./.env and ./config.yaml when present, then the environment.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with the .env and config.yaml looked up in dir.
func LoadFrom(dir string) (*Config, error) {
	_ = godotenv.Load(dir + "/.env")

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	env := parseEnvironment(v.GetString("app.env"))
	logLevel := v.GetString("app.log_level")
	if logLevel == "" {
		logLevel = defaultLogLevel(env)
	}

	return &Config{
		App: AppConfig{
			Env:            env,
			LogLevel:       logLevel,
			HTTPAddr:       v.GetString("app.http_addr"),
			GRPCHealthAddr: v.GetString("app.grpc_health_addr"),
			JWTSecret:      v.GetString("app.jwt_secret"),
			MaxImageBytes:  v.GetInt64("app.max_image_bytes"),
			OCRConcurrency: v.GetInt("app.ocr_concurrency"),
			RequestTimeout: v.GetDuration("app.request_timeout"),
		},
		DB: DBConfig{
			DSN:         v.GetString("db.dsn"),
			AutoMigrate: v.GetBool("db.auto_migrate"),
		},
		OCR: OCRConfig{
			Language:         v.GetString("ocr.language"),
			TessdataPrefix:   v.GetString("ocr.tessdata_prefix"),
			MinWidth:         v.GetInt("ocr.min_width"),
			Timeout:          v.GetDuration("ocr.timeout"),
			DebugDir:         v.GetString("ocr.debug_dir"),
			WhitelistProfile: v.GetBool("ocr.whitelist_profile"),
		},
		LLM: LLMConfig{
			Backend:     strings.ToLower(v.GetString("llm.backend")),
			URL:         v.GetString("llm.url"),
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			Temperature: v.GetFloat64("llm.temperature"),
			Timeout:     v.GetDuration("llm.timeout"),
			JSONFormat:  v.GetBool("llm.json_format"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
		Cache: CacheConfig{
			Size: v.GetInt("cache.size"),
		},
	}, nil
}

// Validate checks the settings the HTTP service needs.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.App.Env == Production && (c.App.JWTSecret == "" || c.App.JWTSecret == DefaultJWTSecret) {
		return fmt.Errorf("APP_JWT_SECRET must be set in production")
	}
	return c.ValidateAnalysis()
}

// ValidateAnalysis checks only the OCR, model and cache settings, for tools
// that run the pipeline without the database.
func (c *Config) ValidateAnalysis() error {
	switch c.LLM.Backend {
	case BackendOllama:
	case BackendOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for the %s backend", BackendOpenAI)
		}
	default:
		return fmt.Errorf("unknown LLM_BACKEND %q", c.LLM.Backend)
	}
	if c.LLM.URL == "" || c.LLM.Model == "" {
		return fmt.Errorf("LLM_URL and LLM_MODEL are required")
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("CACHE_SIZE must be positive")
	}
	if c.App.OCRConcurrency < 1 {
		return fmt.Errorf("APP_OCR_CONCURRENCY must be positive")
	}
	if c.OCR.MinWidth < 1 {
		return fmt.Errorf("OCR_MIN_WIDTH must be positive")
	}
	return nil
}

func parseEnvironment(s string) Environment {
	switch env := Environment(strings.ToLower(s)); env {
	case Development, Production:
		return env
	default:
		return Development
	}
}

func defaultLogLevel(env Environment) string {
	if env == Production {
		return "info"
	}
	return "debug"
}
