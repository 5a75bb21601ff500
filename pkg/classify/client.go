package classify

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"labelscan/pkg/llm"
)

// MinTextLen is the shortest ingredient text, in runes after trimming, that is
// sent to the model.
const MinTextLen = 3

// DefaultCallTimeout bounds one shared model call.
const DefaultCallTimeout = 2 * time.Minute

// Client classifies ingredient text with a generative model. Identical
// concurrent requests share one model call, and results are cached when a
// Cache is supplied. The shared call is detached from every caller's
// cancellation and bounded by the client's own timeout; each caller waits
// on it only until its own context ends.
type Client struct {
	gen     llm.Generator
	cache   Cache
	group   singleflight.Group
	timeout time.Duration
	logger  zerolog.Logger
}

type Option func(*Client)

// WithCache stores successful records in c.
func WithCache(c Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithTimeout bounds each shared model call. d <= 0 keeps DefaultCallTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func New(gen llm.Generator, opts ...Option) *Client {
	c := &Client{gen: gen, timeout: DefaultCallTimeout, logger: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the normalized record for text. The returned record is
// owned by the caller.
func (c *Client) Classify(ctx context.Context, text string) (*Record, error) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLen {
		return nil, ErrValidation
	}
	if c.cache != nil {
		if rec, ok := c.cache.Get(text); ok {
			c.logger.Debug().Int("len", len(text)).Msg("classification cache hit")
			return rec.Clone(), nil
		}
	}

	ch := c.group.DoChan(text, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.classify(callCtx, text)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("classification shared with in-flight request")
		}
		return res.Val.(*Record).Clone(), nil
	case <-ctx.Done():
		return nil, &ServiceUnavailableError{Err: ctx.Err()}
	}
}

func (c *Client) classify(ctx context.Context, text string) (*Record, error) {
	raw, err := c.gen.Generate(ctx, BuildPrompt(text))
	if err != nil {
		c.logger.Warn().Err(err).Msg("model call failed")
		return nil, &ServiceUnavailableError{Err: err}
	}
	rec, err := ParseResponse(raw)
	if err != nil {
		var schemaErr *SchemaValidationError
		if errors.As(err, &schemaErr) {
			c.logger.Warn().Strs("missing", schemaErr.Missing).Strs("invalid", schemaErr.Invalid).Msg("model answer failed validation")
		} else {
			c.logger.Warn().Err(err).Str("raw", snippet(raw, 200)).Msg("model answer is not JSON")
		}
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(text, rec)
	}
	c.logger.Debug().Int("ingredients", len(rec.Ingredients)).Float64("health_score", rec.HealthScore).Msg("classified")
	return rec, nil
}

// snippet shortens s to at most n runes for logging.
func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
