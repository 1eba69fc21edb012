// Package llm talks to the external text-understanding service used for
// classification and summarization.
//
// Calls are single-shot: a failed request is reported to the caller, never
// retried. Outgoing prompts are scrubbed of secrets before they leave the
// process.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConfigured is returned by New when no API key is available.
	ErrNotConfigured = errors.New("llm: no API key configured")

	// ErrEmptyResponse indicates the service answered without any text.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// Rate limiter defaults: 50 requests per minute with small bursts.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
	defaultTimeout   = 60 * time.Second
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client completes prompts against an external model.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Model names the backend, recorded as a message's source model.
	Model() string
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	scrubber   *secrets.Scrubber
	limiter    *rate.Limiter
}

// WithHTTPClient overrides the HTTP client used by the HTTP providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithScrubber redacts secrets from prompts before sending them.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(o *options) { o.scrubber = s }
}

// WithRateLimiter replaces the default 50 requests/minute limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// New builds the client named by cfg.Provider.
// It returns ErrNotConfigured when cfg has no API key.
func New(cfg config.LLMConfig, opts ...Option) (Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, ErrNotConfigured
	}

	o := options{
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		timeout := cfg.Timeout.Duration()
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}

	switch cfg.Provider {
	case "", "openai":
		return newOpenAI(cfg, o), nil
	case "anthropic":
		return newAnthropic(cfg, o), nil
	case "langchain":
		return newLangchain(cfg, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// prepare waits for the limiter and scrubs the outgoing text.
func (o *options) prepare(ctx context.Context, req Request) (Request, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return req, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if o.scrubber != nil {
		req.Prompt = o.scrubber.ScrubString(req.Prompt)
	}
	return req, nil
}
