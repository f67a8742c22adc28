// Package llm is the capability boundary to the text-generation backend.
// It knows how to reach a provider and bound the call in time; it makes no
// guarantee about the well-formedness of what comes back. Validation and
// retrying are entirely the caller's concern.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors for the two backend failure classes. Neither is retried
// here or by the retry coordinator; both escalate straight to the stage.
var (
	// ErrUnavailable means the backing service could not be reached or
	// returned a non-timeout failure.
	ErrUnavailable = errors.New("llm: generation backend unavailable")
	// ErrTimeout means the request's time budget elapsed before a response.
	// Caller-initiated cancellation surfaces the same way.
	ErrTimeout = errors.New("llm: generation timed out")
)

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model, baseURL string) (Provider, error) = defaultNewProvider

// Request describes one bounded generation call. A Request is immutable per
// attempt; the retry coordinator builds a fresh one for every retry.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// Client wraps a Provider with request validation and an explicit per-call
// timeout. It holds no mutable state and is safe for concurrent use as long
// as the underlying Provider is.
type Client struct {
	provider Provider
	logger   *zap.Logger
}

// NewClient returns a Client over the given provider. A nil logger is
// replaced with a no-op logger.
func NewClient(provider Provider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{provider: provider, logger: logger}
}

// Generate performs a single blocking generation call bounded by req.Timeout.
// It returns the raw text exactly as produced, or ErrTimeout / ErrUnavailable.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return "", fmt.Errorf("llm: request prompt must not be empty")
	}
	if req.Timeout <= 0 {
		return "", fmt.Errorf("llm: request timeout must be positive, got %s", req.Timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.provider.Complete(ctx, req.SystemPrompt, req.UserPrompt, req.MaxTokens, req.Temperature)
	if err != nil {
		// Deadline expiry and caller cancellation are indistinguishable to
		// the stage: in both cases no partial artifact exists.
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.Debug("generation complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_chars", len(req.UserPrompt)),
		zap.Int("output_chars", len(raw)))
	return raw, nil
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences. The content group
// uses `.*?` (not `.+?`) to allow empty bodies inside fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
// Used to strip orphaned opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// StripFences removes leading/trailing markdown code fences that LLMs
// sometimes wrap around generated output (e.g., "```yaml\n...\n```").
// If only an opening fence is present (the response was truncated before the
// closing fence), the opening line is stripped so the body can still be used.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model, baseURL string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	case "local":
		return newLocalProvider(model, baseURL)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}
