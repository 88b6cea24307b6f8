// Package llm defines the language-model gateway consumed by the workflow
// engine, its typed failure modes, lenient structured-output parsing, and the
// rate-limit and retry decorators applied at the call boundary.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/time/rate"

	"github.com/BaSui01/queryflow/retry"
	"github.com/BaSui01/queryflow/types"
)

// CompletionRequest is the gateway input. When Schema is set the model is
// asked for a JSON object conforming to it; the caller parses the result
// with ParseStructured.
type CompletionRequest struct {
	System      string         `json:"system,omitempty"`
	Prompt      string         `json:"prompt"`
	Schema      map[string]any `json:"schema,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

// Completion is the gateway output.
type Completion struct {
	Text         string `json:"text"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Gateway is the black-box LLM call: text or schema in, text or object out.
// Implementations surface timeouts, rate limits, and server errors as
// retryable types.Error values.
type Gateway interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req *CompletionRequest) (*Completion, error)

// Complete implements Gateway.
func (f GatewayFunc) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	return f(ctx, req)
}

// ParseStructured decodes a model response into dest, tolerating markdown
// code fences and leading prose around the JSON object. A response with no
// parseable object yields a PARSE_FAILED error.
func ParseStructured(text string, dest any) error {
	candidate := strings.TrimSpace(text)

	if i := strings.Index(candidate, "```"); i >= 0 {
		candidate = candidate[i+3:]
		candidate = strings.TrimPrefix(candidate, "json")
		if j := strings.Index(candidate, "```"); j >= 0 {
			candidate = candidate[:j]
		}
	}

	start := strings.IndexByte(candidate, '{')
	end := strings.LastIndexByte(candidate, '}')
	if start < 0 || end <= start {
		return types.NewError(types.ErrParseFailed, "no JSON object in model output")
	}

	if err := json.Unmarshal([]byte(candidate[start:end+1]), dest); err != nil {
		return types.NewError(types.ErrParseFailed, "malformed JSON in model output").WithCause(err)
	}
	return nil
}

// =============================================================================
// Decorators
// =============================================================================

// RateLimitedGateway throttles calls through a token bucket.
type RateLimitedGateway struct {
	inner   Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway wraps inner with a requests-per-second limit.
func NewRateLimitedGateway(inner Gateway, rps float64, burst int) *RateLimitedGateway {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedGateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Complete waits for a token, honoring context cancellation, then delegates.
func (g *RateLimitedGateway) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrUpstreamTimeout, "rate limiter wait canceled").WithCause(err)
	}
	return g.inner.Complete(ctx, req)
}

// RetryingGateway applies the shared retry policy to gateway calls.
type RetryingGateway struct {
	inner   Gateway
	retryer retry.Retryer
}

// NewRetryingGateway wraps inner with the retry policy.
func NewRetryingGateway(inner Gateway, retryer retry.Retryer) *RetryingGateway {
	return &RetryingGateway{inner: inner, retryer: retryer}
}

// Complete retries transient gateway failures per policy.
func (g *RetryingGateway) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	var result *Completion
	err := g.retryer.Do(ctx, func() error {
		var innerErr error
		result, innerErr = g.inner.Complete(ctx, req)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
