package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
)

// DefaultDomain is the classification fallback for queries no rule or model
// can place.
const DefaultDomain = "general"

// IntentDetector classifies a query into a knowledge domain. A cheap keyword
// pass runs first; the model is only consulted when no keyword matches, and
// anything it returns outside the known domain set falls back to the default.
type IntentDetector struct {
	// keywords maps domain name to lowercase substrings that select it.
	keywords map[string][]string
	// domains is the closed set of valid classifications.
	domains map[string]struct{}
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewIntentDetector creates a detector over the given domain keyword lists.
// gateway may be nil to disable the model fallback.
func NewIntentDetector(keywords map[string][]string, gateway llm.Gateway, logger *zap.Logger) *IntentDetector {
	domains := make(map[string]struct{}, len(keywords)+1)
	lowered := make(map[string][]string, len(keywords))
	for domain, words := range keywords {
		domains[domain] = struct{}{}
		low := make([]string, len(words))
		for i, w := range words {
			low[i] = strings.ToLower(w)
		}
		lowered[domain] = low
	}
	domains[DefaultDomain] = struct{}{}

	return &IntentDetector{
		keywords: lowered,
		domains:  domains,
		gateway:  gateway,
		logger:   logger.With(zap.String("component", "intent_detector")),
	}
}

type intentResult struct {
	Domain string `json:"domain"`
}

// Detect returns the domain for query. It never fails: classification
// problems resolve to the default domain.
func (d *IntentDetector) Detect(ctx context.Context, query string) string {
	lowered := strings.ToLower(query)
	for domain, words := range d.keywords {
		for _, w := range words {
			if w != "" && strings.Contains(lowered, w) {
				return domain
			}
		}
	}

	if d.gateway == nil {
		return DefaultDomain
	}

	known := make([]string, 0, len(d.domains))
	for domain := range d.domains {
		known = append(known, domain)
	}

	completion, err := d.gateway.Complete(ctx, &llm.CompletionRequest{
		System: "Classify the user query into exactly one of the listed domains. " +
			"Answer with a JSON object.",
		Prompt: "Domains: " + strings.Join(known, ", ") + "\n\nQuery: " + query,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"domain": map[string]any{"type": "string"},
			},
			"required": []string{"domain"},
		},
		Temperature: 0,
	})
	if err != nil {
		d.logger.Warn("intent classification failed, using default domain", zap.Error(err))
		return DefaultDomain
	}

	var result intentResult
	if err := llm.ParseStructured(completion.Text, &result); err != nil {
		d.logger.Warn("intent output unparseable, using default domain", zap.Error(err))
		return DefaultDomain
	}

	domain := strings.ToLower(strings.TrimSpace(result.Domain))
	if _, ok := d.domains[domain]; !ok {
		return DefaultDomain
	}
	return domain
}
