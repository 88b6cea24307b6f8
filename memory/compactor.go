// Package memory compacts growing conversation history into a bounded
// window plus a merged summary and a capped fact list.
package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/types"
)

// Config controls compaction bounds.
type Config struct {
	// WindowSize is the maximum number of recent messages retained verbatim.
	WindowSize int `yaml:"window_size"`
	// MaxFacts caps the distilled fact list.
	MaxFacts int `yaml:"max_facts"`
	// TokenThreshold triggers summary merging once the evicted messages plus
	// previous summary exceed this many tokens. Zero merges on every eviction.
	TokenThreshold int `yaml:"token_threshold"`
	// SummaryMaxTokens bounds the model's merged summary output.
	SummaryMaxTokens int `yaml:"summary_max_tokens"`
}

// DefaultConfig returns the default compaction bounds.
func DefaultConfig() Config {
	return Config{
		WindowSize:       8,
		MaxFacts:         8,
		TokenThreshold:   512,
		SummaryMaxTokens: 400,
	}
}

// Compactor folds overflowing messages into the summary via the LLM gateway.
// Compaction is best-effort: a gateway failure retains the previous summary
// and facts unchanged, and only the window cap is still enforced.
type Compactor struct {
	config  Config
	gateway llm.Gateway
	counter *llm.TokenCounter
	logger  *zap.Logger
}

// NewCompactor creates a compactor. gateway may be nil, in which case only
// window and fact caps are applied.
func NewCompactor(config Config, gateway llm.Gateway, logger *zap.Logger) *Compactor {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultConfig().WindowSize
	}
	if config.MaxFacts <= 0 {
		config.MaxFacts = DefaultConfig().MaxFacts
	}
	if config.SummaryMaxTokens <= 0 {
		config.SummaryMaxTokens = DefaultConfig().SummaryMaxTokens
	}
	return &Compactor{
		config:  config,
		gateway: gateway,
		counter: llm.NewTokenCounter(),
		logger:  logger.With(zap.String("component", "memory_compactor")),
	}
}

type mergedMemory struct {
	Summary string   `json:"summary"`
	Facts   []string `json:"facts"`
}

// Compact appends new messages to the memory window and, when the window
// overflows, folds the evicted messages into the summary and fact list.
// The input memory is never mutated.
func (c *Compactor) Compact(ctx context.Context, mem types.Memory, incoming []types.Message) types.Memory {
	out := mem.Clone()

	// Append-only window, deduplicated by content hash.
	seen := make(map[string]struct{}, len(out.Window))
	for _, m := range out.Window {
		seen[m.ContentHash()] = struct{}{}
	}
	for _, m := range incoming {
		h := m.ContentHash()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out.Window = append(out.Window, m)
	}

	if len(out.Window) <= c.config.WindowSize {
		out.Facts = capFacts(out.Facts, c.config.MaxFacts)
		return out
	}

	evicted := out.Window[:len(out.Window)-c.config.WindowSize]
	out.Window = append([]types.Message(nil), out.Window[len(out.Window)-c.config.WindowSize:]...)

	if c.gateway != nil && c.shouldMerge(out.Summary, evicted) {
		if merged, err := c.merge(ctx, out.Summary, out.Facts, evicted); err != nil {
			c.logger.Warn("summary merge failed, retaining previous memory", zap.Error(err))
		} else {
			out.Summary = merged.Summary
			out.Facts = merged.Facts
		}
	}

	out.Facts = capFacts(out.Facts, c.config.MaxFacts)
	return out
}

func (c *Compactor) shouldMerge(summary string, evicted []types.Message) bool {
	if c.config.TokenThreshold <= 0 {
		return true
	}
	total := c.counter.Count(summary)
	for _, m := range evicted {
		total += c.counter.Count(m.Content)
	}
	return total >= c.config.TokenThreshold
}

func (c *Compactor) merge(ctx context.Context, summary string, facts []string, evicted []types.Message) (*mergedMemory, error) {
	var transcript strings.Builder
	for _, m := range evicted {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	req := &llm.CompletionRequest{
		System: "You maintain a running conversation memory. Merge the previous " +
			"summary, known facts, and new messages into an updated summary and " +
			"fact list. Deduplicate, drop stale facts, and never invent facts " +
			"that were not stated.",
		Prompt: fmt.Sprintf(
			"Previous summary:\n%s\n\nKnown facts:\n%s\n\nNew messages:\n%s",
			summary, strings.Join(facts, "\n"), transcript.String()),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string"},
				"facts":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"summary", "facts"},
		},
		MaxTokens:   c.config.SummaryMaxTokens,
		Temperature: 0,
	}

	completion, err := c.gateway.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var merged mergedMemory
	if err := llm.ParseStructured(completion.Text, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func capFacts(facts []string, max int) []string {
	if len(facts) <= max {
		return facts
	}
	// Later facts are the more recently distilled ones.
	return append([]string(nil), facts[len(facts)-max:]...)
}
