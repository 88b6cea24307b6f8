package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
)

// DegradedNotice prefixes every answer produced without retrieval grounding,
// so an ungrounded answer is never presented as grounded.
const DegradedNotice = "Note: the knowledge base is currently unavailable, so this answer is based only on the conversation so far.\n\n"

// GeneratorConfig tunes grounded prompt construction.
type GeneratorConfig struct {
	// MaxCitations bounds how many citations enter the prompt.
	MaxCitations int `yaml:"max_citations"`
	// FullTextTop citations are included verbatim; the rest are truncated.
	FullTextTop int `yaml:"full_text_top"`
	// TruncateChars bounds the excerpt length of non-top citations.
	TruncateChars int `yaml:"truncate_chars"`
	// PromptTokenBudget is the hard bound checked before sending. Overflow
	// rebuilds the prompt from the top citations only instead of retrying.
	PromptTokenBudget int `yaml:"prompt_token_budget"`
	// MaxAnswerTokens bounds the model output.
	MaxAnswerTokens int `yaml:"max_answer_tokens"`
}

// DefaultGeneratorConfig returns the default prompt bounds.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxCitations:      8,
		FullTextTop:       3,
		TruncateChars:     400,
		PromptTokenBudget: 3000,
		MaxAnswerTokens:   1024,
	}
}

// Generator produces the turn's answer: a grounded completion when citations
// are available, a summary-only degraded completion when retrieval was
// unavailable.
type Generator struct {
	config  GeneratorConfig
	gateway llm.Gateway
	counter *llm.TokenCounter
	logger  *zap.Logger
}

// NewGenerator creates a generator over the gateway.
func NewGenerator(config GeneratorConfig, gateway llm.Gateway, logger *zap.Logger) *Generator {
	if config.MaxCitations <= 0 {
		config.MaxCitations = DefaultGeneratorConfig().MaxCitations
	}
	if config.FullTextTop <= 0 {
		config.FullTextTop = DefaultGeneratorConfig().FullTextTop
	}
	if config.TruncateChars <= 0 {
		config.TruncateChars = DefaultGeneratorConfig().TruncateChars
	}
	if config.PromptTokenBudget <= 0 {
		config.PromptTokenBudget = DefaultGeneratorConfig().PromptTokenBudget
	}
	if config.MaxAnswerTokens <= 0 {
		config.MaxAnswerTokens = DefaultGeneratorConfig().MaxAnswerTokens
	}
	return &Generator{
		config:  config,
		gateway: gateway,
		counter: llm.NewTokenCounter(),
		logger:  logger.With(zap.String("component", "generator")),
	}
}

type generation struct {
	Answer     string   `json:"answer"`
	Language   string   `json:"language"`
	SectionIDs []string `json:"section_ids"`
}

// Generate runs one generation pass for the state and returns the updated
// state. Validation errors from a previous guardrail pass are fed back into
// the prompt so the retry can correct them.
func (g *Generator) Generate(ctx context.Context, state State) (State, error) {
	out := state.clone()
	out.GenerateCalls++

	if state.RetrievalUnavailable {
		return g.generateDegraded(ctx, out)
	}

	prompt := g.buildGroundedPrompt(state, g.config.MaxCitations)
	if g.counter.Count(prompt) > g.config.PromptTokenBudget {
		// Over budget: rebuild from the top citations only rather than
		// retrying the call.
		g.logger.Debug("prompt over token budget, rebuilding with top citations",
			zap.String("turn_id", state.TurnID))
		prompt = g.buildGroundedPrompt(state, g.config.FullTextTop)
	}

	completion, err := g.gateway.Complete(ctx, &llm.CompletionRequest{
		System: "Answer the user's question using ONLY the provided sources. " +
			"Reference each source you use with its [S#] marker. If the sources " +
			"do not contain the answer, say so. Respond as a JSON object with " +
			"answer, language (BCP 47 tag), and section_ids (the section_id " +
			"values of the sources you used).",
		Prompt: prompt,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":      map[string]any{"type": "string"},
				"language":    map[string]any{"type": "string"},
				"section_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"answer", "language"},
		},
		MaxTokens:   g.config.MaxAnswerTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return out, err
	}
	out.PromptTokens += completion.PromptTokens
	out.OutputTokens += completion.OutputTokens

	var gen generation
	if err := llm.ParseStructured(completion.Text, &gen); err != nil {
		return out, err
	}

	out.Answer = gen.Answer
	out.Language = gen.Language
	out.SectionIDs = gen.SectionIDs
	out.Degraded = false
	return out, nil
}

// generateDegraded is the summary-only path used when retrieval was
// unavailable. It answers from memory and recent messages and prefixes the
// answer with an explicit degradation notice.
func (g *Generator) generateDegraded(ctx context.Context, out State) (State, error) {
	var b strings.Builder
	if out.Memory.Summary != "" {
		fmt.Fprintf(&b, "Conversation summary:\n%s\n\n", out.Memory.Summary)
	}
	if len(out.Memory.Facts) > 0 {
		fmt.Fprintf(&b, "Known facts:\n- %s\n\n", strings.Join(out.Memory.Facts, "\n- "))
	}
	for _, m := range out.Memory.Window {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", out.Query)

	completion, err := g.gateway.Complete(ctx, &llm.CompletionRequest{
		System: "The knowledge base is unavailable. Answer only from the " +
			"conversation context provided; do not invent facts. Respond as a " +
			"JSON object with answer and language (BCP 47 tag).",
		Prompt: b.String(),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":   map[string]any{"type": "string"},
				"language": map[string]any{"type": "string"},
			},
			"required": []string{"answer", "language"},
		},
		MaxTokens:   g.config.MaxAnswerTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return out, err
	}
	out.PromptTokens += completion.PromptTokens
	out.OutputTokens += completion.OutputTokens

	var gen generation
	if err := llm.ParseStructured(completion.Text, &gen); err != nil {
		return out, err
	}

	out.Answer = DegradedNotice + gen.Answer
	out.Language = gen.Language
	out.SectionIDs = nil
	out.Degraded = true
	return out, nil
}

// buildGroundedPrompt renders up to maxCitations sources: the top FullTextTop
// verbatim, the rest truncated. Previous validation errors are appended so a
// retry can correct them.
func (g *Generator) buildGroundedPrompt(state State, maxCitations int) string {
	citations := state.Citations
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}

	var b strings.Builder
	for i, c := range citations {
		text := c.Content
		if i >= g.config.FullTextTop && len(text) > g.config.TruncateChars {
			text = text[:g.config.TruncateChars] + "…"
		}
		fmt.Fprintf(&b, "[S%d] %s (section %s)\n%s\n\n", i+1, c.Title, c.SectionID, text)
	}
	fmt.Fprintf(&b, "Question: %s", state.Query)

	if len(state.ValidationErrors) > 0 {
		fmt.Fprintf(&b, "\n\nYour previous answer was rejected:\n- %s\nCorrect these problems.",
			strings.Join(state.ValidationErrors, "\n- "))
	}
	return b.String()
}
