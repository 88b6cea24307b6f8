package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/tools"
	"github.com/BaSui01/queryflow/types"
)

// Agent decision actions.
const (
	actionFinal         = "final_answer"
	actionCallTool      = "call_tool"
	actionCallParallel  = "call_tools_parallel"
	defaultAgentMaxIter = 20
)

// AgentConfig bounds the tool-use loop.
type AgentConfig struct {
	// MaxIterations is the hard cap on decide/execute rounds. On reaching it
	// the loop force-finalizes regardless of the model's intent.
	MaxIterations int `yaml:"max_iterations"`
	// MaxAnswerTokens bounds each decision and the final answer.
	MaxAnswerTokens int `yaml:"max_answer_tokens"`
}

// DefaultAgentConfig returns the default loop bounds.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{MaxIterations: defaultAgentMaxIter, MaxAnswerTokens: 1024}
}

// AgentResult is the outcome of one agent loop run.
type AgentResult struct {
	Answer     string             `json:"answer"`
	Iterations int                `json:"iterations"`
	Forced     bool               `json:"forced,omitempty"`
	Results    []types.ToolResult `json:"tool_results,omitempty"`
	Telemetry  Telemetry          `json:"telemetry"`
}

// agentDecision is the model's structured step output.
type agentDecision struct {
	Action    string          `json:"action"`
	Answer    string          `json:"answer,omitempty"`
	ToolCalls []types.ToolTask `json:"tool_calls,omitempty"`
}

// AgentLoop is the tool-use sibling of the turn engine: fetch tool catalogs,
// then alternate model decisions with tool execution until the model
// finalizes or the iteration cap forces it to.
type AgentLoop struct {
	config     AgentConfig
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	gateway    llm.Gateway
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewAgentLoop wires the agent loop over the tool registry and dispatcher.
func NewAgentLoop(config AgentConfig, registry *tools.Registry, dispatcher *tools.Dispatcher, gateway llm.Gateway, logger *zap.Logger) *AgentLoop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaultAgentMaxIter
	}
	if config.MaxAnswerTokens <= 0 {
		config.MaxAnswerTokens = DefaultAgentConfig().MaxAnswerTokens
	}
	return &AgentLoop{
		config:     config,
		registry:   registry,
		dispatcher: dispatcher,
		gateway:    gateway,
		tracer:     otel.Tracer("github.com/BaSui01/queryflow/workflow"),
		logger:     logger.With(zap.String("component", "agent_loop")),
	}
}

// Run executes the loop for one query.
func (a *AgentLoop) Run(ctx context.Context, query, userID string) (*AgentResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "query must not be empty")
	}

	turnID := uuid.NewString()
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("turn_id", turnID)))
	defer span.End()

	// Catalog refresh failures leave the capability absent, never fail the
	// turn.
	a.registry.RefreshCatalogs(ctx)

	transcript := []types.Message{{Role: types.RoleUser, Content: query}}
	var allResults []types.ToolResult

	for iteration := 1; iteration <= a.config.MaxIterations; iteration++ {
		decision, err := a.decide(ctx, transcript, false)
		if err != nil {
			a.logger.Warn("agent decision failed, finalizing",
				zap.String("turn_id", turnID),
				zap.Error(err))
			return a.finalize(ctx, turnID, started, transcript, allResults, iteration, true)
		}

		switch decision.Action {
		case actionFinal:
			return a.result(turnID, started, decision.Answer, allResults, iteration, false), nil

		case actionCallTool, actionCallParallel:
			tasks := decision.ToolCalls
			if decision.Action == actionCallTool && len(tasks) > 1 {
				tasks = tasks[:1]
			}
			if len(tasks) == 0 {
				a.logger.Warn("tool action without tool calls, finalizing",
					zap.String("turn_id", turnID))
				return a.finalize(ctx, turnID, started, transcript, allResults, iteration, true)
			}
			if name, ok := a.unresolved(tasks); ok {
				a.logger.Warn("unresolved tool requested, finalizing",
					zap.String("turn_id", turnID),
					zap.String("tool", name))
				return a.finalize(ctx, turnID, started, transcript, allResults, iteration, true)
			}

			execCtx, execSpan := a.tracer.Start(ctx, "agent.tools",
				trace.WithAttributes(attribute.Int("tasks", len(tasks))))
			results := a.dispatcher.Dispatch(execCtx, tasks)
			execSpan.End()

			allResults = append(allResults, results...)
			transcript = append(transcript, toolMessages(results)...)

		default:
			a.logger.Warn("unknown agent action, finalizing",
				zap.String("turn_id", turnID),
				zap.String("action", decision.Action))
			return a.finalize(ctx, turnID, started, transcript, allResults, iteration, true)
		}
	}

	// Cap reached: finalize regardless of what the model wanted next.
	return a.finalize(ctx, turnID, started, transcript, allResults, a.config.MaxIterations, true)
}

// decide asks the model for the next step. When finalOnly is set the model
// may only produce a final answer.
func (a *AgentLoop) decide(ctx context.Context, transcript []types.Message, finalOnly bool) (*agentDecision, error) {
	ctx, span := a.tracer.Start(ctx, "agent.decide")
	defer span.End()

	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, d := range a.registry.Descriptors() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("\nConversation:\n")
	for _, m := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	system := "Decide the next step. Respond as a JSON object with action " +
		"(final_answer, call_tool, or call_tools_parallel), answer (for " +
		"final_answer), and tool_calls (array of {tool_name, arguments})."
	if finalOnly {
		system = "Produce your final answer now from the conversation so far. " +
			"Respond as a JSON object with action set to final_answer and answer."
	}

	completion, err := a.gateway.Complete(ctx, &llm.CompletionRequest{
		System: system,
		Prompt: b.String(),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action":     map[string]any{"type": "string"},
				"answer":     map[string]any{"type": "string"},
				"tool_calls": map[string]any{"type": "array"},
			},
			"required": []string{"action"},
		},
		MaxTokens:   a.config.MaxAnswerTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var decision agentDecision
	if err := llm.ParseStructured(completion.Text, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// finalize forces a final answer from the conversation so far.
func (a *AgentLoop) finalize(ctx context.Context, turnID string, started time.Time, transcript []types.Message, results []types.ToolResult, iterations int, forced bool) (*AgentResult, error) {
	decision, err := a.decide(ctx, transcript, true)
	if err != nil || strings.TrimSpace(decision.Answer) == "" {
		if err != nil {
			a.logger.Warn("forced finalization failed",
				zap.String("turn_id", turnID),
				zap.Error(err))
		}
		return a.result(turnID, started, limitedAnswer, results, iterations, forced), nil
	}
	return a.result(turnID, started, decision.Answer, results, iterations, forced), nil
}

func (a *AgentLoop) result(turnID string, started time.Time, answer string, results []types.ToolResult, iterations int, forced bool) *AgentResult {
	return &AgentResult{
		Answer:     answer,
		Iterations: iterations,
		Forced:     forced,
		Results:    results,
		Telemetry: Telemetry{
			TurnID:  turnID,
			Latency: time.Since(started),
		},
	}
}

// unresolved reports the first task whose tool name cannot be resolved.
func (a *AgentLoop) unresolved(tasks []types.ToolTask) (string, bool) {
	for _, t := range tasks {
		if _, err := a.registry.Resolve(t.ToolName); err != nil {
			return t.ToolName, true
		}
	}
	return "", false
}

// toolMessages renders tool results back into the transcript.
func toolMessages(results []types.ToolResult) []types.Message {
	out := make([]types.Message, 0, len(results))
	for _, r := range results {
		content := r.Error
		if r.Success {
			if raw, err := json.Marshal(r.Result); err == nil {
				content = string(raw)
			} else {
				content = fmt.Sprintf("%v", r.Result)
			}
		}
		out = append(out, types.Message{
			Role:    types.RoleTool,
			Content: fmt.Sprintf("%s: %s", r.ToolName, content),
		})
	}
	return out
}
