// Package workflow implements the turn state machine: intent classification,
// retrieval, grounded generation with a guardrail retry loop, metrics, a
// side-effect-free domain action, and memory compaction. A sibling agent loop
// adds tool-use decision and dispatch.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/memory"
	"github.com/BaSui01/queryflow/retrieval"
	"github.com/BaSui01/queryflow/types"
)

// limitedAnswer is returned when every generation attempt failed outright.
// The user always receives an answer, even an explicitly limited one.
const limitedAnswer = "I could not produce an answer for this question right now. Please try again."

// maxMemoryFactsInQuery bounds how many known facts augment the retrieval
// query.
const maxMemoryFactsInQuery = 3

// Retriever is the retrieval dependency. Satisfied by retrieval.Engine.
type Retriever interface {
	Retrieve(ctx context.Context, domain, query string, topK int) retrieval.Result
}

// Config holds the engine's turn-level tuning.
type Config struct {
	// MaxRetries bounds guardrail-triggered regenerations, so total Generate
	// calls per turn are MaxRetries+1.
	MaxRetries int `yaml:"max_retries"`
	// TopK is passed through to retrieval; zero uses the retrieval default.
	TopK int `yaml:"top_k"`
}

// DefaultConfig returns the default turn configuration.
func DefaultConfig() Config {
	return Config{MaxRetries: 2}
}

// Engine drives one conversation turn through the node sequence
// IntentDetect → Retrieve → Generate → Guardrail → (retry | continue) →
// CollectMetrics → ExecuteDomainWorkflow → CompactMemory.
type Engine struct {
	config    Config
	detector  *IntentDetector
	retriever Retriever
	generator *Generator
	guardrail *Guardrail
	planner   ActionPlanner
	compactor *memory.Compactor
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewEngine wires the turn state machine. planner, compactor, and collector
// may be nil; the corresponding node becomes a no-op.
func NewEngine(
	config Config,
	detector *IntentDetector,
	retriever Retriever,
	generator *Generator,
	guardrail *Guardrail,
	planner ActionPlanner,
	compactor *memory.Compactor,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Engine {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Engine{
		config:    config,
		detector:  detector,
		retriever: retriever,
		generator: generator,
		guardrail: guardrail,
		planner:   planner,
		compactor: compactor,
		collector: collector,
		tracer:    otel.Tracer("github.com/BaSui01/queryflow/workflow"),
		logger:    logger.With(zap.String("component", "workflow_engine")),
	}
}

// Run executes one full turn. Only pre-backend input validation can fail it;
// every downstream failure degrades into the answer instead.
func (e *Engine) Run(ctx context.Context, query string, mem types.Memory, userID string) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "query must not be empty")
	}

	state := State{
		TurnID:    uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Memory:    mem.Clone(),
		StartedAt: time.Now(),
	}
	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("turn_id", state.TurnID)))
	defer span.End()

	state = e.intentNode(ctx, state)
	state = e.retrieveNode(ctx, state)
	state = e.generateLoop(ctx, state)
	e.collectMetricsNode(ctx, state)
	state = e.actionNode(ctx, state)
	state = e.compactNode(ctx, state)

	return e.finish(state), nil
}

// Regenerate is the fast path: it reuses a previously computed domain and
// citation set, skipping IntentDetect and Retrieve.
func (e *Engine) Regenerate(ctx context.Context, query, domain string, citations []types.Citation, userID string) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidInput, "query must not be empty")
	}

	state := State{
		TurnID:    uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Domain:    domain,
		Citations: append([]types.Citation(nil), citations...),
		StartedAt: time.Now(),
	}
	ctx, span := e.tracer.Start(ctx, "workflow.regenerate",
		trace.WithAttributes(attribute.String("turn_id", state.TurnID)))
	defer span.End()

	state = e.generateLoop(ctx, state)
	e.collectMetricsNode(ctx, state)
	state = e.actionNode(ctx, state)
	state = e.compactNode(ctx, state)

	return e.finish(state), nil
}

func (e *Engine) intentNode(ctx context.Context, state State) State {
	ctx, span := e.tracer.Start(ctx, "workflow.intent_detect")
	defer span.End()

	out := state.clone()
	out.Domain = e.detector.Detect(ctx, state.Query)
	span.SetAttributes(attribute.String("domain", out.Domain))
	return out
}

func (e *Engine) retrieveNode(ctx context.Context, state State) State {
	ctx, span := e.tracer.Start(ctx, "workflow.retrieve",
		trace.WithAttributes(attribute.String("domain", state.Domain)))
	defer span.End()

	query := state.Query
	if facts := state.Memory.Facts; len(facts) > 0 {
		if len(facts) > maxMemoryFactsInQuery {
			facts = facts[:maxMemoryFactsInQuery]
		}
		query = query + " " + strings.Join(facts, " ")
	}

	result := e.retriever.Retrieve(ctx, state.Domain, query, e.config.TopK)

	out := state.clone()
	out.Citations = result.Citations
	out.RetrievalUnavailable = result.Unavailable
	out.RetrievalCacheHit = result.CacheHit
	span.SetAttributes(
		attribute.Int("citations", len(result.Citations)),
		attribute.Bool("unavailable", result.Unavailable))
	return out
}

// generateLoop runs Generate and Guardrail with the bounded retry decision:
// retry iff errors were recorded and the retry budget remains.
func (e *Engine) generateLoop(ctx context.Context, state State) State {
	for {
		var err error
		genCtx, span := e.tracer.Start(ctx, "workflow.generate",
			trace.WithAttributes(attribute.Int("attempt", state.RetryCount+1)))
		state, err = e.generator.Generate(genCtx, state)
		span.End()

		if err != nil {
			e.logger.Warn("generation attempt failed",
				zap.String("turn_id", state.TurnID),
				zap.Int("attempt", state.RetryCount+1),
				zap.Error(err))
			next := state.clone()
			next.ValidationErrors = []string{"generation failed: " + err.Error()}
			state = next
		} else {
			_, span := e.tracer.Start(ctx, "workflow.guardrail")
			state = e.guardrail.Check(state)
			span.End()
		}

		if len(state.ValidationErrors) == 0 || state.RetryCount >= e.config.MaxRetries {
			break
		}

		next := state.clone()
		next.RetryCount++
		state = next
		if e.collector != nil {
			e.collector.IncGenerateRetry(state.Domain)
		}
	}

	if strings.TrimSpace(state.Answer) == "" {
		out := state.clone()
		out.Answer = limitedAnswer
		out.Degraded = true
		return out
	}
	return state
}

// collectMetricsNode records turn telemetry. Failures here are logged and
// swallowed; metrics never abort a turn.
func (e *Engine) collectMetricsNode(ctx context.Context, state State) {
	_, span := e.tracer.Start(ctx, "workflow.collect_metrics")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("metrics collection failed",
				zap.String("turn_id", state.TurnID),
				zap.Any("panic", r))
		}
	}()

	if e.collector == nil {
		return
	}
	e.collector.ObserveTurn(state.Domain, time.Since(state.StartedAt))
	e.collector.AddPromptTokens(state.Domain, state.PromptTokens)
	for range state.ValidationErrors {
		e.collector.IncGuardrailError(state.Domain, "structural")
	}
}

func (e *Engine) actionNode(ctx context.Context, state State) State {
	if e.planner == nil {
		return state
	}
	ctx, span := e.tracer.Start(ctx, "workflow.domain_action")
	defer span.End()

	action, err := e.planner.Plan(ctx, state)
	if err != nil {
		e.logger.Warn("domain action planning failed",
			zap.String("turn_id", state.TurnID),
			zap.Error(err))
		return state
	}
	out := state.clone()
	out.Action = action
	return out
}

func (e *Engine) compactNode(ctx context.Context, state State) State {
	out := state.appendMessage(types.Message{Role: types.RoleUser, Content: state.Query})
	out = out.appendMessage(types.Message{Role: types.RoleAssistant, Content: out.Answer})

	if e.compactor == nil {
		return out
	}
	ctx, span := e.tracer.Start(ctx, "workflow.compact_memory")
	defer span.End()

	out.Memory = e.compactor.Compact(ctx, out.Memory, out.Messages)
	return out
}

func (e *Engine) finish(state State) *TurnResult {
	return &TurnResult{
		Answer:    state.Answer,
		Citations: state.Citations,
		Memory:    state.Memory,
		Action:    state.Action,
		Telemetry: Telemetry{
			TurnID:           state.TurnID,
			Domain:           state.Domain,
			Latency:          time.Since(state.StartedAt),
			PromptTokens:     state.PromptTokens,
			OutputTokens:     state.OutputTokens,
			CitationCount:    len(state.Citations),
			CacheHit:         state.RetrievalCacheHit,
			RetryCount:       state.RetryCount,
			Degraded:         state.Degraded,
			ValidationErrors: state.ValidationErrors,
		},
	}
}
