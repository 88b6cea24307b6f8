package workflow

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/tools"
	"github.com/BaSui01/queryflow/types"
)

func lookupTool(name string, calls *atomic.Int32) tools.Handler {
	return tools.NewFuncTool(types.ToolDescriptor{
		Name:        name,
		Description: "test lookup",
		Independent: true,
	}, func(_ context.Context, _ map[string]any) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		return map[string]any{"value": 42}, nil
	})
}

func newTestAgent(t *testing.T, gw llm.Gateway, handlers ...tools.Handler) *AgentLoop {
	t.Helper()
	logger := zap.NewNop()
	registry := tools.NewRegistry(nil, logger)
	for _, h := range handlers {
		registry.Register(h)
	}
	dispatcher := tools.NewDispatcher(registry, nil, logger)
	return NewAgentLoop(DefaultAgentConfig(), registry, dispatcher, gw, logger)
}

func TestAgentLoop_FinalAnswerImmediately(t *testing.T) {
	gw := llm.GatewayFunc(func(_ context.Context, _ *llm.CompletionRequest) (*llm.Completion, error) {
		return &llm.Completion{Text: `{"action": "final_answer", "answer": "42"}`}, nil
	})
	a := newTestAgent(t, gw)

	result, err := a.Run(context.Background(), "what is the answer", "u1")
	require.NoError(t, err)
	assert.Equal(t, "42", result.Answer)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.Forced)
}

func TestAgentLoop_ToolThenFinal(t *testing.T) {
	var toolCalls atomic.Int32
	step := 0
	gw := llm.GatewayFunc(func(_ context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
		step++
		if step == 1 {
			return &llm.Completion{Text: `{"action": "call_tool", "tool_calls": [{"tool_name": "lookup", "arguments": {}}]}`}, nil
		}
		// The tool result must have entered the transcript.
		assert.Contains(t, req.Prompt, "lookup")
		return &llm.Completion{Text: `{"action": "final_answer", "answer": "value is 42"}`}, nil
	})
	a := newTestAgent(t, gw, lookupTool("lookup", &toolCalls))

	result, err := a.Run(context.Background(), "look it up", "u1")
	require.NoError(t, err)
	assert.Equal(t, "value is 42", result.Answer)
	assert.Equal(t, int32(1), toolCalls.Load())
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
}

func TestAgentLoop_ParallelToolsPositionalResults(t *testing.T) {
	step := 0
	gw := llm.GatewayFunc(func(_ context.Context, _ *llm.CompletionRequest) (*llm.Completion, error) {
		step++
		if step == 1 {
			return &llm.Completion{Text: `{"action": "call_tools_parallel", "tool_calls": [` +
				`{"tool_name": "alpha", "arguments": {}},` +
				`{"tool_name": "beta", "arguments": {}}]}`}, nil
		}
		return &llm.Completion{Text: `{"action": "final_answer", "answer": "both done"}`}, nil
	})
	a := newTestAgent(t, gw, lookupTool("alpha", nil), lookupTool("beta", nil))

	result, err := a.Run(context.Background(), "run both", "u1")
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "alpha", result.Results[0].ToolName)
	assert.Equal(t, "beta", result.Results[1].ToolName)
}

func TestAgentLoop_IterationCapForcesFinalize(t *testing.T) {
	var decisions atomic.Int32
	gw := llm.GatewayFunc(func(_ context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
		decisions.Add(1)
		if strings.Contains(req.System, "final answer now") {
			return &llm.Completion{Text: `{"action": "final_answer", "answer": "forced"}`}, nil
		}
		// The model never wants to stop.
		return &llm.Completion{Text: `{"action": "call_tool", "tool_calls": [{"tool_name": "lookup", "arguments": {}}]}`}, nil
	})
	a := newTestAgent(t, gw, lookupTool("lookup", nil))

	result, err := a.Run(context.Background(), "loop forever", "u1")
	require.NoError(t, err)
	assert.True(t, result.Forced)
	assert.Equal(t, "forced", result.Answer)
	assert.Equal(t, DefaultAgentConfig().MaxIterations, result.Iterations)
	// 20 decisions in the loop plus the forced finalization.
	assert.Equal(t, int32(21), decisions.Load())
}

func TestAgentLoop_UnresolvedToolRoutesToFinalize(t *testing.T) {
	step := 0
	gw := llm.GatewayFunc(func(_ context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
		step++
		if step == 1 {
			return &llm.Completion{Text: `{"action": "call_tool", "tool_calls": [{"tool_name": "hallucinated_tool", "arguments": {}}]}`}, nil
		}
		require.Contains(t, req.System, "final answer now")
		return &llm.Completion{Text: `{"action": "final_answer", "answer": "without that tool"}`}, nil
	})
	a := newTestAgent(t, gw)

	result, err := a.Run(context.Background(), "use the magic tool", "u1")
	require.NoError(t, err)
	assert.True(t, result.Forced)
	assert.Equal(t, "without that tool", result.Answer)
	assert.Empty(t, result.Results)
}

func TestAgentLoop_DecisionFailureStillAnswers(t *testing.T) {
	gw := llm.GatewayFunc(func(_ context.Context, _ *llm.CompletionRequest) (*llm.Completion, error) {
		return nil, types.NewError(types.ErrUpstreamError, "model down")
	})
	a := newTestAgent(t, gw)

	result, err := a.Run(context.Background(), "anything", "u1")
	require.NoError(t, err)
	assert.Equal(t, limitedAnswer, result.Answer)
	assert.True(t, result.Forced)
}

func TestAgentLoop_EmptyQueryHardFails(t *testing.T) {
	a := newTestAgent(t, llm.GatewayFunc(func(_ context.Context, _ *llm.CompletionRequest) (*llm.Completion, error) {
		return &llm.Completion{Text: `{"action": "final_answer", "answer": "x"}`}, nil
	}))

	_, err := a.Run(context.Background(), "", "u1")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.GetErrorCode(err))
}
