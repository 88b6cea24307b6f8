package tools

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

func independentTool(name string, fn HandlerFunc) *FuncTool {
	return NewFuncTool(types.ToolDescriptor{
		Name:        name,
		Independent: true,
	}, fn)
}

func newTestDispatcher(t *testing.T, handlers ...Handler) *Dispatcher {
	t.Helper()
	r := NewRegistry(nil, zap.NewNop())
	for _, h := range handlers {
		r.Register(h)
	}
	return NewDispatcher(r, nil, zap.NewNop())
}

func TestDispatcher_FanOutIsolation(t *testing.T) {
	ok := func(_ context.Context, _ map[string]any) (any, error) { return "done", nil }
	fail := func(_ context.Context, _ map[string]any) (any, error) {
		return nil, types.NewError(types.ErrToolExecution, "boom")
	}

	d := newTestDispatcher(t,
		independentTool("t1", ok),
		independentTool("t2", fail),
		independentTool("t3", ok),
	)

	tasks := []types.ToolTask{
		{ToolName: "t1", Arguments: map[string]any{}},
		{ToolName: "t2", Arguments: map[string]any{}},
		{ToolName: "t3", Arguments: map[string]any{}},
	}
	results := d.Dispatch(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "boom")
	assert.True(t, results[2].Success)

	// Positional matching.
	for i, task := range tasks {
		assert.Equal(t, task.ToolName, results[i].ToolName)
	}
}

func TestDispatcher_PanicIsolatedToOneResult(t *testing.T) {
	d := newTestDispatcher(t,
		independentTool("safe", func(_ context.Context, _ map[string]any) (any, error) { return 1, nil }),
		independentTool("explosive", func(_ context.Context, _ map[string]any) (any, error) { panic("kaboom") }),
	)

	results := d.Dispatch(context.Background(), []types.ToolTask{
		{ToolName: "safe", Arguments: map[string]any{}},
		{ToolName: "explosive", Arguments: map[string]any{}},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "panic")
}

func TestDispatcher_UnresolvedFilteredBeforeDispatch(t *testing.T) {
	executed := atomic.Int32{}
	d := newTestDispatcher(t,
		independentTool("real", func(_ context.Context, _ map[string]any) (any, error) {
			executed.Add(1)
			return "ok", nil
		}),
	)

	results := d.Dispatch(context.Background(), []types.ToolTask{
		{ToolName: "ghost", Arguments: map[string]any{}},
		{ToolName: "real", Arguments: map[string]any{}},
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown tool")
	assert.True(t, results[1].Success)
	assert.Equal(t, int32(1), executed.Load())
}

func TestDispatcher_SingleTaskRunsSequentially(t *testing.T) {
	d := newTestDispatcher(t,
		independentTool("only", func(_ context.Context, _ map[string]any) (any, error) { return 7, nil }),
	)

	results := d.Dispatch(context.Background(), []types.ToolTask{
		{ToolName: "only", Arguments: map[string]any{}},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 7, results[0].Result)
}

func TestDispatcher_DependentToolsRunSequentially(t *testing.T) {
	var order []string
	dep := func(name string) HandlerFunc {
		return func(_ context.Context, _ map[string]any) (any, error) {
			order = append(order, name)
			return name, nil
		}
	}

	// Not marked independent, so both run on the sequential path where
	// appending to order without a lock is safe.
	d := newTestDispatcher(t,
		NewFuncTool(types.ToolDescriptor{Name: "a"}, dep("a")),
		NewFuncTool(types.ToolDescriptor{Name: "b"}, dep("b")),
	)

	results := d.Dispatch(context.Background(), []types.ToolTask{
		{ToolName: "a", Arguments: map[string]any{}},
		{ToolName: "b", Arguments: map[string]any{}},
	})

	require.Len(t, results, 2)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestDispatcher_EmptyBatch(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Dispatch(context.Background(), nil)
	assert.Empty(t, results)
}
