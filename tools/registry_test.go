package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

func weatherTool() *FuncTool {
	return NewFuncTool(types.ToolDescriptor{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Parameters: map[string]types.ParameterSpec{
			"city": {Type: "string", Required: true},
			"unit": {Type: "string"},
		},
		Independent: true,
	}, func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"city": args["city"], "temp_c": 21.5}, nil
	})
}

type mockCatalog struct {
	name    string
	tools   []types.ToolDescriptor
	listErr error
	invoked []string
}

func (m *mockCatalog) Name() string { return m.name }

func (m *mockCatalog) List(_ context.Context) ([]types.ToolDescriptor, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tools, nil
}

func (m *mockCatalog) Invoke(_ context.Context, tool string, _ map[string]any) (any, error) {
	m.invoked = append(m.invoked, tool)
	return "remote:" + tool, nil
}

func TestRegistry_ResolveLocalFirst(t *testing.T) {
	remote := &mockCatalog{name: "ops", tools: []types.ToolDescriptor{{Name: "get_weather"}}}
	r := NewRegistry([]Catalog{remote}, zap.NewNop())
	r.Register(weatherTool())
	r.RefreshCatalogs(context.Background())

	inv, err := r.Resolve("get_weather")
	require.NoError(t, err)
	assert.Equal(t, types.ToolSourceLocal, inv.Source)
}

func TestRegistry_ResolveStripsServerPrefix(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	r.Register(weatherTool())

	inv, err := r.Resolve("WeatherServer: get_weather")
	require.NoError(t, err)
	assert.Equal(t, "get_weather", inv.Name)
	assert.Equal(t, types.ToolSourceLocal, inv.Source)
}

func TestRegistry_ResolveCatalogPriorityOrder(t *testing.T) {
	first := &mockCatalog{name: "first", tools: []types.ToolDescriptor{{Name: "send_message"}}}
	second := &mockCatalog{name: "second", tools: []types.ToolDescriptor{{Name: "send_message"}}}
	r := NewRegistry([]Catalog{first, second}, zap.NewNop())
	r.RefreshCatalogs(context.Background())

	inv, err := r.Resolve("send_message")
	require.NoError(t, err)
	assert.Equal(t, "first", inv.Catalog)
}

func TestRegistry_ResolveUnknownIsTypedError(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())

	_, err := r.Resolve("imaginary_tool")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
}

func TestRegistry_CatalogListFailureMeansAbsent(t *testing.T) {
	broken := &mockCatalog{name: "broken", listErr: types.NewError(types.ErrConfigMissing, "no token")}
	r := NewRegistry([]Catalog{broken}, zap.NewNop())
	r.RefreshCatalogs(context.Background())

	_, err := r.Resolve("anything")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
}

func TestRegistry_InvokeValidatesArguments(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	r.Register(weatherTool())
	inv, err := r.Resolve("get_weather")
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), inv, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, types.ErrToolValidation, types.GetErrorCode(err))

	_, err = r.Invoke(context.Background(), inv, map[string]any{"city": 42})
	require.Error(t, err)
	assert.Equal(t, types.ErrToolValidation, types.GetErrorCode(err))

	out, err := r.Invoke(context.Background(), inv, map[string]any{"city": "Berlin"})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestRegistry_InvokeRemote(t *testing.T) {
	remote := &mockCatalog{name: "ops", tools: []types.ToolDescriptor{{Name: "create_ticket"}}}
	r := NewRegistry([]Catalog{remote}, zap.NewNop())
	r.RefreshCatalogs(context.Background())

	inv, err := r.Resolve("create_ticket")
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), inv, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "remote:create_ticket", out)
	assert.Equal(t, []string{"create_ticket"}, remote.invoked)
}

func TestValidateArguments_RejectsUnknownArgument(t *testing.T) {
	err := ValidateArguments(weatherTool().Descriptor(), map[string]any{
		"city":  "Berlin",
		"bogus": true,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrToolValidation, types.GetErrorCode(err))
}

func TestValidateArguments_IntegerAcceptsWholeFloat(t *testing.T) {
	desc := types.ToolDescriptor{
		Name: "fx_convert",
		Parameters: map[string]types.ParameterSpec{
			"amount": {Type: "integer", Required: true},
		},
	}
	assert.NoError(t, ValidateArguments(desc, map[string]any{"amount": float64(10)}))
	assert.Error(t, ValidateArguments(desc, map[string]any{"amount": 10.5}))
}
