package tools

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// Handler executes a local tool. Invoke receives schema-validated arguments
// and returns a result or an error; errors are isolated to the one result.
type Handler interface {
	Descriptor() types.ToolDescriptor
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc is the function form of a tool implementation.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncTool adapts a descriptor and function to Handler.
type FuncTool struct {
	descriptor types.ToolDescriptor
	fn         HandlerFunc
}

// NewFuncTool creates a function-backed tool.
func NewFuncTool(descriptor types.ToolDescriptor, fn HandlerFunc) *FuncTool {
	return &FuncTool{descriptor: descriptor, fn: fn}
}

// Descriptor returns the tool's declared schema.
func (t *FuncTool) Descriptor() types.ToolDescriptor { return t.descriptor }

// Invoke runs the tool function.
func (t *FuncTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// Catalog is a remote tool catalog: it advertises descriptors and proxies
// invocations. List failures make the catalog's tools absent, never a turn
// failure.
type Catalog interface {
	Name() string
	List(ctx context.Context) ([]types.ToolDescriptor, error)
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)
}

// Registry maps tool names to local handlers and remote catalog entries.
type Registry struct {
	mu       sync.RWMutex
	local    map[string]Handler
	catalogs []Catalog
	// remote holds the advertised descriptors per catalog, refreshed by
	// RefreshCatalogs. Catalog order fixes resolution priority.
	remote map[string]map[string]types.ToolDescriptor
	logger *zap.Logger
}

// NewRegistry creates a registry over the given catalogs. Catalog order is
// the resolution priority order.
func NewRegistry(catalogs []Catalog, logger *zap.Logger) *Registry {
	return &Registry{
		local:    make(map[string]Handler),
		catalogs: catalogs,
		remote:   make(map[string]map[string]types.ToolDescriptor),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a local tool. Re-registering a name replaces the handler.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	r.local[h.Descriptor().Name] = h
	r.mu.Unlock()
}

// RefreshCatalogs fetches the advertised tool lists from every catalog. A
// catalog that fails to list (missing credentials, unreachable) is treated
// as empty and logged; its previously cached descriptors are dropped.
func (r *Registry) RefreshCatalogs(ctx context.Context) {
	for _, c := range r.catalogs {
		descriptors, err := c.List(ctx)
		r.mu.Lock()
		if err != nil {
			r.logger.Warn("tool catalog unavailable",
				zap.String("catalog", c.Name()),
				zap.Error(err))
			delete(r.remote, c.Name())
			r.mu.Unlock()
			continue
		}
		byName := make(map[string]types.ToolDescriptor, len(descriptors))
		for _, d := range descriptors {
			byName[d.Name] = d
		}
		r.remote[c.Name()] = byName
		r.mu.Unlock()
	}
}

// Resolve turns a free-form tool name into a tagged invocation in one
// deterministic step: strip an optional hallucinated "Server:" style prefix,
// check local tools, then each catalog in priority order. Unknown names get
// a typed TOOL_NOT_FOUND error.
func (r *Registry) Resolve(name string) (types.ToolInvocation, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = strings.TrimSpace(name[i+1:])
	}
	if name == "" {
		return types.ToolInvocation{}, types.NewError(types.ErrToolNotFound, "empty tool name")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.local[name]; ok {
		return types.ToolInvocation{Name: name, Source: types.ToolSourceLocal}, nil
	}
	for _, c := range r.catalogs {
		if byName, ok := r.remote[c.Name()]; ok {
			if _, ok := byName[name]; ok {
				return types.ToolInvocation{Name: name, Source: types.ToolSourceRemote, Catalog: c.Name()}, nil
			}
		}
	}
	return types.ToolInvocation{}, types.NewError(types.ErrToolNotFound, "unknown tool: "+name)
}

// Descriptor returns the declared schema for a resolved invocation.
func (r *Registry) Descriptor(inv types.ToolInvocation) (types.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv.Source == types.ToolSourceLocal {
		if h, ok := r.local[inv.Name]; ok {
			return h.Descriptor(), true
		}
		return types.ToolDescriptor{}, false
	}
	if byName, ok := r.remote[inv.Catalog]; ok {
		d, ok := byName[inv.Name]
		return d, ok
	}
	return types.ToolDescriptor{}, false
}

// Invoke validates args against the tool's schema and dispatches to the
// local handler or the owning catalog.
func (r *Registry) Invoke(ctx context.Context, inv types.ToolInvocation, args map[string]any) (any, error) {
	desc, ok := r.Descriptor(inv)
	if !ok {
		return nil, types.NewError(types.ErrToolNotFound, "unknown tool: "+inv.Name)
	}
	if err := ValidateArguments(desc, args); err != nil {
		return nil, err
	}

	if inv.Source == types.ToolSourceLocal {
		r.mu.RLock()
		h := r.local[inv.Name]
		r.mu.RUnlock()
		return h.Invoke(ctx, args)
	}

	for _, c := range r.catalogs {
		if c.Name() == inv.Catalog {
			return c.Invoke(ctx, inv.Name, args)
		}
	}
	return nil, types.NewError(types.ErrToolNotFound, "catalog not found: "+inv.Catalog)
}

// Descriptors returns every known tool descriptor, local tools first.
func (r *Registry) Descriptors() []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ToolDescriptor, 0, len(r.local))
	for _, h := range r.local {
		out = append(out, h.Descriptor())
	}
	for _, c := range r.catalogs {
		for _, d := range r.remote[c.Name()] {
			out = append(out, d)
		}
	}
	return out
}
