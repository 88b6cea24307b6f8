package tools

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/types"
)

// Dispatcher executes tool task batches. Independent tasks fan out
// concurrently and join; results come back in submission order and one
// task's failure never cancels its siblings.
type Dispatcher struct {
	registry  *Registry
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher over the registry. collector may be nil.
func NewDispatcher(registry *Registry, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		collector: collector,
		logger:    logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch executes tasks and returns exactly len(tasks) results, matched to
// tasks positionally. Unresolved or non-validating tasks fail in place
// without being dispatched. Only tools declared independent are batched
// concurrently; everything else (and a batch of exactly one) runs
// sequentially.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []types.ToolTask) []types.ToolResult {
	results := make([]types.ToolResult, len(tasks))

	var batch []int      // indexes safe to fan out
	var sequential []int // resolved but not independent

	for i, task := range tasks {
		results[i] = types.ToolResult{ToolName: task.ToolName, Arguments: task.Arguments}

		inv, err := d.registry.Resolve(task.ToolName)
		if err != nil {
			d.logger.Warn("tool task filtered before dispatch",
				zap.String("tool", task.ToolName),
				zap.Error(err))
			results[i].Error = err.Error()
			continue
		}

		desc, _ := d.registry.Descriptor(inv)
		if desc.Independent {
			batch = append(batch, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	// A batch of one gains nothing from a goroutine.
	if len(batch) == 1 {
		sequential = append(sequential, batch[0])
		batch = nil
	}

	if len(batch) > 0 {
		var wg sync.WaitGroup
		for _, i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.execute(ctx, tasks[i])
			}(i)
		}
		wg.Wait()
	}

	for _, i := range sequential {
		results[i] = d.execute(ctx, tasks[i])
	}

	return results
}

// execute runs one task, converting errors and panics into a failed result.
func (d *Dispatcher) execute(ctx context.Context, task types.ToolTask) (result types.ToolResult) {
	result = types.ToolResult{ToolName: task.ToolName, Arguments: task.Arguments}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Result = nil
			result.Error = fmt.Sprintf("tool panicked: %v", r)
			d.logger.Error("tool panic recovered",
				zap.String("tool", task.ToolName),
				zap.Any("panic", r))
			if d.collector != nil {
				d.collector.IncToolExecution(task.ToolName, false)
			}
		}
	}()

	inv, err := d.registry.Resolve(task.ToolName)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	out, err := d.registry.Invoke(ctx, inv, task.Arguments)
	if err != nil {
		result.Error = err.Error()
		if d.collector != nil {
			d.collector.IncToolExecution(task.ToolName, false)
		}
		return result
	}

	result.Success = true
	result.Result = out
	if d.collector != nil {
		d.collector.IncToolExecution(task.ToolName, true)
	}
	return result
}
