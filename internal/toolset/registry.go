package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/internal/observability"
)

// Registry holds the fixed catalog of tools and enforces schema validation
// and wall-clock timing around every call.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema sync.Map // tool name -> *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool to the catalog, overwriting any existing entry with
// the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute validates params against the tool's schema, runs it, and records
// wall-clock duration in the result metadata.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return fail(fmt.Sprintf("unknown tool %q", name), nil), nil
	}

	schema, err := r.compiledSchema(tool)
	if err != nil {
		return fail(fmt.Sprintf("compile schema for %q: %v", name, err), nil), nil
	}
	if schema != nil {
		var decoded any
		if err := json.Unmarshal(params, &decoded); err != nil {
			return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
		}
		if err := schema.Validate(decoded); err != nil {
			return fail(fmt.Sprintf("parameters failed validation: %v", err), nil), nil
		}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	duration := time.Since(start)
	metrics := observability.NewMetrics()
	if err != nil {
		metrics.RecordToolExecution(name, "error", duration.Seconds())
		return fail(err.Error(), map[string]any{"duration_ms": duration.Milliseconds()}), nil
	}
	status := "success"
	if !result.Success {
		status = "error"
	}
	metrics.RecordToolExecution(name, status, duration.Seconds())
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["duration_ms"] = duration.Milliseconds()
	return result, nil
}

func (r *Registry) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	if cached, ok := r.schema.Load(tool.Name()); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil, nil
	}
	compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	r.schema.Store(tool.Name(), compiled)
	return compiled, nil
}
