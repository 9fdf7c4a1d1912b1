package toolset

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/nexus/internal/tools/sandbox"
)

// SandboxExecuteTool adapts the sandbox package's Docker-backed code
// executor (which speaks the agent.ToolResult contract) into the toolset's
// {success, output, error, metadata} contract.
type SandboxExecuteTool struct {
	executor *sandbox.Executor
}

func NewSandboxExecuteTool(executor *sandbox.Executor) *SandboxExecuteTool {
	return &SandboxExecuteTool{executor: executor}
}

func (t *SandboxExecuteTool) Name() string                          { return "sandbox_execute" }
func (t *SandboxExecuteTool) Description() string                   { return "Run code inside a managed isolated container." }
func (t *SandboxExecuteTool) Category() Category                    { return CategoryCode }
func (t *SandboxExecuteTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *SandboxExecuteTool) Schema() json.RawMessage                { return t.executor.Schema() }

func (t *SandboxExecuteTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	res, err := t.executor.Execute(ctx, params)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	if res.IsError {
		return fail(res.Content, nil), nil
	}
	return ok(res.Content, nil), nil
}
