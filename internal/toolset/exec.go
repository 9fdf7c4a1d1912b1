package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/gate"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/security"
)

const defaultCommandTimeout = 60 * time.Second

// ExecuteCommandTool runs a shell command, subject to the Gate's command
// policy, and returns merged stdout+stderr plus the exit code.
type ExecuteCommandTool struct {
	manager *exec.Manager
	gate    *gate.Gate
}

func NewExecuteCommandTool(manager *exec.Manager, g *gate.Gate) *ExecuteCommandTool {
	return &ExecuteCommandTool{manager: manager, gate: g}
}

func (t *ExecuteCommandTool) Name() string                          { return "execute_command" }
func (t *ExecuteCommandTool) Description() string                   { return "Run a shell command in the workspace." }
func (t *ExecuteCommandTool) Category() Category                    { return CategoryCode }
func (t *ExecuteCommandTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *ExecuteCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"timeout": {"type": "integer", "minimum": 1},
			"capture_output": {"type": "boolean"}
		},
		"required": ["command"]
	}`)
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Command       string `json:"command"`
		Timeout       int    `json:"timeout"`
		CaptureOutput bool   `json:"capture_output"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	if err := t.gate.CheckCommand(in.Command); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}
	// The Gate's denylist/allowlist decides admission; this quote-aware scan
	// only annotates the result so callers (and reflect's diagnostics) can
	// see why a shell built-in behaved unexpectedly.
	shellRisk := security.AnalyzeCommandQuoteAware(in.Command)

	timeout := defaultCommandTimeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	res, err := t.manager.RunCommand(ctx, in.Command, "", nil, "", timeout)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	merged := res.Stdout
	if res.Stderr != "" {
		if merged != "" {
			merged += "\n"
		}
		merged += res.Stderr
	}
	meta := map[string]any{"return_code": res.ExitCode, "duration": res.Duration.String()}
	if !shellRisk.IsSafe {
		meta["shell_tokens"] = shellRisk.DangerousTokens
	}
	if !res.Finished {
		return fail("command timed out", meta), nil
	}
	if res.ExitCode != 0 {
		return &Result{Success: false, Output: merged, Error: fmt.Sprintf("exit code %d", res.ExitCode), Metadata: meta}, nil
	}
	return &Result{Success: true, Output: merged, Metadata: meta}, nil
}

// ExecutePythonTool runs a snippet of Python in a subprocess of the host's
// python3 interpreter.
type ExecutePythonTool struct {
	manager *exec.Manager
	gate    *gate.Gate
}

func NewExecutePythonTool(manager *exec.Manager, g *gate.Gate) *ExecutePythonTool {
	return &ExecutePythonTool{manager: manager, gate: g}
}

func (t *ExecutePythonTool) Name() string                          { return "execute_python" }
func (t *ExecutePythonTool) Description() string                   { return "Run a Python snippet in a subprocess." }
func (t *ExecutePythonTool) Category() Category                    { return CategoryCode }
func (t *ExecutePythonTool) NetworkRequirement() NetworkRequirement { return NetworkLocal }
func (t *ExecutePythonTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string"},
			"timeout": {"type": "integer", "minimum": 1}
		},
		"required": ["code"]
	}`)
}

func (t *ExecutePythonTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Code    string `json:"code"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return fail(fmt.Sprintf("invalid parameters: %v", err), nil), nil
	}
	timeout := defaultCommandTimeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	if err := t.gate.CheckCommand("python3 -"); err != nil {
		return fail(err.Error(), map[string]any{"violation": violationKind(err)}), nil
	}

	res, err := t.manager.RunCommand(ctx, "python3 -", "", nil, in.Code, timeout)
	if err != nil {
		return fail(err.Error(), nil), nil
	}
	merged := res.Stdout
	if res.Stderr != "" {
		if merged != "" {
			merged += "\n"
		}
		merged += res.Stderr
	}
	meta := map[string]any{"return_code": res.ExitCode}
	if res.ExitCode != 0 {
		return &Result{Success: false, Output: merged, Error: fmt.Sprintf("exit code %d", res.ExitCode), Metadata: meta}, nil
	}
	return &Result{Success: true, Output: merged, Metadata: meta}, nil
}
