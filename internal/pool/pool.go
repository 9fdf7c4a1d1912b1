package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/internal/decompose"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
	"github.com/haasonsaas/nexus/internal/toolset"
)

// Pool dispatches sub-tasks to SubAgents with bounded concurrency and
// per-task error isolation: a single sub-task failure never cancels its
// siblings.
type Pool struct {
	client      *llmclient.Client
	tools       *toolset.Registry
	sink        EventSink
	maxParallel int
	sandboxMode sandbox.ModeConfig
	metrics     *observability.Metrics
}

// New builds a Pool. maxParallel bounds how many sub-tasks may run
// concurrently; values <= 0 default to 5. sandboxMode governs whether
// sub-agents (always non-main, per spec §4.F's "agent_type"-scoped tool
// allowlist) are granted the sandbox_execute tool.
func New(client *llmclient.Client, tools *toolset.Registry, sink EventSink, maxParallel int, sandboxMode sandbox.ModeConfig) *Pool {
	if maxParallel <= 0 {
		maxParallel = 5
	}
	if sink == nil {
		sink = NopEventSink{}
	}
	return &Pool{client: client, tools: tools, sink: sink, maxParallel: maxParallel, sandboxMode: sandboxMode, metrics: observability.NewMetrics()}
}

// ExecuteBatch runs every sub-task concurrently, bounded by maxParallel,
// and returns results in the same order as subTasks regardless of
// completion order.
func (p *Pool) ExecuteBatch(ctx context.Context, subTasks []decompose.SubTask, parentContext map[string]string) []ExecutionResult {
	results := make([]ExecutionResult, len(subTasks))
	sem := make(chan struct{}, p.maxParallel)
	var wg sync.WaitGroup

	for i, st := range subTasks {
		wg.Add(1)
		go func(i int, st decompose.SubTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.runIsolated(ctx, st, parentContext)
		}(i, st)
	}
	wg.Wait()
	return results
}

// ExecuteSequential runs every sub-task one at a time, in order.
func (p *Pool) ExecuteSequential(ctx context.Context, subTasks []decompose.SubTask, parentContext map[string]string) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(subTasks))
	for _, st := range subTasks {
		results = append(results, p.runIsolated(ctx, st, parentContext))
	}
	return results
}

// ExecuteWithDependencies runs subTasks layer by layer per the decomposer's
// execution order: each layer runs concurrently via ExecuteBatch, and
// successful results are folded into the accumulated context (keyed by
// subtask_id) visible to later layers.
func (p *Pool) ExecuteWithDependencies(ctx context.Context, subTasks []decompose.SubTask, layers decompose.ExecutionLayers, parentContext map[string]string) []ExecutionResult {
	byID := make(map[string]decompose.SubTask, len(subTasks))
	for _, st := range subTasks {
		byID[st.ID] = st
	}

	accumulated := make(map[string]string, len(parentContext))
	for k, v := range parentContext {
		accumulated[k] = v
	}

	var all []ExecutionResult
	for _, layer := range layers.Layers {
		var layerTasks []decompose.SubTask
		for _, id := range layer {
			if st, ok := byID[id]; ok {
				layerTasks = append(layerTasks, st)
			}
		}

		layerCtx := make(map[string]string, len(accumulated))
		for k, v := range accumulated {
			layerCtx[k] = v
		}

		results := p.ExecuteBatch(ctx, layerTasks, layerCtx)
		for _, r := range results {
			if r.Result.Success {
				accumulated[r.SubTaskID] = r.Result.Result
			}
		}
		all = append(all, results...)
	}
	return all
}

// runIsolated executes one sub-task through a SubAgent, converting any
// panic into a failed ExecutionResult rather than letting it propagate and
// cancel sibling sub-tasks.
func (p *Pool) runIsolated(ctx context.Context, st decompose.SubTask, parentContext map[string]string) (result ExecutionResult) {
	result = ExecutionResult{SubTaskID: st.ID}
	defer func() {
		if r := recover(); r != nil {
			result.Result = TaskResult{TaskID: st.ID, Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	agent := NewSubAgent(p.client, p.tools, AgentConfig{
		AllowedTools:  p.allowedToolsFor(st.AgentType, st.ID),
		MaxIterations: st.EstimatedIterations,
	}, p.sink)

	p.metrics.SubAgentStarted()
	defer p.metrics.SubAgentFinished()

	result.Result = agent.ExecuteTask(ctx, st.Description, st.ID, parentContext)
	return result
}

// allowedToolsFor returns the tool allow-list for a sub-task's agent_type.
// "generalist" and unrecognized types get the full catalog (an empty
// allow-list means unrestricted, per AgentConfig.allows). Every sub-task
// dispatched through the Pool is, by definition, a non-main agent, so
// sandbox_execute is appended whenever sandboxMode.ShouldSandbox grants it
// to non-main agents.
func (p *Pool) allowedToolsFor(agentType, taskID string) []string {
	var tools []string
	switch agentType {
	case "coder":
		tools = []string{"read_file", "write_file", "list_directory", "search_files", "grep", "execute_command", "execute_python", "git_status", "git_diff", "git_log", "git_branch", "git_commit"}
	case "researcher":
		tools = []string{"read_file", "list_directory", "search_files", "grep"}
	case "analyst":
		tools = []string{"read_file", "list_directory", "search_files", "grep", "execute_python"}
	case "reviewer":
		tools = []string{"read_file", "list_directory", "grep", "git_diff", "git_log"}
	default:
		return nil // unrestricted: sandbox_execute is already in the full catalog
	}
	if p.sandboxMode.ShouldSandbox(taskID, false) {
		tools = append(tools, "sandbox_execute")
	}
	return tools
}
