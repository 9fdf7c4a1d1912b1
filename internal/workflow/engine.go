package workflow

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/aggregate"
	"github.com/haasonsaas/nexus/internal/decompose"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/pool"
	"github.com/haasonsaas/nexus/internal/toolset"
)

// Config controls the engine's routing thresholds and safety backstops.
type Config struct {
	ComplexityThreshold float64
	SubAgentsEnabled    bool
	RecursionLimit      int
	AggregationStrategy aggregate.Strategy
}

// Result is the engine's terminal outcome.
type Result struct {
	Success    bool
	Output     string
	Error      string
	Iterations int
	Metadata   map[string]any
}

// Engine drives a single State through the plan/check_complexity/
// spawn_sub_agents/execute/reflect graph. A fresh Engine (or at least a
// fresh State) must be used per task: state is never shared across tasks.
type Engine struct {
	client     *llmclient.Client
	tools      *toolset.Registry
	decomposer *decompose.Decomposer
	subpool    *pool.Pool
	bus        *eventbus.Bus
	cfg        Config
}

// New builds an Engine. bus may be nil, in which case events are discarded.
func New(client *llmclient.Client, tools *toolset.Registry, decomposer *decompose.Decomposer, subpool *pool.Pool, bus *eventbus.Bus, cfg Config) *Engine {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = 100
	}
	if cfg.AggregationStrategy == "" {
		cfg.AggregationStrategy = aggregate.StrategyConcatenate
	}
	return &Engine{client: client, tools: tools, decomposer: decomposer, subpool: subpool, bus: bus, cfg: cfg}
}

// Run executes the state graph to completion (or to a fatal recursion-limit
// error) and returns the terminal Result.
func (e *Engine) Run(ctx context.Context, s *State) (*Result, error) {
	e.publish(ctx, s.TaskID, eventbus.TypeWorkflowStart, map[string]any{"task": s.Task, "domain": s.Domain, "max_iterations": s.MaxIterations})

	transitions := 0
	node := "plan"

	for {
		transitions++
		if transitions > e.cfg.RecursionLimit {
			return nil, fmt.Errorf("workflow: recursion limit (%d) exceeded", e.cfg.RecursionLimit)
		}

		switch node {
		case "plan":
			e.runPlan(ctx, s)
			e.publish(ctx, s.TaskID, eventbus.TypePlanCreated, map[string]any{"plan": s.Plan, "status": s.TaskStatus})
			if !s.ShouldContinue {
				return e.terminal(s), nil
			}
			node = "check_complexity"

		case "check_complexity":
			complex := e.checkComplexity(ctx, s)
			if complex {
				node = "spawn_sub_agents"
			} else {
				node = "execute"
			}

		case "spawn_sub_agents":
			e.runSpawnSubAgents(ctx, s)
			return e.terminal(s), nil

		case "execute":
			e.runExecute(ctx, s)
			e.publish(ctx, s.TaskID, eventbus.TypeActionDecided, map[string]any{"action": s.LastAction, "iteration": s.Iteration})
			if !s.ShouldContinue {
				return e.terminal(s), nil
			}
			node = "reflect"

		case "reflect":
			outcome := e.runReflect(s)
			e.publish(ctx, s.TaskID, eventbus.TypeNodeExecuted, map[string]any{"node": "reflect", "iteration": s.Iteration, "should_continue": outcome.shouldContinue})
			if outcome.shouldContinue {
				node = "execute"
				continue
			}
			s.TaskStatus = outcome.status
			s.TaskResult = outcome.result
			s.ShouldContinue = false
			return e.terminal(s), nil

		default:
			return nil, fmt.Errorf("workflow: unknown node %q", node)
		}
	}
}

// checkComplexity implements the complex? routing predicate: estimation
// failure defaults to "not complex" (the safe path).
func (e *Engine) checkComplexity(ctx context.Context, s *State) bool {
	if !e.cfg.SubAgentsEnabled {
		return false
	}
	estimate, ok := estimateComplexity(ctx, e.client, s.Task)
	if !ok {
		return false
	}
	s.ComplexityEstimate = estimate
	return estimate >= e.cfg.ComplexityThreshold
}

func (e *Engine) runSpawnSubAgents(ctx context.Context, s *State) {
	breakdown := e.decomposer.Decompose(ctx, s.Task, "")
	if !breakdown.RequiresDecomposition {
		s.TaskStatus = StatusFailed
		s.TaskResult = "spawn_sub_agents invoked but decomposer returned a single-task breakdown"
		return
	}

	e.publish(ctx, s.TaskID, eventbus.TypeNodeExecuted, map[string]any{
		"node": "spawn_sub_agents", "subtask_count": len(breakdown.SubTasks),
		"execution_strategy": breakdown.ExecutionStrategy,
		"estimated_duration_seconds": breakdown.EstimatedDurationSeconds,
	})

	layers := decompose.GetExecutionOrder(breakdown.SubTasks)
	results := e.subpool.ExecuteWithDependencies(ctx, breakdown.SubTasks, layers, nil)

	combined := aggregate.Aggregate(ctx, e.client, results, s.Task, e.cfg.AggregationStrategy)
	e.publish(ctx, s.TaskID, eventbus.TypeNodeExecuted, map[string]any{
		"node": "spawn_sub_agents", "success_count": combined.SuccessCount,
		"failure_count": combined.FailureCount, "strategy": e.cfg.AggregationStrategy,
	})

	if combined.Success {
		s.TaskStatus = StatusCompleted
	} else {
		s.TaskStatus = StatusFailed
	}
	s.TaskResult = combined.CombinedResult
	if !combined.Success && len(combined.Errors) > 0 {
		s.TaskResult = fmt.Sprintf("%s\n\nerrors: %s", combined.CombinedResult, fmt.Sprint(combined.Errors))
	}
}

func (e *Engine) terminal(s *State) *Result {
	success := s.TaskStatus == StatusCompleted
	result := &Result{
		Success:    success,
		Output:     s.TaskResult,
		Iterations: s.Iteration,
		Metadata:   map[string]any{"task_status": s.TaskStatus, "completed_steps": s.CompletedSteps},
	}
	if !success {
		result.Error = s.TaskResult
	}

	// Terminal events are published against Background rather than the
	// task's own context: a cancelled ctx must not suppress the single
	// workflow_complete/workflow_error event a consumer is waiting on.
	if success {
		e.publish(context.Background(), s.TaskID, eventbus.TypeWorkflowComplete, map[string]any{"success": true, "output": s.TaskResult, "iterations": s.Iteration})
	} else {
		e.publish(context.Background(), s.TaskID, eventbus.TypeWorkflowError, map[string]any{"error_type": string(s.TaskStatus), "message": s.TaskResult})
	}
	return result
}

func (e *Engine) publish(ctx context.Context, taskID string, t eventbus.Type, data map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, eventbus.Event{Type: t, TaskID: taskID, Data: data})
}
