package decompose

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
)

const complexityPrompt = `Assess the complexity of this task. Respond with ONLY a JSON object:
{"complexity": "simple|moderate|complex"}

Task: %s`

const decomposePrompt = `Break this task into independent sub-tasks. Respond with ONLY a JSON object of this shape:
{"subtasks": [{"id": "t1", "description": "...", "agent_type": "coder|researcher|analyst|reviewer|generalist", "priority": 1, "dependencies": [], "estimated_iterations": 5}]}

Dependencies must reference another sub-task's id in this same list.

Task: %s
Context: %s`

// Decomposer implements the decompose(task, context) -> TaskBreakdown
// contract.
type Decomposer struct {
	client *llmclient.Client
}

func New(client *llmclient.Client) *Decomposer {
	return &Decomposer{client: client}
}

// Decompose returns a TaskBreakdown. A "simple" complexity verdict short
// circuits with requires_decomposition=false. Any LLM failure along the
// way falls back to a single-task breakdown of the original description.
func (d *Decomposer) Decompose(ctx context.Context, task, taskContext string) TaskBreakdown {
	complexity, ok := d.assessComplexity(ctx, task)
	if !ok {
		return fallback(task)
	}
	if complexity == "simple" {
		return TaskBreakdown{
			Original:              task,
			Complexity:            complexity,
			RequiresDecomposition: false,
			Reasoning:             "complexity verdict: simple",
		}
	}

	subtasks, ok := d.requestSubtasks(ctx, task, taskContext)
	if !ok {
		return fallback(task)
	}
	if err := validate(subtasks); err != nil {
		return fallback(task)
	}

	strategy := "sequential"
	if allIndependent(subtasks) {
		strategy = "parallel"
	}

	return TaskBreakdown{
		Original:                 task,
		Complexity:               complexity,
		RequiresDecomposition:    true,
		SubTasks:                 subtasks,
		ExecutionStrategy:        strategy,
		Reasoning:                fmt.Sprintf("decomposed into %d sub-tasks", len(subtasks)),
		EstimatedDurationSeconds: estimateDuration(subtasks, strategy),
	}
}

func (d *Decomposer) assessComplexity(ctx context.Context, task string) (string, bool) {
	resp, err := d.client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: fmt.Sprintf(complexityPrompt, task)},
		},
		Temperature: 0.0,
		MaxTokens:   50,
	})
	if err != nil {
		return "", false
	}
	var v struct {
		Complexity string `json:"complexity"`
	}
	if err := jsonx.Extract(resp.Content, &v); err != nil {
		return "", false
	}
	switch v.Complexity {
	case "simple", "moderate", "complex":
		return v.Complexity, true
	default:
		return "", false
	}
}

func (d *Decomposer) requestSubtasks(ctx context.Context, task, taskContext string) ([]SubTask, bool) {
	resp, err := d.client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: fmt.Sprintf(decomposePrompt, task, taskContext)},
		},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, false
	}
	var v struct {
		SubTasks []SubTask `json:"subtasks"`
	}
	if err := jsonx.Extract(resp.Content, &v); err != nil {
		return nil, false
	}
	return v.SubTasks, true
}

func fallback(task string) TaskBreakdown {
	subtasks := []SubTask{{
		ID:                  "t1",
		Description:         task,
		AgentType:           "generalist",
		EstimatedIterations: 10,
	}}
	return TaskBreakdown{
		Original:                 task,
		Complexity:               "simple",
		RequiresDecomposition:    false,
		SubTasks:                 subtasks,
		ExecutionStrategy:        "sequential",
		Reasoning:                "decomposition unavailable, falling back to single task",
		EstimatedDurationSeconds: estimateDuration(subtasks, "sequential"),
	}
}

// validate enforces unique ids, known agent types, and that every
// dependency references another sub-task in the same breakdown.
func validate(subtasks []SubTask) error {
	if len(subtasks) == 0 {
		return fmt.Errorf("decompose: empty subtask list")
	}
	ids := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		if st.ID == "" {
			return fmt.Errorf("decompose: subtask missing id")
		}
		if ids[st.ID] {
			return fmt.Errorf("decompose: duplicate subtask id %q", st.ID)
		}
		ids[st.ID] = true
		if !KnownAgentTypes[st.AgentType] {
			return fmt.Errorf("decompose: unknown agent_type %q for subtask %q", st.AgentType, st.ID)
		}
	}
	for _, st := range subtasks {
		for _, dep := range st.Dependencies {
			if dep == st.ID {
				return fmt.Errorf("decompose: subtask %q depends on itself", st.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("decompose: subtask %q depends on unknown id %q", st.ID, dep)
			}
		}
	}
	return nil
}

func allIndependent(subtasks []SubTask) bool {
	for _, st := range subtasks {
		if len(st.Dependencies) > 0 {
			return false
		}
	}
	return true
}
