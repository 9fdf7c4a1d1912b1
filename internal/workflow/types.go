// Package workflow implements the plan/check_complexity/spawn_sub_agents/
// execute/reflect state graph that drives a single task to completion.
package workflow

import "time"

// TaskStatus is the workflow's terminal/non-terminal status.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// ToolCallRecord is one entry in the execute node's tool_calls log.
type ToolCallRecord struct {
	Action    string    `json:"action"`
	Params    string    `json:"params"`
	Success   bool      `json:"success"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Iteration int       `json:"iteration"`
	At        time.Time `json:"at"`
}

// Plan is the structured plan the plan node stores in context.plan.
type Plan struct {
	Steps []string `json:"steps"`
}

// State is the mutable state threaded through every node.
type State struct {
	TaskID      string
	Task        string
	Domain      string
	Workspace   string
	MaxIterations int

	Plan            Plan
	CompletedSteps  []string
	Iteration       int
	TaskStatus      TaskStatus
	TaskResult      string
	ShouldContinue  bool

	ToolCalls         []ToolCallRecord
	LastAction        string
	LastToolExecution string

	ConsecutiveParseFailures int

	// ComplexityEstimate and SubAgentResult are populated only when the
	// check_complexity/spawn_sub_agents path is taken.
	ComplexityEstimate float64
	SubAgentResult     string

	SoftLimit int
	HardLimit int

	StartedAt time.Time
}

// NewState builds a fresh State for a task, deriving soft/hard iteration
// limits from the task description per spec heuristics unless overridden.
func NewState(taskID, task, domain, workspace string, maxIterations int) *State {
	return &State{
		TaskID:         taskID,
		Task:           task,
		Domain:         domain,
		Workspace:      workspace,
		MaxIterations:  maxIterations,
		TaskStatus:     StatusInProgress,
		ShouldContinue: true,
		StartedAt:      time.Now(),
	}
}
