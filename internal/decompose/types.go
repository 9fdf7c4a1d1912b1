// Package decompose breaks a complex task into an ordered set of sub-tasks
// that the sub-agent pool can execute, with a topological layering that
// respects declared dependencies.
package decompose

// SubTask is one unit of work within a TaskBreakdown.
type SubTask struct {
	ID                  string   `json:"id"`
	Description         string   `json:"description"`
	AgentType           string   `json:"agent_type"`
	Priority            int      `json:"priority"`
	Dependencies        []string `json:"dependencies"`
	EstimatedIterations int      `json:"estimated_iterations"`
	Context             string   `json:"context,omitempty"`
}

// TaskBreakdown is the decomposer's output.
type TaskBreakdown struct {
	Original                 string    `json:"original"`
	Complexity               string    `json:"complexity"`
	RequiresDecomposition    bool      `json:"requires_decomposition"`
	SubTasks                 []SubTask `json:"subtasks"`
	ExecutionStrategy        string    `json:"execution_strategy"`
	Reasoning                string    `json:"reasoning"`
	EstimatedDurationSeconds int       `json:"estimated_duration_seconds"`
}

// secondsPerIteration is the rough wall-clock cost of one sub-agent
// plan/execute/reflect iteration, used only to produce a duration estimate
// for display; it is not enforced as a timeout anywhere.
const secondsPerIteration = 10

// estimateDuration computes a sub-task's total estimated wall-clock time
// from its breakdown's execution strategy: parallel sub-tasks run
// concurrently so the breakdown takes as long as its slowest member,
// sequential sub-tasks run one after another so their estimates sum.
func estimateDuration(subTasks []SubTask, strategy string) int {
	if len(subTasks) == 0 {
		return 0
	}
	if strategy == "parallel" {
		max := 0
		for _, st := range subTasks {
			if d := st.EstimatedIterations * secondsPerIteration; d > max {
				max = d
			}
		}
		return max
	}
	total := 0
	for _, st := range subTasks {
		total += st.EstimatedIterations * secondsPerIteration
	}
	return total
}

// KnownAgentTypes is the closed set of agent_type values a sub-task may
// declare; anything else is rejected during validation.
var KnownAgentTypes = map[string]bool{
	"coder":      true,
	"researcher": true,
	"analyst":    true,
	"reviewer":   true,
	"generalist": true,
}
