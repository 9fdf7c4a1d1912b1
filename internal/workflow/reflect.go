package workflow

import "fmt"

// reflectOutcome reports whether the workflow should continue, and if not,
// what terminal status and result to record.
type reflectOutcome struct {
	shouldContinue bool
	status         TaskStatus
	result         string
}

// runReflect evaluates the eight-rule decision table in strict priority
// order (first match wins). Rules 3 (loop detection) and 5 (repeated
// failure) are the mandatory safety nets against unbounded LLM spending.
func (e *Engine) runReflect(s *State) reflectOutcome {
	// Rule 1: already completed.
	if s.TaskStatus == StatusCompleted {
		return reflectOutcome{status: StatusCompleted, result: s.TaskResult}
	}

	// Rule 2: hard iteration limit.
	if s.Iteration >= s.HardLimit {
		if len(s.ToolCalls) > 0 {
			return reflectOutcome{status: StatusCompleted, result: "reached iteration limit"}
		}
		return reflectOutcome{status: StatusFailed, result: "reached iteration limit with no progress"}
	}

	// Rule 3: loop detection — last 3 tool_calls share the same action.
	if loopDetected(s.ToolCalls) {
		return reflectOutcome{status: StatusCompleted, result: "loop detected"}
	}

	// Rule 4: no activity by iteration 5.
	if s.Iteration >= 5 && len(s.ToolCalls) == 0 {
		return reflectOutcome{status: StatusCompleted, result: "no activity"}
	}

	// Rule 5: repeated failure — mandatory safety net.
	if repeatedFailure(s.ToolCalls) {
		return reflectOutcome{status: StatusFailed, result: "aggregated error: repeated tool failures in recent history: " + aggregatedErrors(s.ToolCalls)}
	}

	// Rule 6: every planned step has been completed.
	if allStepsCompleted(s.Plan, s.CompletedSteps) {
		return reflectOutcome{status: StatusCompleted, result: "all planned steps completed"}
	}

	// Rule 7: soft limit reached with little recent activity.
	if s.Iteration >= s.SoftLimit && recentActivityCount(s.ToolCalls, 3) < 2 {
		return reflectOutcome{status: StatusCompleted, result: "soft-limit quiet"}
	}

	// Rule 8: continue.
	return reflectOutcome{shouldContinue: true}
}

func loopDetected(calls []ToolCallRecord) bool {
	if len(calls) < 3 {
		return false
	}
	last3 := calls[len(calls)-3:]
	action := last3[0].Action
	for _, c := range last3[1:] {
		if c.Action != action {
			return false
		}
	}
	return true
}

func repeatedFailure(calls []ToolCallRecord) bool {
	n := len(calls)
	if n == 0 {
		return false
	}
	start := 0
	if n > 5 {
		start = n - 5
	}
	window := calls[start:]
	failures := 0
	for _, c := range window {
		if !c.Success {
			failures++
		}
	}
	return failures >= 4
}

func aggregatedErrors(calls []ToolCallRecord) string {
	n := len(calls)
	start := 0
	if n > 5 {
		start = n - 5
	}
	msg := ""
	for _, c := range calls[start:] {
		if !c.Success && c.Error != "" {
			if msg != "" {
				msg += "; "
			}
			msg += fmt.Sprintf("%s: %s", c.Action, c.Error)
		}
	}
	return msg
}

func allStepsCompleted(plan Plan, completed []string) bool {
	if len(plan.Steps) == 0 {
		return false
	}
	for _, step := range plan.Steps {
		if !stepCompleted(step, completed) {
			return false
		}
	}
	return true
}

func recentActivityCount(calls []ToolCallRecord, window int) int {
	n := len(calls)
	start := 0
	if n > window {
		start = n - window
	}
	return len(calls[start:])
}
