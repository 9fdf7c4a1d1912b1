package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
)

var trivialGreeting = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|good morning|good afternoon)[\s!.,]*$`)

const planPrompt = `Produce a short step-by-step plan to accomplish this task. Respond with
ONLY a JSON object: {"steps": ["step one", "step two", ...]}

Task: %s`

// runPlan implements the plan node: detect trivial conversational inputs,
// otherwise ask the LLM for a structured plan and initialize iteration
// bookkeeping. On unrecoverable planning failure it marks the state failed
// rather than looping.
func (e *Engine) runPlan(ctx context.Context, s *State) {
	if trivialGreeting.MatchString(s.Task) {
		s.TaskStatus = StatusCompleted
		s.TaskResult = "Hello! How can I help you today?"
		s.ShouldContinue = false
		return
	}

	resp, err := e.client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: fmt.Sprintf(planPrompt, s.Task)},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		s.TaskStatus = StatusFailed
		s.TaskResult = "planning failed: " + err.Error()
		s.ShouldContinue = false
		return
	}

	var plan Plan
	if err := jsonx.Extract(resp.Content, &plan); err != nil || len(plan.Steps) == 0 {
		s.TaskStatus = StatusFailed
		s.TaskResult = "planning failed: could not parse a plan from the LLM response"
		s.ShouldContinue = false
		return
	}

	s.Plan = plan
	s.CompletedSteps = nil
	s.Iteration = 0
	s.TaskStatus = StatusInProgress
	s.SoftLimit, s.HardLimit = deriveLimits(s.Task)
}

func stepCompleted(step string, completed []string) bool {
	for _, c := range completed {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(step)) {
			return true
		}
	}
	return false
}
