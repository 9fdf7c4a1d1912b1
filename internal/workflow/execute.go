package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
)

const executeWindowSize = 5

const maxConsecutiveParseFailures = 3

const executeSystemPrompt = `You are executing a task step by step. At each step respond with ONLY a
JSON object of this shape:
{"action": "READ_FILE|WRITE_FILE|LIST_DIRECTORY|SEARCH_FILES|SEARCH_CODE|RUN_COMMAND|RUN_PYTHON|GIT_STATUS|COMPLETE", "parameters": {...}}

Use action COMPLETE with a "summary" parameter once the task is done.`

type plannedAction struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// runExecute implements the execute node: build a bounded-window prompt,
// ask the LLM for a single action, run it through the tool registry, and
// record the outcome.
func (e *Engine) runExecute(ctx context.Context, s *State) {
	prompt := buildExecutePrompt(s)

	resp, err := e.client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: executeSystemPrompt},
			{Role: llmclient.RoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   1200,
	})
	if err != nil {
		s.ToolCalls = append(s.ToolCalls, ToolCallRecord{Action: "LLM_ERROR", Success: false, Error: err.Error(), Iteration: s.Iteration, At: time.Now()})
		s.Iteration++
		return
	}

	var act plannedAction
	if err := jsonx.Extract(resp.Content, &act); err != nil {
		s.ConsecutiveParseFailures++
		s.ToolCalls = append(s.ToolCalls, ToolCallRecord{Action: "JSON_PARSE_ERROR", Success: false, Error: err.Error(), Iteration: s.Iteration, At: time.Now()})
		s.Iteration++
		if s.ConsecutiveParseFailures >= maxConsecutiveParseFailures {
			s.TaskStatus = StatusFailed
			s.TaskResult = "failed: exceeded consecutive JSON parse failures"
			s.ShouldContinue = false
		}
		return
	}
	s.ConsecutiveParseFailures = 0
	s.LastAction = act.Action

	if strings.EqualFold(act.Action, "COMPLETE") {
		summary, _ := act.Parameters["summary"].(string)
		s.TaskStatus = StatusCompleted
		s.TaskResult = summary
		s.ShouldContinue = false
		s.Iteration++
		return
	}

	record := e.runAction(ctx, s, act)
	s.ToolCalls = append(s.ToolCalls, record)
	s.LastToolExecution = record.Result
	if record.Success {
		s.CompletedSteps = append(s.CompletedSteps, act.Action)
	}
	s.Iteration++
}

func (e *Engine) runAction(ctx context.Context, s *State, act plannedAction) ToolCallRecord {
	now := time.Now()
	toolName, known := actionToolNames[strings.ToUpper(act.Action)]
	params, _ := json.Marshal(act.Parameters)
	record := ToolCallRecord{Action: act.Action, Params: string(params), Iteration: s.Iteration, At: now}

	if !known {
		record.Error = fmt.Sprintf("unknown action %q", act.Action)
		return record
	}

	result, err := e.tools.Execute(ctx, toolName, params)
	if err != nil {
		record.Error = err.Error()
		return record
	}
	record.Success = result.Success
	record.Result = result.Output
	record.Error = result.Error
	return record
}

var actionToolNames = map[string]string{
	"READ_FILE":      "read_file",
	"WRITE_FILE":     "write_file",
	"LIST_DIRECTORY": "list_directory",
	"SEARCH_FILES":   "search_files",
	"SEARCH_CODE":    "grep",
	"RUN_COMMAND":    "execute_command",
	"RUN_PYTHON":     "execute_python",
	"GIT_STATUS":     "git_status",
	"GIT_DIFF":       "git_diff",
	"GIT_LOG":        "git_log",
	"GIT_BRANCH":     "git_branch",
	"GIT_COMMIT":     "git_commit",
}

func buildExecutePrompt(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", s.Task)
	if len(s.Plan.Steps) > 0 {
		fmt.Fprintf(&b, "Plan:\n")
		for _, step := range s.Plan.Steps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	fmt.Fprintf(&b, "Iteration: %d/%d\n", s.Iteration, s.MaxIterations)
	fmt.Fprintf(&b, "Completed steps: %s\n", strings.Join(s.CompletedSteps, ", "))

	start := 0
	if len(s.ToolCalls) > executeWindowSize {
		start = len(s.ToolCalls) - executeWindowSize
	}
	if start < len(s.ToolCalls) {
		fmt.Fprintf(&b, "Recent tool calls:\n")
		for _, tc := range s.ToolCalls[start:] {
			fmt.Fprintf(&b, "- [%d] %s success=%v result=%s\n", tc.Iteration, tc.Action, tc.Success, truncate(tc.Result, 200))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
