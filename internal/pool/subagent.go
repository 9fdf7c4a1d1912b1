package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/toolset"
)

const taskCompletePrefix = "TASK_COMPLETE:"

var completionPhrases = regexp.MustCompile(`(?i)\b(task is complete|task complete|done with the task|finished the task)\b`)

const subAgentSystemPrompt = `You are a focused sub-agent executing one task. At each step respond with
ONLY a JSON object of this shape:
{"action": "READ_FILE|WRITE_FILE|LIST_DIRECTORY|SEARCH_FILES|SEARCH_CODE|RUN_COMMAND|RUN_PYTHON|GIT_STATUS|GIT_DIFF|GIT_LOG|GIT_BRANCH|GIT_COMMIT|SANDBOX_EXECUTE|COMPLETE", "parameters": {...}}

Allowed tools for this task: %s

When the task is done, respond with action COMPLETE and a "summary" parameter
describing the result, or begin your message with "TASK_COMPLETE:" followed
by the summary.`

type action struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// SubAgent drives a single task to completion through a bounded LLM loop,
// restricted to an allow-listed subset of tools.
type SubAgent struct {
	client  *llmclient.Client
	tools   *toolset.Registry
	config  AgentConfig
	sink    EventSink
}

// NewSubAgent builds a SubAgent. sink may be nil, in which case progress
// events are discarded.
func NewSubAgent(client *llmclient.Client, tools *toolset.Registry, cfg AgentConfig, sink EventSink) *SubAgent {
	if sink == nil {
		sink = NopEventSink{}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &SubAgent{client: client, tools: tools, config: cfg, sink: sink}
}

// ExecuteTask implements execute_task(description, task_id, parent_context?)
// -> TaskResult.
func (a *SubAgent) ExecuteTask(ctx context.Context, description, taskID string, parentContext map[string]string) TaskResult {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	a.sink.Emit(Event{Type: EventTaskStart, TaskID: taskID})

	history := []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: fmt.Sprintf(subAgentSystemPrompt, strings.Join(a.config.AllowedTools, ", "))},
		{Role: llmclient.RoleUser, Content: buildTaskPrompt(description, parentContext)},
	}

	for iteration := 1; iteration <= a.config.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return a.finish(taskID, false, "", "timed out waiting for completion", iteration, started)
		default:
		}

		resp, err := a.client.ChatCompletion(ctx, llmclient.Request{Messages: history, Temperature: 0.1, MaxTokens: 1500})
		if err != nil {
			return a.finish(taskID, false, "", err.Error(), iteration, started)
		}
		a.sink.Emit(Event{Type: EventCodeChunk, TaskID: taskID, Data: resp.Content})

		if summary, ok := completionSummary(resp.Content); ok {
			a.sink.Emit(Event{Type: EventTaskComplete, TaskID: taskID, Data: summary})
			return a.finish(taskID, true, summary, "", iteration, started)
		}

		var act action
		if err := jsonx.Extract(resp.Content, &act); err != nil {
			history = append(history, llmclient.Message{Role: llmclient.RoleAssistant, Content: resp.Content})
			history = append(history, llmclient.Message{Role: llmclient.RoleUser, Content: "Your response was not valid JSON. Respond with only the JSON action object."})
			continue
		}

		if strings.EqualFold(act.Action, completeAction) {
			summary, _ := act.Parameters["summary"].(string)
			a.sink.Emit(Event{Type: EventTaskComplete, TaskID: taskID, Data: summary})
			return a.finish(taskID, true, summary, "", iteration, started)
		}

		output := a.runAction(ctx, act)
		history = append(history, llmclient.Message{Role: llmclient.RoleAssistant, Content: resp.Content})
		history = append(history, llmclient.Message{Role: llmclient.RoleUser, Content: "Tool result: " + output})
	}

	return a.finish(taskID, false, "", "incomplete: reached max_iterations", a.config.MaxIterations, started)
}

func (a *SubAgent) runAction(ctx context.Context, act action) string {
	toolName, known := actionTools[strings.ToUpper(act.Action)]
	if !known {
		return fmt.Sprintf("unknown action %q", act.Action)
	}
	if !a.config.allows(toolName) {
		return fmt.Sprintf("tool %q is not in this sub-agent's allowed_tools", toolName)
	}

	params, err := json.Marshal(act.Parameters)
	if err != nil {
		return fmt.Sprintf("failed to encode parameters: %v", err)
	}
	result, err := a.tools.Execute(ctx, toolName, params)
	if err != nil {
		return fmt.Sprintf("tool execution error: %v", err)
	}
	if !result.Success {
		return "error: " + result.Error
	}
	return result.Output
}

func (a *SubAgent) finish(taskID string, success bool, result, errMsg string, iterations int, started time.Time) TaskResult {
	now := time.Now()
	return TaskResult{
		TaskID:     taskID,
		Success:    success,
		Result:     result,
		Error:      errMsg,
		Iterations: iterations,
		Duration:   now.Sub(started),
		StartedAt:  started,
		EndedAt:    now,
	}
}

func buildTaskPrompt(description string, parentContext map[string]string) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(description)
	if len(parentContext) > 0 {
		b.WriteString("\n\nContext from prior sub-tasks:\n")
		for id, result := range parentContext {
			fmt.Fprintf(&b, "- %s: %s\n", id, result)
		}
	}
	return b.String()
}

// completionSummary reports whether content signals task completion via the
// TASK_COMPLETE: prefix or a case-insensitive completion phrase, returning
// the trailing summary text.
func completionSummary(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, taskCompletePrefix) {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, taskCompletePrefix)), true
	}
	if completionPhrases.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}
