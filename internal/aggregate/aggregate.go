// Package aggregate combines the sub-agent pool's per-sub-task results into
// a single AggregatedResult using one of four strategies.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/pool"
)

// Strategy is one of the four recognized combination strategies.
type Strategy string

const (
	StrategyConcatenate Strategy = "concatenate"
	StrategySummarize   Strategy = "summarize"
	StrategyMergeJSON   Strategy = "merge_json"
	StrategyList        Strategy = "list"
)

// AggregatedResult is the aggregator's output.
type AggregatedResult struct {
	OriginalTask   string                    `json:"original_task"`
	Success        bool                      `json:"success"`
	CombinedResult string                    `json:"combined_result"`
	Merged         map[string]any            `json:"merged_json,omitempty"`
	ListResult     []string                  `json:"list_result,omitempty"`
	IndividualResults []pool.ExecutionResult `json:"individual_results"`
	TotalDuration  time.Duration             `json:"total_duration"`
	SuccessCount   int                       `json:"success_count"`
	FailureCount   int                       `json:"failure_count"`
	Summary        string                    `json:"summary"`
	Errors         []string                  `json:"errors,omitempty"`
}

// Aggregate implements aggregate(results, original_task, strategy) ->
// AggregatedResult. client is only consulted for StrategySummarize, and may
// be nil (which falls back to concatenate, same as an LLM failure would).
func Aggregate(ctx context.Context, client *llmclient.Client, results []pool.ExecutionResult, originalTask string, strategy Strategy) AggregatedResult {
	out := AggregatedResult{
		OriginalTask:      originalTask,
		IndividualResults: results,
		TotalDuration:     totalDuration(results),
	}

	for _, r := range results {
		if r.Result.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
			if r.Result.Error != "" {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", r.SubTaskID, r.Result.Error))
			}
		}
	}
	out.Success = out.FailureCount == 0 && len(results) > 0

	switch strategy {
	case StrategyMergeJSON:
		out.Merged = mergeJSON(results)
		out.CombinedResult = concatenate(results)
	case StrategyList:
		out.ListResult = listResults(results)
		out.CombinedResult = strings.Join(out.ListResult, "\n")
	case StrategySummarize:
		concatenated := concatenate(results)
		if client == nil {
			out.CombinedResult = concatenated
			break
		}
		summary, err := summarize(ctx, client, originalTask, concatenated)
		if err != nil {
			out.CombinedResult = concatenated
			break
		}
		out.CombinedResult = summary
	default: // StrategyConcatenate and any unrecognized value
		out.CombinedResult = concatenate(results)
	}

	out.Summary = fmt.Sprintf("%d/%d sub-tasks succeeded", out.SuccessCount, len(results))
	return out
}

func concatenate(results []pool.ExecutionResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n", r.SubTaskID)
		if r.Result.Success {
			b.WriteString(r.Result.Result)
		} else {
			fmt.Fprintf(&b, "(failed: %s)", r.Result.Error)
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func mergeJSON(results []pool.ExecutionResult) map[string]any {
	merged := make(map[string]any, len(results))
	for _, r := range results {
		var decoded any
		if err := json.Unmarshal([]byte(r.Result.Result), &decoded); err == nil {
			merged[r.SubTaskID] = decoded
		} else {
			merged[r.SubTaskID] = r.Result.Result
		}
	}
	return merged
}

func listResults(results []pool.ExecutionResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Result.Result)
	}
	return out
}

const summarizePrompt = "Summarize the following combined sub-task results for the original task %q:\n\n%s"

func summarize(ctx context.Context, client *llmclient.Client, originalTask, concatenated string) (string, error) {
	resp, err := client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: fmt.Sprintf(summarizePrompt, originalTask, concatenated)},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// totalDuration applies spec's overlap rule: if any two sub-tasks' spans
// overlap, the total is the parallel span (max end - min start); otherwise
// it's the sum of individual durations.
func totalDuration(results []pool.ExecutionResult) time.Duration {
	var withTimestamps []pool.ExecutionResult
	for _, r := range results {
		if !r.Result.StartedAt.IsZero() && !r.Result.EndedAt.IsZero() {
			withTimestamps = append(withTimestamps, r)
		}
	}
	if len(withTimestamps) == 0 {
		return sumDurations(results)
	}
	if anyOverlap(withTimestamps) {
		min, max := withTimestamps[0].Result.StartedAt, withTimestamps[0].Result.EndedAt
		for _, r := range withTimestamps[1:] {
			if r.Result.StartedAt.Before(min) {
				min = r.Result.StartedAt
			}
			if r.Result.EndedAt.After(max) {
				max = r.Result.EndedAt
			}
		}
		return max.Sub(min)
	}
	return sumDurations(results)
}

func sumDurations(results []pool.ExecutionResult) time.Duration {
	var total time.Duration
	for _, r := range results {
		total += r.Result.Duration
	}
	return total
}

func anyOverlap(results []pool.ExecutionResult) bool {
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			a, b := results[i].Result, results[j].Result
			if a.StartedAt.Before(b.EndedAt) && b.StartedAt.Before(a.EndedAt) {
				return true
			}
		}
	}
	return false
}
