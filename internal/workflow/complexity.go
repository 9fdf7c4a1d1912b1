package workflow

import (
	"context"
	"fmt"
	"regexp"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
)

var (
	simpleIndicators  = regexp.MustCompile(`(?i)\b(create|make|write|add|calculator|simple|quick)\b`)
	complexIndicators = regexp.MustCompile(`(?i)\b(refactor|optimize|architecture|framework|migrate|redesign)\b`)
)

// deriveLimits implements the reflect node's soft/hard iteration limit
// heuristic over the task description.
func deriveLimits(task string) (soft, hard int) {
	switch {
	case complexIndicators.MatchString(task):
		return 15, 25
	case simpleIndicators.MatchString(task):
		return 5, 10
	default:
		return 10, 20
	}
}

const complexityEstimatePrompt = `Estimate how complex this task is to complete autonomously, as a number
from 0.0 (trivial) to 1.0 (requires decomposing into independent sub-tasks).
Respond with ONLY a JSON object: {"complexity_estimate": 0.0}

Task: %s`

// estimateComplexity calls the LLM for a numeric complexity estimate. On
// any failure it returns (0, false) so the caller can apply the spec's
// "default to not complex" safe path.
func estimateComplexity(ctx context.Context, client *llmclient.Client, task string) (float64, bool) {
	if client == nil {
		return 0, false
	}
	resp, err := client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: fmt.Sprintf(complexityEstimatePrompt, task)},
		},
		Temperature: 0.0,
		MaxTokens:   50,
	})
	if err != nil {
		return 0, false
	}
	var v struct {
		ComplexityEstimate float64 `json:"complexity_estimate"`
	}
	if err := jsonx.Extract(resp.Content, &v); err != nil {
		return 0, false
	}
	if v.ComplexityEstimate < 0 || v.ComplexityEstimate > 1 {
		return 0, false
	}
	return v.ComplexityEstimate, true
}
