package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/decompose"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
	"github.com/haasonsaas/nexus/internal/toolset"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id": "t", "object": "chat.completion", "created": 1, "model": "m",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		"usage":   map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
}

func completingClient(t *testing.T) *llmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("TASK_COMPLETE: all done"))
	}))
	t.Cleanup(srv.Close)
	client, err := llmclient.New(
		[]llmclient.EndpointConfig{{ID: "ep1", BaseURL: srv.URL, DefaultModel: "m", Timeout: time.Second}},
		"ep1", llmclient.RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond},
		llmclient.CachePolicy{}, llmclient.HealthPolicy{DegradedAfter: 1, UnhealthyAfter: 2, RecoveryAfter: 1}, nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func neverCompletingClient(t *testing.T) *llmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse(`{"action":"LIST_DIRECTORY","parameters":{"path":"."}}`))
	}))
	t.Cleanup(srv.Close)
	client, err := llmclient.New(
		[]llmclient.EndpointConfig{{ID: "ep1", BaseURL: srv.URL, DefaultModel: "m", Timeout: time.Second}},
		"ep1", llmclient.RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond},
		llmclient.CachePolicy{}, llmclient.HealthPolicy{DegradedAfter: 1, UnhealthyAfter: 2, RecoveryAfter: 1}, nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestSubAgent_CompletesOnTaskCompletePrefix(t *testing.T) {
	agent := NewSubAgent(completingClient(t), toolset.NewRegistry(), AgentConfig{MaxIterations: 3}, nil)
	result := agent.ExecuteTask(context.Background(), "do the thing", "t1", nil)
	if !result.Success || result.Result != "all done" {
		t.Fatalf("got %+v", result)
	}
}

func TestSubAgent_FailsAfterMaxIterations(t *testing.T) {
	reg := toolset.NewRegistry()
	agent := NewSubAgent(neverCompletingClient(t), reg, AgentConfig{MaxIterations: 2}, nil)
	result := agent.ExecuteTask(context.Background(), "do the thing", "t1", nil)
	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
}

func TestPool_ExecuteBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	p := New(completingClient(t), toolset.NewRegistry(), nil, 2, sandbox.ModeConfig{})
	subtasks := []decompose.SubTask{
		{ID: "a", Description: "task a", AgentType: "generalist"},
		{ID: "b", Description: "task b", AgentType: "generalist"},
		{ID: "c", Description: "task c", AgentType: "generalist"},
	}
	results := p.ExecuteBatch(context.Background(), subtasks, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, id := range []string{"a", "b", "c"} {
		if results[i].SubTaskID != id {
			t.Fatalf("expected order a,b,c; got %+v", results)
		}
		if !results[i].Result.Success {
			t.Fatalf("expected success for %s, got %+v", id, results[i])
		}
	}
}

func TestPool_ExecuteWithDependencies_FoldsContextForward(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			_ = json.NewEncoder(w).Encode(chatResponse("TASK_COMPLETE: first result"))
		} else {
			_ = json.NewEncoder(w).Encode(chatResponse("TASK_COMPLETE: second result"))
		}
	}))
	defer srv.Close()
	client, err := llmclient.New(
		[]llmclient.EndpointConfig{{ID: "ep1", BaseURL: srv.URL, DefaultModel: "m", Timeout: time.Second}},
		"ep1", llmclient.RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond},
		llmclient.CachePolicy{}, llmclient.HealthPolicy{DegradedAfter: 1, UnhealthyAfter: 2, RecoveryAfter: 1}, nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	p := New(client, toolset.NewRegistry(), nil, 2, sandbox.ModeConfig{})
	subtasks := []decompose.SubTask{
		{ID: "a", Description: "first", AgentType: "generalist"},
		{ID: "b", Description: "second", AgentType: "generalist", Dependencies: []string{"a"}},
	}
	layers := decompose.GetExecutionOrder(subtasks)
	results := p.ExecuteWithDependencies(context.Background(), subtasks, layers, nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Result.Success {
			t.Fatalf("expected success, got %+v", r)
		}
	}
}
