// Package orchestrator is the top-level entry point: it resolves a
// workspace, classifies the task, builds a fresh Workflow engine and state,
// runs it, and folds the result into cumulative per-domain counters.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/aggregate"
	"github.com/haasonsaas/nexus/internal/cache"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/decompose"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/intent"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/pool"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
	"github.com/haasonsaas/nexus/internal/toolset"
	"github.com/haasonsaas/nexus/internal/workflow"
)

// Request is the input to ExecuteTask.
type Request struct {
	Task           string
	TaskID         string
	Workspace      string
	MaxIterations  int
	DomainOverride intent.Domain
}

// WorkflowResult is the orchestrator's output.
type WorkflowResult struct {
	TaskID     string
	Success    bool
	Output     string
	Error      string
	Iterations int
	Metadata   map[string]any
}

// DomainCounters tracks cumulative task outcomes per classified domain.
type DomainCounters struct {
	Total     int
	Succeeded int
	Failed    int
}

// Orchestrator wires the router, decomposer, sub-agent pool, and workflow
// engine together behind a single ExecuteTask entry point.
type Orchestrator struct {
	cfg     *config.Config
	client  *llmclient.Client
	tools   *toolset.Registry
	router  *intent.Router
	bus     *eventbus.Bus
	metrics *observability.Metrics
	tracer  *observability.Tracer
	shutdownTracer func(context.Context) error
	dedupe  *cache.DedupeCache

	mu       sync.Mutex
	counters map[intent.Domain]*DomainCounters
}

// New builds an Orchestrator from configuration, constructing the shared
// LLM client and tool registry once; each ExecuteTask call still gets a
// fresh Workflow engine and state per spec's isolation requirement.
func New(cfg *config.Config, bus *eventbus.Bus) (*Orchestrator, error) {
	endpoints := make([]llmclient.EndpointConfig, 0, len(cfg.LLM.Endpoints))
	for id, ep := range cfg.LLM.Endpoints {
		endpoints = append(endpoints, llmclient.EndpointConfig{
			ID: id, Name: ep.Name, BaseURL: ep.BaseURL, APIKey: ep.APIKey,
			DefaultModel: ep.DefaultModel, Adapter: ep.Adapter, Timeout: ep.Timeout,
		})
	}
	client, err := llmclient.New(endpoints, cfg.LLM.Primary,
		llmclient.RetryPolicy{MaxAttempts: cfg.LLM.Retry.MaxAttempts, BackoffBase: cfg.LLM.Retry.BackoffBase, BackoffCap: cfg.LLM.Retry.BackoffCap},
		llmclient.CachePolicy{Enabled: cfg.LLM.Cache.Enabled, TTL: cfg.LLM.Cache.TTL, MaxEntries: cfg.LLM.Cache.MaxEntries, TemperatureCeiling: cfg.LLM.Cache.TemperatureCeiling},
		llmclient.HealthPolicy{ProbeInterval: cfg.LLM.Health.ProbeInterval, DegradedAfter: cfg.LLM.Health.DegradedAfter, UnhealthyAfter: cfg.LLM.Health.UnhealthyAfter, RecoveryAfter: cfg.LLM.Health.RecoveryAfter},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building llm client: %w", err)
	}

	tools, err := toolset.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building tool registry: %w", err)
	}

	if bus == nil {
		bus = eventbus.New(256)
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "nexus",
		Endpoint:       cfg.Observability.TracingEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		EnableInsecure: cfg.Observability.Insecure,
	})

	return &Orchestrator{
		cfg:            cfg,
		client:         client,
		tools:          tools,
		router:         intent.New(client),
		bus:            bus,
		metrics:        observability.NewMetrics(),
		tracer:         tracer,
		shutdownTracer: shutdownTracer,
		dedupe:         cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: 10 * time.Second, MaxSize: 1000}),
		counters:       map[intent.Domain]*DomainCounters{},
	}, nil
}

// Events exposes the shared event bus for streaming consumers.
func (o *Orchestrator) Events() <-chan eventbus.Event { return o.bus.Events() }

// Start launches the LLM client's background health prober.
func (o *Orchestrator) Start(ctx context.Context) { o.client.Start(ctx) }

// Stop halts the background health prober and flushes any buffered traces.
func (o *Orchestrator) Stop() {
	o.client.Stop()
	if o.shutdownTracer != nil {
		_ = o.shutdownTracer(context.Background())
	}
}

// ExecuteTask implements the orchestrator's entry point contract: resolve
// workspace, assign task_id, classify, build isolated workflow state and
// engine, run it, and update cumulative counters.
func (o *Orchestrator) ExecuteTask(ctx context.Context, req Request) (WorkflowResult, error) {
	taskID := req.TaskID
	if taskID == "" {
		taskID = shortID()
	} else if o.dedupe.Check(cache.TaskDedupeKey(req.Workspace, taskID)) {
		return WorkflowResult{}, fmt.Errorf("orchestrator: task_id %q already submitted within the dedupe window", taskID)
	}

	ctx, span := o.tracer.Start(ctx, "execute_task")
	defer span.End()
	o.tracer.SetAttributes(span, "task_id", taskID)

	workspace, err := o.resolveWorkspace(req.Workspace)
	if err != nil {
		return WorkflowResult{}, fmt.Errorf("orchestrator: resolving workspace: %w", err)
	}

	classification := o.router.Classify(ctx, req.Task, req.DomainOverride)
	o.bus.Publish(ctx, eventbus.Event{Type: eventbus.TypeClassification, TaskID: taskID, Data: map[string]any{
		"domain": classification.Domain, "confidence": classification.Confidence, "reasoning": classification.Reasoning,
	}})

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	state := workflow.NewState(taskID, req.Task, string(classification.Domain), workspace, maxIterations)

	decomposer := decompose.New(o.client)
	sink := eventbus.NewPoolSink(ctx, o.bus, taskID)
	subpool := pool.New(o.client, o.tools, sink, o.cfg.Tools.Pool.MaxParallel, sandbox.ResolveModeConfig(o.cfg.Tools.Sandbox))

	engine := workflow.New(o.client, o.tools, decomposer, subpool, o.bus, workflow.Config{
		ComplexityThreshold: o.cfg.Workflow.ComplexityThreshold,
		SubAgentsEnabled:    o.cfg.Workflow.SubAgentsEnabled,
		RecursionLimit:      o.cfg.Workflow.RecursionLimit,
		AggregationStrategy: aggregate.Strategy(o.cfg.Workflow.AggregationStrategy),
	})

	started := time.Now()
	result, err := engine.Run(ctx, state)
	duration := time.Since(started)

	o.bus.Publish(ctx, eventbus.Event{Type: eventbus.TypeTaskComplete, TaskID: taskID, Data: map[string]any{"total_duration": duration}})

	if err != nil {
		o.recordOutcome(classification.Domain, false)
		o.metrics.RecordTask(string(classification.Domain), false, duration.Seconds())
		o.metrics.RecordRunAttempt("failed")
		o.tracer.RecordError(span, err)
		return WorkflowResult{TaskID: taskID, Success: false, Error: err.Error()}, err
	}

	o.recordOutcome(classification.Domain, result.Success)
	o.metrics.RecordTask(string(classification.Domain), result.Success, duration.Seconds())
	if result.Success {
		o.metrics.RecordRunAttempt("success")
	} else {
		o.metrics.RecordRunAttempt("failed")
	}
	return WorkflowResult{
		TaskID:     taskID,
		Success:    result.Success,
		Output:     result.Output,
		Error:      result.Error,
		Iterations: result.Iterations,
		Metadata:   result.Metadata,
	}, nil
}

// Status reports the LLM client's endpoint health and the configured
// sub-agent pool concurrency cap, for the CLI's `status` command.
type Status struct {
	Endpoints   []llmclient.EndpointStatus
	MaxParallel int
}

// Status returns a live snapshot suitable for the CLI's `status` command.
// It forces one synchronous probe of every endpoint first, so the snapshot
// reflects current reachability rather than whatever the background
// prober last observed.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.client.ProbeNow(ctx, nil)
	return Status{
		Endpoints:   o.client.Status(),
		MaxParallel: o.cfg.Tools.Pool.MaxParallel,
	}
}

// Counters returns a snapshot of cumulative per-domain outcome counters.
func (o *Orchestrator) Counters() map[intent.Domain]DomainCounters {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[intent.Domain]DomainCounters, len(o.counters))
	for d, c := range o.counters {
		out[d] = *c
	}
	return out
}

func (o *Orchestrator) recordOutcome(domain intent.Domain, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.counters[domain]
	if !ok {
		c = &DomainCounters{}
		o.counters[domain] = c
	}
	c.Total++
	if success {
		c.Succeeded++
	} else {
		c.Failed++
	}
}

// resolveWorkspace confines workspace to the configured root, creating it
// if missing and permitted, and refusing any path that escapes the root.
func (o *Orchestrator) resolveWorkspace(requested string) (string, error) {
	root, err := filepath.Abs(o.cfg.Workspace.Root)
	if err != nil {
		return "", err
	}
	if requested == "" {
		requested = root
	}
	abs, err := filepath.Abs(requested)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("workspace %q is outside the allowed root %q", requested, root)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if !o.cfg.Workspace.CreateIfMissing {
			return "", fmt.Errorf("workspace %q does not exist and create_if_missing is false", abs)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("creating workspace %q: %w", abs, err)
		}
	}
	return abs, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
