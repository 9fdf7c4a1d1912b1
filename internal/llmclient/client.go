package llmclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/errkind"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/retry"
)

var errEmptyContent = errors.New("llm: endpoint returned empty content")

type endpointClient struct {
	cfg     EndpointConfig
	health  *endpointHealth
	wire    *openai.Client
	adapter adapter
}

// Client implements the chat_completion contract over an ordered set of
// OpenAI-wire endpoints with health-aware routing, retry/backoff, and a
// temperature-gated response cache.
type Client struct {
	endpoints []*endpointClient
	primary   string
	retry     RetryPolicy
	cachePol  CachePolicy
	healthPol HealthPolicy
	cache     *responseCache
	logger    *slog.Logger
	prober    *prober
	metrics   *observability.Metrics
}

// New builds a Client from endpoint, retry, cache, and health configuration.
// If healthPolicy.ProbeInterval is non-zero, Start must be called to run the
// background prober.
func New(endpoints []EndpointConfig, primary string, retryPolicy RetryPolicy, cachePolicy CachePolicy, healthPolicy HealthPolicy, logger *slog.Logger) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("llmclient: at least one endpoint is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clients := make([]*endpointClient, 0, len(endpoints))
	for _, cfg := range endpoints {
		if cfg.Timeout <= 0 {
			cfg.Timeout = 30 * time.Second
		}
		wireCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			wireCfg.BaseURL = cfg.BaseURL
		}
		clients = append(clients, &endpointClient{
			cfg:     cfg,
			health:  newEndpointHealth(healthPolicy),
			wire:    openai.NewClientWithConfig(wireCfg),
			adapter: adapterFor(cfg.Adapter),
		})
	}

	// Put the primary endpoint first so, within a health-rank bucket, it is
	// tried before its peers (the candidate sort below is stable).
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].cfg.ID == primary && clients[j].cfg.ID != primary
	})

	return &Client{
		endpoints: clients,
		primary:   primary,
		retry:     retryPolicy,
		cachePol:  cachePolicy,
		healthPol: healthPolicy,
		cache:     newResponseCache(cachePolicy),
		logger:    logger,
		metrics:   observability.NewMetrics(),
	}, nil
}

// Start launches the background health prober. Stop must be called to shut
// it down.
func (c *Client) Start(ctx context.Context) {
	if c.prober != nil {
		return
	}
	interval := c.healthPol.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c.prober = newProber(c, interval, c.logger)
	go c.prober.run(ctx)
}

// Stop halts the background health prober, if running.
func (c *Client) Stop() {
	if c.prober != nil {
		c.prober.Stop()
	}
}

// EndpointStatus reports each endpoint's current health, for the CLI's
// `status` command.
type EndpointStatus struct {
	ID     string
	Name   string
	Health HealthState
}

func (c *Client) Status() []EndpointStatus {
	out := make([]EndpointStatus, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		out = append(out, EndpointStatus{ID: ep.cfg.ID, Name: ep.cfg.Name, Health: ep.health.current()})
	}
	return out
}

// ChatCompletion implements spec §4.C's call contract: build an
// ordered candidate list (healthy, then degraded, then unhealthy), retry
// with backoff across candidates up to MaxAttempts, and serve from cache
// when eligible.
func (c *Client) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	cacheEligible := c.cachePol.Enabled && req.Temperature < c.cachePol.TemperatureCeiling
	key := ""
	if cacheEligible {
		key = cacheKey(req)
		if resp, ok := c.cache.get(key); ok {
			resp.FromCache = true
			return &resp, nil
		}
	}

	candidates := append([]*endpointClient{}, c.endpoints...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return healthRank(candidates[i].health.current()) < healthRank(candidates[j].health.current())
	})

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	sawNonEmptyFailure := false
	attempt := 0
	for attempt < maxAttempts {
		for _, ep := range candidates {
			if attempt >= maxAttempts {
				break
			}
			attempt++

			callCtx, cancel := context.WithTimeout(ctx, ep.cfg.Timeout)
			callStart := time.Now()
			resp, err := c.callEndpoint(callCtx, ep, req)
			callDuration := time.Since(callStart)
			cancel()

			if err == nil {
				ep.health.recordSuccess()
				resp.Endpoint = ep.cfg.ID
				c.metrics.RecordLLMRequest(ep.cfg.ID, ep.cfg.DefaultModel, "success", callDuration.Seconds(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
				if cacheEligible {
					c.cache.put(key, *resp)
				}
				return resp, nil
			}

			ep.health.recordFailure()
			c.metrics.RecordLLMRequest(ep.cfg.ID, ep.cfg.DefaultModel, "error", callDuration.Seconds(), 0, 0)
			lastErr = err

			if kind, ok := errkind.As(err); ok && kind.Kind == errkind.LLMBadRequest {
				return nil, err
			}
			if !errors.Is(err, errEmptyContent) {
				sawNonEmptyFailure = true
			}

			c.logger.Warn("llm endpoint call failed", "endpoint_id", ep.cfg.ID, "attempt", attempt, "error", err)

			if attempt < maxAttempts {
				delay := retry.BackoffWithJitter(attempt, c.retry.BackoffBase, c.retry.BackoffCap, 2.0)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
	}

	if !sawNonEmptyFailure {
		return &Response{Content: placeholderSentinel, FinishReason: "error"}, nil
	}
	return nil, errkind.Wrap(errkind.LLMUnavailable, lastErr)
}

func (c *Client) callEndpoint(ctx context.Context, ep *endpointClient, req Request) (*Response, error) {
	model := ep.cfg.DefaultModel
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	raw, err := ep.wire.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(raw.Choices) == 0 {
		return nil, errEmptyContent
	}

	choice := raw.Choices[0]
	content := ep.adapter.ExtractContent(choice.Message.Content)
	if content == "" && len(choice.Message.ToolCalls) == 0 {
		return nil, errEmptyContent
	}

	return &Response{
		Content:      content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
		ToolCalls: convertToolCalls(choice.Message.ToolCalls),
	}, nil
}

func convertMessages(in []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func convertTools(in []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func convertToolCalls(in []openai.ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(in))
	for _, tc := range in {
		out = append(out, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

// classifyOpenAIError maps a go-openai error to an *errkind.Error: 4xx
// becomes LLMBadRequest (non-retryable), everything else LLMTransient.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errkind.Wrap(errkind.ClassifyHTTPStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errkind.Wrap(errkind.ClassifyHTTPStatus(reqErr.HTTPStatusCode), err)
	}
	return errkind.Wrap(errkind.ClassifyLLMError(err), err)
}
