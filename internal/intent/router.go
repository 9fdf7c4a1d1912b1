package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/jsonx"
	"github.com/haasonsaas/nexus/internal/llmclient"
)

const systemPrompt = `You are a task router. Classify the user's task into exactly one domain:
- coding: writing, fixing, or refactoring source code
- research: investigating, summarizing, or finding information
- data: analyzing datasets, CSVs, or structured data
- general: anything else

Respond with ONLY a JSON object of this shape, nothing else:
{"domain": "coding|research|data|general", "confidence": 0.0-1.0, "reasoning": "short explanation", "estimated_complexity": "simple|moderate|complex", "requires_sub_agents": true|false}`

var (
	codingKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(fix|implement|refactor|debug|bug|code|function)\b`),
		regexp.MustCompile(`\.(go|py|js|ts|java|rb|rs|c|cpp|h)\b`),
	}
	researchKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(research|summarize|find|investigate|search)\b`),
	}
	dataKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(analyze|dataset|data)\b`),
		regexp.MustCompile(`\.csv\b`),
	}
)

// Router classifies tasks into a Domain, preferring an LLM verdict and
// falling back to keyword heuristics when the LLM is unavailable or its
// confidence is too low.
type Router struct {
	client     *llmclient.Client
	threshold  float64
}

// New builds a Router. client may be nil, in which case every call falls
// straight through to the keyword heuristic.
func New(client *llmclient.Client) *Router {
	return &Router{client: client, threshold: DefaultConfidenceThreshold}
}

// Classify implements the classify(task) -> Classification contract. A
// non-empty domainOverride bypasses classification entirely.
func (r *Router) Classify(ctx context.Context, task string, domainOverride Domain) Classification {
	if domainOverride != "" {
		return Classification{
			Domain:     domainOverride,
			Confidence: 1.0,
			Reasoning:  "domain override supplied by caller",
		}
	}

	if r.client != nil {
		if c, ok := r.classifyViaLLM(ctx, task); ok && c.Confidence >= r.threshold {
			return c
		}
	}

	return r.classifyViaHeuristic(task)
}

func (r *Router) classifyViaLLM(ctx context.Context, task string) (Classification, bool) {
	resp, err := r.client.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: systemPrompt},
			{Role: llmclient.RoleUser, Content: task},
		},
		Temperature: 0.0,
		MaxTokens:   300,
	})
	if err != nil {
		return Classification{}, false
	}

	var c Classification
	if err := jsonx.Extract(resp.Content, &c); err != nil {
		return Classification{}, false
	}
	if !isValidDomain(c.Domain) {
		return Classification{}, false
	}
	return c, true
}

func (r *Router) classifyViaHeuristic(task string) Classification {
	lower := strings.ToLower(task)

	switch {
	case matchesAny(codingKeywords, lower):
		return heuristicResult(DomainCoding, "matched coding keywords")
	case matchesAny(researchKeywords, lower):
		return heuristicResult(DomainResearch, "matched research keywords")
	case matchesAny(dataKeywords, lower):
		return heuristicResult(DomainData, "matched data keywords")
	default:
		return heuristicResult(DomainGeneral, "no keyword match, default domain")
	}
}

func heuristicResult(d Domain, reason string) Classification {
	return Classification{
		Domain:              d,
		Confidence:          0.5,
		Reasoning:           reason,
		EstimatedComplexity: "moderate",
		RequiresSubAgents:   false,
	}
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func isValidDomain(d Domain) bool {
	switch d {
	case DomainCoding, DomainResearch, DomainData, DomainGeneral:
		return true
	default:
		return false
	}
}
