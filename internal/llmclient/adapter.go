package llmclient

import "strings"

// adapter extracts the user-visible content from a provider's raw response,
// per spec §4.C: each model family may wrap or hide chain-of-thought
// differently. The request-formatting side needs no per-family variation
// since every endpoint speaks the same OpenAI wire format; only response
// extraction differs.
type adapter interface {
	ExtractContent(raw string) string
}

type passthroughAdapter struct{}

func (passthroughAdapter) ExtractContent(raw string) string { return raw }

// deepseekR1Adapter hides chain-of-thought wrapped in <think>...</think> by
// default, surfacing only the content that follows it.
type deepseekR1Adapter struct{}

func (deepseekR1Adapter) ExtractContent(raw string) string {
	const openTag, closeTag = "<think>", "</think>"
	start := strings.Index(raw, openTag)
	if start == -1 {
		return raw
	}
	end := strings.Index(raw, closeTag)
	if end == -1 || end < start {
		return raw
	}
	return strings.TrimSpace(raw[end+len(closeTag):])
}

func adapterFor(name string) adapter {
	switch name {
	case "deepseek-r1":
		return deepseekR1Adapter{}
	default:
		// "openai", "qwen", "gpt-oss" all return plain content over the
		// OpenAI wire format with no extra wrapper to strip.
		return passthroughAdapter{}
	}
}
