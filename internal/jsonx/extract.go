// Package jsonx implements the orchestrator's lenient JSON-extraction
// policy for parsing structured data out of free-form LLM responses.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkBlock   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencedBlock  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	pyLiteralTrue  = regexp.MustCompile(`\bTrue\b`)
	pyLiteralFalse = regexp.MustCompile(`\bFalse\b`)
	pyLiteralNone  = regexp.MustCompile(`\bNone\b`)
)

// ErrNoJSON is returned when no JSON object or array could be located.
var ErrNoJSON = fmt.Errorf("jsonx: no JSON value found in response")

// Extract applies the five-step lenient extraction policy and unmarshals
// the result into v: strip reasoning wrappers, try a direct parse, fall
// back to the first balanced brace/bracket span or a fenced code block,
// apply light textual fixes, and finally give up with a preview of the
// raw text in the returned error.
func Extract(raw string, v any) error {
	text := strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrNoJSON)
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	candidates := candidateSpans(text)
	var lastErr error
	for _, c := range candidates {
		fixed := applyFixes(c)
		if err := json.Unmarshal([]byte(fixed), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v; preview: %q", ErrNoJSON, lastErr, preview)
	}
	return fmt.Errorf("%w: preview: %q", ErrNoJSON, preview)
}

// candidateSpans returns, in order of preference, fenced-code-block
// contents followed by the first balanced {...} or [...] span.
func candidateSpans(text string) []string {
	var out []string
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if span := firstBalancedSpan(text); span != "" {
		out = append(out, span)
	}
	return out
}

// firstBalancedSpan scans for the first top-level balanced {...} or [...],
// respecting string literals so braces inside strings don't unbalance it.
func firstBalancedSpan(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open, close = text[i], closing(text[i])
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func closing(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

// applyFixes removes trailing commas and swaps Python-style literals for
// their JSON equivalents; it does not attempt to escape bare newlines
// inside string values precisely, since that requires a string-aware
// scanner the candidate span extraction already performs.
func applyFixes(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = pyLiteralTrue.ReplaceAllString(s, "true")
	s = pyLiteralFalse.ReplaceAllString(s, "false")
	s = pyLiteralNone.ReplaceAllString(s, "null")
	return s
}
