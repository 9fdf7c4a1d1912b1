// Package errkind defines the closed set of error kinds shared across the
// orchestrator's components, and the classification helpers that assign an
// arbitrary error to one of them by pattern-matching text and type, in the
// same spirit as the agent package's classifyToolError/classifyProviderError
// helpers.
package errkind

import (
	"errors"
	"strings"
)

// Kind is one of the ten recognized error categories. Only PolicyViolation,
// LLMBadRequest, and InternalError propagate out of a task as a failure;
// the rest are absorbed into workflow state and influence routing instead.
type Kind string

const (
	PolicyViolation    Kind = "policy_violation"
	ToolFailure        Kind = "tool_failure"
	LLMTransient       Kind = "llm_transient"
	LLMUnavailable     Kind = "llm_unavailable"
	LLMBadRequest      Kind = "llm_bad_request"
	ParseFailure       Kind = "parse_failure"
	IterationExhausted Kind = "iteration_exhausted"
	RecursionExhausted Kind = "recursion_exhausted"
	SubAgentFailure    Kind = "sub_agent_failure"
	InternalError      Kind = "internal_error"
)

// Propagates reports whether a failure of this kind should terminate the
// enclosing task rather than be absorbed into workflow state.
func (k Kind) Propagates() bool {
	switch k {
	case PolicyViolation, LLMBadRequest, InternalError:
		return true
	default:
		return false
	}
}

// Error pairs a Kind with the underlying cause, carrying enough context for
// the terminal-failure message format spec.md §7 requires: kind, reason,
// and (by the caller, who has it) a diagnostic excerpt.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return string(e.Kind) + ": " + e.Reason
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: cause.Error(), Cause: cause}
}

// As reports whether err is (or wraps) an *Error, and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassifyHTTPStatus maps an HTTP status code to LLMBadRequest (4xx) or
// LLMTransient (5xx); any other code is treated as transient too, since the
// caller only invokes this on a non-2xx response.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status >= 400 && status < 500:
		return LLMBadRequest
	case status >= 500:
		return LLMTransient
	default:
		return LLMTransient
	}
}

// ClassifyLLMError pattern-matches a transport-level error (no HTTP status
// available, e.g. a dial failure or context deadline) into LLMTransient vs
// LLMBadRequest, mirroring classifyProviderError's approach.
func ClassifyLLMError(err error) Kind {
	if err == nil {
		return LLMTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid") && (strings.Contains(msg, "api key") || strings.Contains(msg, "request")):
		return LLMBadRequest
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return LLMBadRequest
	case strings.Contains(msg, "context deadline") || strings.Contains(msg, "timeout"):
		return LLMTransient
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return LLMTransient
	default:
		return LLMTransient
	}
}
