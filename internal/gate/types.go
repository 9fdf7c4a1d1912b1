// Package gate implements the Tool Safety Gate: the policy check every
// filesystem or shell operation must pass before it is allowed to run.
package gate

import "fmt"

// ViolationKind is the closed set of reasons a Gate can refuse an operation.
type ViolationKind string

const (
	ViolationPathEscape     ViolationKind = "path_escape"
	ViolationProtectedPath  ViolationKind = "protected_path"
	ViolationDeniedCommand  ViolationKind = "denied_command"
	ViolationNotAllowlisted ViolationKind = "not_allowlisted"
)

// Violation is a typed, non-retryable policy rejection.
type Violation struct {
	Kind    ViolationKind
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

func newViolation(kind ViolationKind, format string, args ...any) *Violation {
	return &Violation{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsViolation reports whether err is (or wraps) a *Violation.
func AsViolation(err error) (*Violation, bool) {
	v, ok := err.(*Violation)
	return v, ok
}

// Mode describes the kind of filesystem access being requested.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Policy is the configurable document the Gate evaluates against. The zero
// value is a permissive policy (Enabled=false means no checks run, matching
// spec.md's "enabled: bool — master switch").
type Policy struct {
	Enabled bool

	// CommandAllowlist/CommandDenylist are ordered prefix/pattern lists.
	// The denylist is evaluated first; if it is non-empty and matches, the
	// command is refused outright. If the allowlist is non-empty, the
	// command must match one of its entries to be admitted.
	CommandAllowlist []string
	CommandDenylist  []string

	// ProtectedFiles is an exact-path set; writes to these paths are
	// forbidden regardless of allow/deny rules.
	ProtectedFiles []string

	// ProtectedPatterns is a glob set; writes matching these patterns are
	// forbidden.
	ProtectedPatterns []string
}
