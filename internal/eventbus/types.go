// Package eventbus implements the streaming event bus that every workflow
// node, the intent router, and the sub-agent pool publish onto, and that a
// consumer (typically the CLI) drains to stream progress to the user.
package eventbus

import "time"

// Type is one of the closed set of event types producers may publish.
type Type string

const (
	TypeWorkflowStart    Type = "workflow_start"
	TypeClassification   Type = "classification"
	TypePlanCreated      Type = "plan_created"
	TypeActionDecided    Type = "action_decided"
	TypeToolExecuted     Type = "tool_executed"
	TypeLLMResponse      Type = "llm_response"
	TypeNodeExecuted     Type = "node_executed"
	TypeWorkflowComplete Type = "workflow_complete"
	TypeWorkflowError    Type = "workflow_error"
	TypeTaskComplete     Type = "task_complete"
)

// terminal reports whether t ends the event stream for a task: at most one
// terminal event may be published per task.
func (t Type) terminal() bool {
	switch t {
	case TypeWorkflowComplete, TypeWorkflowError:
		return true
	default:
		return false
	}
}

// Event is one entry on the bus. Payload shape varies by Type; callers type
// -assert or json-decode Data per the table in the package doc.
type Event struct {
	Type      Type
	TaskID    string
	Timestamp time.Time
	Data      map[string]any
}
