package eventbus

import (
	"context"

	"github.com/haasonsaas/nexus/internal/pool"
)

// PoolSink adapts a Bus to the pool package's EventSink interface so
// sub-agent task_start/code_chunk/task_complete events reach the same
// stream as the workflow engine's own events.
type PoolSink struct {
	bus    *Bus
	ctx    context.Context
	taskID string
}

// NewPoolSink builds a PoolSink publishing onto bus under taskID for the
// lifetime of ctx.
func NewPoolSink(ctx context.Context, bus *Bus, taskID string) *PoolSink {
	return &PoolSink{bus: bus, ctx: ctx, taskID: taskID}
}

func (s *PoolSink) Emit(e pool.Event) {
	s.bus.Publish(s.ctx, Event{
		Type:   poolEventType(e.Type),
		TaskID: s.taskID,
		Data: map[string]any{
			"subtask_id": e.TaskID,
			"content":    e.Data,
		},
	})
}

func poolEventType(t pool.EventType) Type {
	switch t {
	case pool.EventTaskStart:
		return TypeNodeExecuted
	case pool.EventTaskComplete:
		return TypeTaskComplete
	default:
		return TypeLLMResponse
	}
}
