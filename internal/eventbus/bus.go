package eventbus

import (
	"context"
	"sync"
	"time"
)

// Bus is a bounded-capacity, blocking-backpressure event queue. Unlike the
// agent package's ChanSink, which drops events once its buffer fills, Bus
// blocks the publisher until the consumer drains space: event loss would
// hide a tool_executed or workflow_error from whatever is watching the
// stream, which matters more here than a slow publisher.
type Bus struct {
	ch chan Event

	mu       sync.Mutex
	finished map[string]bool
}

// New creates a Bus with the given buffer capacity. A capacity of 0 makes
// every Publish synchronous with a Subscribe-side receive.
func New(capacity int) *Bus {
	return &Bus{ch: make(chan Event, capacity), finished: map[string]bool{}}
}

// Publish enqueues an event, blocking if the buffer is full until space
// frees up or ctx is cancelled. Once a terminal event (workflow_complete or
// workflow_error) has been published for a task_id, further events for that
// same task_id are silently dropped: the stream for that task is closed.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	if b.finished[e.TaskID] {
		b.mu.Unlock()
		return
	}
	if e.Type.terminal() {
		b.finished[e.TaskID] = true
	}
	b.mu.Unlock()

	select {
	case b.ch <- e:
	case <-ctx.Done():
	}
}

// Events returns the consumer-side channel. There is a single shared
// channel per Bus; fan-out to multiple consumers is the caller's concern.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the underlying channel. Callers must ensure no further
// Publish calls occur afterward.
func (b *Bus) Close() {
	close(b.ch)
}

// Finished reports whether a terminal event has already been published for
// taskID.
func (b *Bus) Finished(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished[taskID]
}
