package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestBus_PublishAndReceive(t *testing.T) {
	b := New(4)
	b.Publish(context.Background(), Event{Type: TypeWorkflowStart, TaskID: "t1"})
	select {
	case e := <-b.Events():
		if e.Type != TypeWorkflowStart || e.TaskID != "t1" {
			t.Fatalf("got %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_DropsEventsAfterTerminal(t *testing.T) {
	b := New(4)
	ctx := context.Background()
	b.Publish(ctx, Event{Type: TypeWorkflowComplete, TaskID: "t1"})
	b.Publish(ctx, Event{Type: TypeNodeExecuted, TaskID: "t1"})

	if !b.Finished("t1") {
		t.Fatal("expected t1 to be finished")
	}
	select {
	case e := <-b.Events():
		if e.Type != TypeWorkflowComplete {
			t.Fatalf("expected only the terminal event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case e := <-b.Events():
		t.Fatalf("expected no further events for finished task, got %+v", e)
	default:
	}
}

func TestBus_BlocksWhenFullUntilContextCancelled(t *testing.T) {
	b := New(1)
	ctx := context.Background()
	b.Publish(ctx, Event{Type: TypeNodeExecuted, TaskID: "a"})

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Publish(cancelCtx, Event{Type: TypeNodeExecuted, TaskID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Publish to return once context deadline exceeded")
	}
}

func TestBus_OtherTasksUnaffectedByFinishedTask(t *testing.T) {
	b := New(4)
	ctx := context.Background()
	b.Publish(ctx, Event{Type: TypeWorkflowComplete, TaskID: "t1"})
	b.Publish(ctx, Event{Type: TypeWorkflowStart, TaskID: "t2"})

	<-b.Events() // t1's terminal event
	select {
	case e := <-b.Events():
		if e.TaskID != "t2" {
			t.Fatalf("expected t2's event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
