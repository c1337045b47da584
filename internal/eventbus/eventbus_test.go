package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/h51assets/h51/internal/domain"
)

func newTestBus(t *testing.T) (*Bus, context.CancelFunc) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	bus := New(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)
	// Give the subscriber goroutine a moment to attach before returning.
	time.Sleep(50 * time.Millisecond)
	return bus, cancel
}

func TestBusSubscribeAwaitPublish(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub := bus.Subscribe("task-1")
	defer bus.Unsubscribe(sub)

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(context.Background(), domain.TaskEvent{TaskID: "task-1", Type: domain.EventTaskCompleted})
	}()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	ev, err := bus.Await(ctx, sub)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ev.Type != domain.EventTaskCompleted {
		t.Fatalf("expected task_completed, got %q", ev.Type)
	}
}

func TestBusAwaitIgnoresNonTerminalEvents(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub := bus.Subscribe("task-2")
	defer bus.Unsubscribe(sub)

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(context.Background(), domain.TaskEvent{TaskID: "task-2", Type: domain.EventTaskStarted})
		time.Sleep(20 * time.Millisecond)
		bus.Publish(context.Background(), domain.TaskEvent{TaskID: "task-2", Type: domain.EventTaskError, Reason: "boom"})
	}()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	ev, err := bus.Await(ctx, sub)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ev.Type != domain.EventTaskError || ev.Reason != "boom" {
		t.Fatalf("unexpected terminal event: %+v", ev)
	}
}

func TestBusAwaitContextCancelled(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub := bus.Subscribe("task-3")
	defer bus.Unsubscribe(sub)

	ctx, done := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer done()
	_, err := bus.Await(ctx, sub)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
