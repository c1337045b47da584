// Package eventbus implements the single broadcast channel of task
// lifecycle events described in SPEC_FULL §4.4, backed by Redis pub/sub
// (§11). API handlers must Subscribe before they enqueue a task so no
// completion event racing the subscribe call is ever missed (§5(b)).
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/h51assets/h51/internal/domain"
)

const channelName = "h51:events"

// Publisher is the subset of Bus/MemBus the worker needs to announce task
// lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event domain.TaskEvent) error
}

// Subscriber is the subset of Bus/MemBus the API front-end needs to await a
// task's terminal event.
type Subscriber interface {
	Subscribe(taskID string) *Subscription
	Unsubscribe(sub *Subscription)
	Await(ctx context.Context, sub *Subscription) (domain.TaskEvent, error)
}

// ErrConnectionLost is returned by Await when the bus's background reader
// terminates (e.g. Redis connection dropped) while a handler is waiting.
var ErrConnectionLost = errors.New("eventbus: connection lost")

// Bus is a Redis-backed publish/subscribe fan-out. A single background
// reader (Run) drains the Redis channel and dispatches to in-process
// subscribers, matching the "subscribe-before-enqueue primitive resolved by
// a single background reader" design in §9.
type Bus struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[string][]chan domain.TaskEvent
	// closed is closed when Run's reader loop exits, signalling
	// ErrConnectionLost to any still-waiting subscriber.
	closed chan struct{}
}

// New constructs a Bus over an existing redis client. Call Run in a
// background goroutine before any Subscribe/Await calls are made.
func New(rdb *redis.Client) *Bus {
	return &Bus{
		rdb:    rdb,
		subs:   map[string][]chan domain.TaskEvent{},
		closed: make(chan struct{}),
	}
}

// Publish broadcasts an event to every process subscribed to the bus.
func (b *Bus) Publish(ctx context.Context, event domain.TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, channelName, data).Err()
}

// Subscription is a handle to one task id's event stream.
type Subscription struct {
	taskID string
	C      chan domain.TaskEvent
}

// Subscribe registers interest in taskID's events. The caller must not
// enqueue the task until after Subscribe returns, and must call Unsubscribe
// when done to avoid leaking the channel.
func (b *Bus) Subscribe(taskID string) *Subscription {
	ch := make(chan domain.TaskEvent, 4)
	b.mu.Lock()
	b.subs[taskID] = append(b.subs[taskID], ch)
	b.mu.Unlock()
	return &Subscription{taskID: taskID, C: ch}
}

// Unsubscribe removes the subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := b.subs[sub.taskID]
	for i, c := range chans {
		if c == sub.C {
			b.subs[sub.taskID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.taskID]) == 0 {
		delete(b.subs, sub.taskID)
	}
}

// Await blocks on sub until a terminal event (task_completed or task_error)
// for its task id arrives, ctx is cancelled, or the bus's reader exits.
func (b *Bus) Await(ctx context.Context, sub *Subscription) (domain.TaskEvent, error) {
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == domain.EventTaskCompleted || ev.Type == domain.EventTaskError {
				return ev, nil
			}
			// task_started is non-terminal; keep waiting.
		case <-ctx.Done():
			return domain.TaskEvent{}, ctx.Err()
		case <-b.closed:
			return domain.TaskEvent{}, ErrConnectionLost
		}
	}
}

// Run drains the Redis subscription and fans events out to local
// subscribers until ctx is cancelled. Exactly one goroutine per process
// should run this.
func (b *Bus) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, channelName)
	defer pubsub.Close()
	defer close(b.closed)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrConnectionLost
			}
			var ev domain.TaskEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev domain.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.TaskID] {
		select {
		case ch <- ev:
		default:
			// Subscriber's buffer is full; drop rather than block the
			// single shared reader.
		}
	}
}
