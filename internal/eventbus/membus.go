package eventbus

import (
	"context"
	"sync"

	"github.com/h51assets/h51/internal/domain"
)

// MemBus is an in-process broadcast bus with the same Publish/Subscribe/
// Await shape as Bus, used by tests that exercise the API-worker handoff
// without Redis (grounded on the teacher's in-memory fake-dependency
// pattern, same rationale as queue/memqueue).
type MemBus struct {
	mu   sync.Mutex
	subs map[string][]chan domain.TaskEvent
}

// NewMem returns an empty in-process bus.
func NewMem() *MemBus {
	return &MemBus{subs: map[string][]chan domain.TaskEvent{}}
}

func (b *MemBus) Publish(_ context.Context, event domain.TaskEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[event.TaskID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemBus) Subscribe(taskID string) *Subscription {
	ch := make(chan domain.TaskEvent, 4)
	b.mu.Lock()
	b.subs[taskID] = append(b.subs[taskID], ch)
	b.mu.Unlock()
	return &Subscription{taskID: taskID, C: ch}
}

func (b *MemBus) Unsubscribe(sub *Subscription) {
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

func (b *MemBus) Await(ctx context.Context, sub *Subscription) (domain.TaskEvent, error) {
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == domain.EventTaskCompleted || ev.Type == domain.EventTaskError {
				return ev, nil
			}
		case <-ctx.Done():
			return domain.TaskEvent{}, ctx.Err()
		}
	}
}
