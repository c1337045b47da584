// Package memqueue is an in-process test double implementing
// internal/queue.Queue, grounded on the teacher's fake-dependency pattern
// (infrastructure/testutil) so worker and API tests can run without Redis.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/queue"
)

type entry struct {
	payload    []byte
	assignedTo string
	lockOwner  string
	lockExpiry time.Time
}

// Queue is a mutex-guarded in-memory Queue implementation.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty in-memory queue.
func New() *Queue {
	return &Queue{entries: map[string]*entry{}}
}

func (q *Queue) Submit(_ context.Context, task *domain.Task) error {
	task.CreatedAtUnix = time.Now().UTC().Unix()
	payload, err := task.Marshal()
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[task.ID] = &entry{payload: payload}
	return nil
}

func (q *Queue) PendingIDs(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for id, e := range q.entries {
		if e.assignedTo == "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (q *Queue) RunningIDs(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for id, e := range q.entries {
		if e.assignedTo != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (q *Queue) Get(_ context.Context, id string) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	task, err := domain.UnmarshalTask(e.payload)
	if err != nil {
		return nil, queue.ErrMalformedTask
	}
	task.AssignedTo = e.assignedTo
	return task, nil
}

func (q *Queue) Claim(_ context.Context, id, workerID string, lockTTL time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return queue.ErrNotFound
	}
	if e.assignedTo != "" {
		return queue.ErrAlreadyClaimed
	}
	e.assignedTo = workerID
	e.lockOwner = workerID
	e.lockExpiry = time.Now().Add(lockTTL)
	return nil
}

func (q *Queue) Heartbeat(_ context.Context, id, workerID string, lockTTL time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return queue.ErrClaimLost
	}
	if e.lockOwner != workerID || time.Now().After(e.lockExpiry) {
		return queue.ErrClaimLost
	}
	e.lockExpiry = time.Now().Add(lockTTL)
	return nil
}

func (q *Queue) Delete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	return nil
}
