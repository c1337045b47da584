// Package queue defines the task queue contract used by the API front-end
// (to submit) and the worker (to claim, lock, and delete). Two
// implementations exist: redisqueue (production, Redis-backed per §4.3) and
// memqueue (an in-process test double sharing this interface, grounded on
// the teacher's fake-dependency pattern in infrastructure/testutil).
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/h51assets/h51/internal/domain"
)

// Sentinel errors matching the §4.3 error taxonomy.
var (
	// ErrClaimLost means the per-task lock expired mid-execution; the
	// worker must discard its result rather than publish completion.
	ErrClaimLost = errors.New("queue: claim lost")
	// ErrAlreadyClaimed means a concurrent claimant won the compare-and-set.
	ErrAlreadyClaimed = errors.New("queue: already claimed")
	// ErrNotFound means the task id has no record (already deleted, or
	// never existed).
	ErrNotFound = errors.New("queue: task not found")
	// ErrMalformedTask means the stored payload failed to deserialize.
	ErrMalformedTask = errors.New("queue: malformed task")
)

// Queue is the task queue's full contract.
type Queue interface {
	// Submit writes a new task record under its id with a monotonic
	// creation timestamp.
	Submit(ctx context.Context, task *domain.Task) error

	// PendingIDs returns the ids of tasks that are not yet assigned to a
	// worker. Callers must shuffle before selecting (§4.3 starvation
	// mitigation) — this method makes no ordering promise.
	PendingIDs(ctx context.Context) ([]string, error)

	// RunningIDs returns the ids of tasks currently assigned to a worker,
	// for monitoring (`assets monitor-tasks`).
	RunningIDs(ctx context.Context) ([]string, error)

	// Get loads a task record by id. Returns ErrNotFound if absent, or
	// ErrMalformedTask if the stored payload fails to deserialize (the
	// caller should still be able to Delete it).
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Claim atomically sets Task.AssignedTo from unset to workerID and
	// acquires the per-task execution lock with the given heartbeat TTL.
	// Returns ErrAlreadyClaimed if a concurrent claimant won.
	Claim(ctx context.Context, id, workerID string, lockTTL time.Duration) error

	// Heartbeat refreshes the per-task lock's TTL. Returns ErrClaimLost if
	// the lock has already expired or is held by a different worker.
	Heartbeat(ctx context.Context, id, workerID string, lockTTL time.Duration) error

	// Delete removes the task record and releases its lock.
	Delete(ctx context.Context, id string) error
}
