package redisqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/queue"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func sampleTask(id string) *domain.Task {
	return &domain.Task{
		ID:        id,
		Kind:      domain.TaskKindAnalyze,
		AccountID: "acct-1",
		AssetID:   "asset-1",
		Analyze:   &domain.AnalyzePayload{},
	}
}

func TestQueueSubmitGetAndPendingIDs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Submit(ctx, sampleTask("task-1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := q.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "task-1" || got.Kind != domain.TaskKindAnalyze {
		t.Fatalf("unexpected task: %+v", got)
	}

	pending, err := q.PendingIDs(ctx)
	if err != nil {
		t.Fatalf("PendingIDs: %v", err)
	}
	if len(pending) != 1 || pending[0] != "task-1" {
		t.Fatalf("expected 1 pending task, got %v", pending)
	}

	running, err := q.RunningIDs(ctx)
	if err != nil {
		t.Fatalf("RunningIDs: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("expected no running tasks yet, got %v", running)
	}
}

func TestQueueGetNotFound(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Get(context.Background(), "missing")
	if err != queue.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueClaimAndHeartbeat(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Submit(ctx, sampleTask("task-1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Claim(ctx, "task-1", "worker-1", time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	running, err := q.RunningIDs(ctx)
	if err != nil {
		t.Fatalf("RunningIDs: %v", err)
	}
	if len(running) != 1 || running[0] != "task-1" {
		t.Fatalf("expected task-1 to be running, got %v", running)
	}

	if err := q.Claim(ctx, "task-1", "worker-2", time.Minute); err != queue.ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed on a second claim, got %v", err)
	}

	if err := q.Heartbeat(ctx, "task-1", "worker-1", time.Minute); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := q.Heartbeat(ctx, "task-1", "worker-2", time.Minute); err != queue.ErrClaimLost {
		t.Fatalf("expected ErrClaimLost for the wrong worker, got %v", err)
	}
}

func TestQueueDelete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Submit(ctx, sampleTask("task-1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Delete(ctx, "task-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := q.Get(ctx, "task-1"); err != queue.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	pending, err := q.PendingIDs(ctx)
	if err != nil {
		t.Fatalf("PendingIDs: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending tasks after delete, got %v", pending)
	}
}
