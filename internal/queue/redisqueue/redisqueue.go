// Package redisqueue implements internal/queue.Queue on top of Redis,
// mirroring the hash + compare-and-set + heartbeat-lock discipline
// described in SPEC_FULL §4.3 and wired per §11 to go-redis/v8 the same
// way infrastructure/cache uses a keyed store.
package redisqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/queue"
)

const (
	keyIndex = "h51:tasks:index"
)

func taskKey(id string) string { return fmt.Sprintf("h51:task:%s", id) }
func lockKey(id string) string { return fmt.Sprintf("h51:task:%s:lock", id) }

// Queue is a Redis-backed implementation of queue.Queue.
type Queue struct {
	rdb *redis.Client
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Submit(ctx context.Context, task *domain.Task) error {
	task.CreatedAtUnix = time.Now().UTC().Unix()
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(task.ID), map[string]interface{}{
		"payload":    payload,
		"created_at": task.CreatedAtUnix,
	})
	pipe.SAdd(ctx, keyIndex, task.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) allIDs(ctx context.Context) ([]string, error) {
	return q.rdb.SMembers(ctx, keyIndex).Result()
}

func (q *Queue) PendingIDs(ctx context.Context) ([]string, error) {
	ids, err := q.allIDs(ctx)
	if err != nil {
		return nil, err
	}
	return q.filterByAssignment(ctx, ids, false)
}

func (q *Queue) RunningIDs(ctx context.Context) ([]string, error) {
	ids, err := q.allIDs(ctx)
	if err != nil {
		return nil, err
	}
	return q.filterByAssignment(ctx, ids, true)
}

func (q *Queue) filterByAssignment(ctx context.Context, ids []string, assigned bool) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := q.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, taskKey(id), "assigned_to")
	}
	_, _ = pipe.Exec(ctx) // individual HGet "nil" errors are expected and checked below

	var out []string
	for i, id := range ids {
		v, err := cmds[i].Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		has := err == nil && v != ""
		if has == assigned {
			out = append(out, id)
		}
	}
	return out, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.Task, error) {
	vals, err := q.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return nil, err
	}
	payload, ok := vals["payload"]
	if !ok {
		return nil, queue.ErrNotFound
	}
	task, err := domain.UnmarshalTask([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrMalformedTask, err)
	}
	if assignedTo, ok := vals["assigned_to"]; ok {
		task.AssignedTo = assignedTo
	}
	return task, nil
}

func (q *Queue) Claim(ctx context.Context, id, workerID string, lockTTL time.Duration) error {
	ok, err := q.rdb.HSetNX(ctx, taskKey(id), "assigned_to", workerID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return queue.ErrAlreadyClaimed
	}
	locked, err := q.rdb.SetNX(ctx, lockKey(id), workerID, lockTTL).Result()
	if err != nil {
		return err
	}
	if !locked {
		// Someone else's stale lock hasn't expired yet; back out the
		// assignment we just grabbed so the task stays claimable.
		q.rdb.HDel(ctx, taskKey(id), "assigned_to")
		return queue.ErrAlreadyClaimed
	}
	return nil
}

// heartbeatScript atomically refreshes the lock's TTL only if it is still
// held by the calling worker, returning 1 on success and 0 if the lock was
// lost (expired or stolen).
var heartbeatScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

func (q *Queue) Heartbeat(ctx context.Context, id, workerID string, lockTTL time.Duration) error {
	res, err := heartbeatScript.Run(ctx, q.rdb, []string{lockKey(id)}, workerID, lockTTL.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return queue.ErrClaimLost
	}
	return nil
}

func (q *Queue) Delete(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.Del(ctx, lockKey(id))
	pipe.SRem(ctx, keyIndex, id)
	_, err := pipe.Exec(ctx)
	return err
}
