// Package worker implements the asset_worker process described in
// SPEC_FULL §4.7: a polling state machine that claims tasks from the queue,
// runs the matching pipeline (§4.8 analyzer, §4.9 transform), publishes a
// terminal event, and best-effort notifies the task's webhook, grounded on
// the teacher's ticker/select background-worker loops (e.g.
// services/automation/automation_service.go's runScheduler).
package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/eventbus"
	"github.com/h51assets/h51/internal/queue"
	"github.com/h51assets/h51/internal/registry"
	"github.com/h51assets/h51/internal/store"
	"github.com/h51assets/h51/pkg/config"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

// State is one phase of the worker's state machine (§4.7).
type State string

const (
	StateInitializing State = "initializing"
	StateIdle         State = "idle"
	StateClaiming     State = "claiming"
	StateExecuting    State = "executing"
	StatePublishing   State = "publishing"
	StateErroring     State = "erroring"
)

const (
	pollInterval      = 500 * time.Millisecond
	lockTTL           = 30 * time.Second
	heartbeatInterval = lockTTL / 3
)

// Deps bundles everything a Worker needs to run a claim/execute cycle.
type Deps struct {
	Queue     queue.Queue
	Registry  *registry.Registry
	Accounts  *store.AccountStore
	Assets    *store.AssetStore
	Stats     *store.StatsStore
	Events    eventbus.Publisher
	Notifier  *Notifier
	Backend   config.BackendConfig
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
}

// Worker runs the claim -> execute -> publish loop for one worker identity.
// Its IdleLifespan, once non-zero, makes Run return after that much
// continuous idle time, letting the population controller cycle workers
// (§4.7).
type Worker struct {
	id           string
	deps         Deps
	IdleLifespan time.Duration

	state State
}

// New constructs a Worker with a fresh id.
func New(deps Deps) *Worker {
	return &Worker{
		id:    domain.NewWorkerID(),
		deps:  deps,
		state: StateInitializing,
	}
}

// ID returns the worker's identity, the string stored in a claimed task's
// assigned_to field.
func (w *Worker) ID() string { return w.id }

// State returns the worker's current state machine phase.
func (w *Worker) State() State { return w.state }

// Run drives the worker until ctx is cancelled or IdleLifespan elapses with
// no work claimed.
func (w *Worker) Run(ctx context.Context) {
	w.state = StateIdle
	idleSince := time.Now()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed := w.tick(ctx)
			if claimed {
				idleSince = time.Now()
			} else if w.IdleLifespan > 0 && time.Since(idleSince) >= w.IdleLifespan {
				w.state = StateIdle
				return
			}
		}
	}
}

// tick performs one claim attempt and, on success, runs the task to
// completion. It returns whether a task was claimed this tick.
func (w *Worker) tick(ctx context.Context) bool {
	w.state = StateClaiming
	task, ok := w.claimOne(ctx)
	w.state = StateIdle
	if !ok {
		return false
	}

	w.deps.Metrics.RecordTaskClaimed("asset_worker", string(task.Kind))
	w.execute(ctx, task)
	return true
}

// claimOne shuffles the pending task ids (§4.3 starvation mitigation) and
// attempts to claim each in turn until one succeeds or the list is
// exhausted.
func (w *Worker) claimOne(ctx context.Context) (*domain.Task, bool) {
	ids, err := w.deps.Queue.PendingIDs(ctx)
	if err != nil || len(ids) == 0 {
		return nil, false
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for _, id := range ids {
		if err := w.deps.Queue.Claim(ctx, id, w.id, lockTTL); err != nil {
			continue
		}
		task, err := w.deps.Queue.Get(ctx, id)
		if err != nil {
			// Malformed or vanished: publish the error event an awaiting
			// handler may be blocked on (§4.3/§4.7 step 3), then release
			// what we can and move on.
			w.publishTaskError(ctx, id, err)
			_ = w.deps.Queue.Delete(ctx, id)
			continue
		}
		return task, true
	}
	return nil, false
}

// execute runs task's pipeline under a heartbeat that refreshes the claim
// lock, publishing a terminal event and notifying the task's webhook
// regardless of outcome.
func (w *Worker) execute(parent context.Context, task *domain.Task) {
	w.state = StateExecuting

	execCtx, cancel := context.WithCancel(parent)
	lost := make(chan struct{})
	go w.heartbeat(execCtx, task.ID, lost)

	start := time.Now()
	var runErr error
	select {
	case <-lost:
		runErr = queue.ErrClaimLost
	default:
		runErr = w.runPipeline(execCtx, task)
	}
	cancel()

	if runErr != nil {
		w.state = StateErroring
		w.deps.Logger.LogTaskEvent(parent, task.ID, "error", runErr)
		w.deps.Metrics.RecordTaskErrored("asset_worker", string(task.Kind), time.Since(start))
	} else {
		w.state = StatePublishing
		w.deps.Logger.LogTaskEvent(parent, task.ID, "completed", nil)
		w.deps.Metrics.RecordTaskCompleted("asset_worker", string(task.Kind), time.Since(start))
	}

	w.publishAndNotify(parent, task, runErr)

	// ErrClaimLost means another worker may already own this task; only the
	// lock owner that still holds it should delete the record.
	if !isClaimLost(runErr) {
		_ = w.deps.Queue.Delete(parent, task.ID)
	}
	w.state = StateIdle
}

func isClaimLost(err error) bool { return err == queue.ErrClaimLost }

// publishTaskError announces a task_error for a task id that never made it
// to execute, e.g. one that failed to deserialize. Best-effort: a publish
// failure here is only logged, matching execute's handling of the same
// Events.Publish call.
func (w *Worker) publishTaskError(ctx context.Context, taskID string, cause error) {
	ev := domain.TaskEvent{TaskID: taskID, Type: domain.EventTaskError, Reason: cause.Error()}
	if err := w.deps.Events.Publish(ctx, ev); err != nil {
		w.deps.Logger.LogTaskEvent(ctx, taskID, "publish_failed", err)
	}
}

// heartbeat refreshes task id's lock every heartbeatInterval until ctx is
// cancelled or the lock is lost, in which case it closes lost and returns.
func (w *Worker) heartbeat(ctx context.Context, taskID string, lost chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.deps.Queue.Heartbeat(ctx, taskID, w.id, lockTTL); err != nil {
				close(lost)
				return
			}
		}
	}
}

func (w *Worker) runPipeline(ctx context.Context, task *domain.Task) error {
	switch task.Kind {
	case domain.TaskKindAnalyze:
		return w.runAnalyze(ctx, task)
	case domain.TaskKindGenerateVariation:
		return w.runTransform(ctx, task)
	default:
		return errUnknownTaskKind(task.Kind)
	}
}

func (w *Worker) publishAndNotify(ctx context.Context, task *domain.Task, runErr error) {
	ev := domain.TaskEvent{TaskID: task.ID, Type: domain.EventTaskCompleted}
	if runErr != nil {
		ev.Type = domain.EventTaskError
		ev.Reason = runErr.Error()
	}
	if err := w.deps.Events.Publish(ctx, ev); err != nil {
		w.deps.Logger.LogTaskEvent(ctx, task.ID, "publish_failed", err)
	}

	if task.NotificationURL != "" && w.deps.Notifier != nil {
		apiKey := ""
		if account, err := w.deps.Accounts.GetByID(ctx, task.AccountID); err == nil {
			apiKey = account.APIKey
		}
		w.deps.Notifier.Notify(ctx, task, ev, apiKey)
	}
}
