package worker

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/h51assets/h51/internal/queue"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

// PopulationConfig bounds the controller's spawn decisions (§4.7's
// "external controller starts up to a configured maximum based on queue
// depth").
type PopulationConfig struct {
	MaxWorkers      int
	MaxCPUPercent   float64
	MaxMemPercent   float64
	CheckInterval   time.Duration
	TasksPerWorker  int
}

func (c PopulationConfig) withDefaults() PopulationConfig {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.MaxCPUPercent <= 0 {
		c.MaxCPUPercent = 85
	}
	if c.MaxMemPercent <= 0 {
		c.MaxMemPercent = 85
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.TasksPerWorker <= 0 {
		c.TasksPerWorker = 5
	}
	return c
}

// Population is the worker pool's controller: it periodically reads queue
// depth and host resource usage and decides how many Worker instances
// should be running, spawning more (up to cfg.MaxWorkers) when there is
// slack capacity and pending work, and never spawning past the host's
// CPU/memory ceiling.
type Population struct {
	cfg     PopulationConfig
	queue   queue.Queue
	spawn   func(ctx context.Context, idleLifespan time.Duration)
	logger  *logging.Logger
	metrics *metrics.Metrics

	active int
}

// NewPopulation constructs a controller that calls spawn once per worker it
// decides to start. spawn is expected to run the worker in its own
// goroutine and return promptly.
func NewPopulation(cfg PopulationConfig, q queue.Queue, spawn func(ctx context.Context, idleLifespan time.Duration), logger *logging.Logger, m *metrics.Metrics) *Population {
	return &Population{cfg: cfg.withDefaults(), queue: q, spawn: spawn, logger: logger, metrics: m}
}

// Run drives the controller's periodic check until ctx is cancelled.
func (p *Population) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkAndSpawn(ctx)
		}
	}
}

func (p *Population) checkAndSpawn(ctx context.Context) {
	pending, err := p.queue.PendingIDs(ctx)
	if err != nil {
		p.logger.LogTaskEvent(ctx, "", "population_queue_check_failed", err)
		return
	}
	p.metrics.SetQueueDepth(len(pending))

	if p.active >= p.cfg.MaxWorkers {
		return
	}
	desired := (len(pending) + p.cfg.TasksPerWorker - 1) / p.cfg.TasksPerWorker
	if desired <= p.active {
		return
	}

	if !p.hasHeadroom(ctx) {
		return
	}

	toSpawn := desired - p.active
	if p.active+toSpawn > p.cfg.MaxWorkers {
		toSpawn = p.cfg.MaxWorkers - p.active
	}
	for i := 0; i < toSpawn; i++ {
		p.active++
		p.metrics.SetWorkersActive(p.active)
		p.spawn(ctx, 0)
	}
}

// hasHeadroom reports whether host CPU and memory usage are both under the
// configured ceilings, per §11's gopsutil-backed population decision.
func (p *Population) hasHeadroom(ctx context.Context) bool {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return true
	}
	if percents[0] > p.cfg.MaxCPUPercent {
		return false
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return true
	}
	return vm.UsedPercent <= p.cfg.MaxMemPercent
}

// WorkerExited decrements the active count when a worker's idle lifespan
// elapses and it returns, so the controller can spawn a replacement.
func (p *Population) WorkerExited() {
	if p.active > 0 {
		p.active--
	}
	p.metrics.SetWorkersActive(p.active)
}
