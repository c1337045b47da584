// Command h51worker runs the asset_worker process: a population controller
// that spawns Worker instances up to a configured maximum based on queue
// depth and host headroom, each running the claim/execute/publish loop
// described in SPEC_FULL §4.7.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/h51assets/h51/internal/analyzers"
	"github.com/h51assets/h51/internal/eventbus"
	"github.com/h51assets/h51/internal/queue/redisqueue"
	"github.com/h51assets/h51/internal/registry"
	"github.com/h51assets/h51/internal/store"
	"github.com/h51assets/h51/internal/transforms"
	"github.com/h51assets/h51/internal/worker"
	"github.com/h51assets/h51/pkg/config"
	"github.com/h51assets/h51/pkg/version"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	env := flag.String("env", "", "unused, accepted for parity with the original CLI surface")
	idleLifespan := flag.Int("idle-lifespan", 0, "seconds of continuous idle time before a worker exits (0 = use the configured limits.idle_lifespan)")
	maxWorkers := flag.Int("max-workers", 0, "maximum concurrently running workers (overrides config default of 8)")
	configPath := flag.String("config", "", "path to a YAML config file")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	redisAddr := flag.String("redis-addr", "", "Redis address (overrides config/env)")
	flag.Parse()
	_ = env

	if *showVersion {
		log.Printf("h51worker: %s", version.FullVersion())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}

	logger := logging.New("h51worker", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New("h51worker")

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	reg := registry.New()
	analyzers.RegisterAll(reg)
	transforms.RegisterAll(reg)

	accounts := store.NewAccountStore(db)
	assets := store.NewAssetStore(db)
	stats := store.NewStatsStore(db)
	q := redisqueue.New(rdb)
	bus := eventbus.New(rdb)
	notifier := worker.NewNotifier(nil, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "event bus reader exited", err, nil)
		}
	}()

	deps := worker.Deps{
		Queue:    q,
		Registry: reg,
		Accounts: accounts,
		Assets:   assets,
		Stats:    stats,
		Events:   bus,
		Notifier: notifier,
		Backend:  cfg.Backend,
		Logger:   logger,
		Metrics:  m,
	}

	popCfg := worker.PopulationConfig{MaxWorkers: *maxWorkers}
	lifespan := time.Duration(*idleLifespan) * time.Second
	if lifespan == 0 {
		lifespan = cfg.Limits.IdleLifespan
	}

	var pop *worker.Population
	spawn := func(spawnCtx context.Context, _ time.Duration) {
		w := worker.New(deps)
		w.IdleLifespan = lifespan
		go func() {
			w.Run(spawnCtx)
			if pop != nil {
				pop.WorkerExited()
			}
		}()
	}
	pop = worker.NewPopulation(popCfg, q, spawn, logger, m)

	go pop.Run(ctx)

	log.Printf("h51worker population controller running (max_workers=%d)", popCfg.MaxWorkers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
