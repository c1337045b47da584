// Command h51server runs the asset service's HTTP API front-end: account
// authentication, per-account rate limiting, and the document-CRUD
// handlers over uploads, analyzer/transform task submission, and variation
// management (SPEC_FULL §4.6, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/h51assets/h51/internal/analyzers"
	"github.com/h51assets/h51/internal/api"
	"github.com/h51assets/h51/internal/apilog"
	"github.com/h51assets/h51/internal/eventbus"
	"github.com/h51assets/h51/internal/queue/redisqueue"
	"github.com/h51assets/h51/internal/ratelimit"
	"github.com/h51assets/h51/internal/registry"
	"github.com/h51assets/h51/internal/store"
	"github.com/h51assets/h51/internal/transforms"
	"github.com/h51assets/h51/pkg/config"
	"github.com/h51assets/h51/pkg/version"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	addr := flag.String("addr", "", "HTTP listen address (overrides config/env)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	redisAddr := flag.String("redis-addr", "", "Redis address (overrides config/env)")
	configPath := flag.String("config", "", "path to a YAML config file")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup")
	flag.Parse()

	if *showVersion {
		log.Printf("h51server: %s", version.FullVersion())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		host, port, splitErr := splitAddr(*addr)
		if splitErr != nil {
			log.Fatalf("invalid -addr %q: %v", *addr, splitErr)
		}
		cfg.Server.Host, cfg.Server.Port = host, port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}

	logger := logging.New("h51server", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New("h51server")

	if *runMigrations {
		if err := store.Migrate(cfg.Database, "file://migrations"); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

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
	rl := ratelimit.New(rdb)
	apiLog := apilog.New(rdb, cfg.Limits.APIMaxLogEntries, cfg.Limits.APILogRetention)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	go func() {
		if err := bus.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			logger.Error(rootCtx, "event bus reader exited", err, nil)
		}
	}()

	srv := api.New(accounts, assets, stats, q, bus, rl, apiLog, reg, cfg, logger, m)

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/", srv.NewRouter())

	c := cron.New()
	if _, err := c.AddFunc("@daily", func() { runDailyMaintenance(rootCtx, logger, assets, apiLog) }); err != nil {
		log.Fatalf("schedule daily maintenance: %v", err)
	}
	c.Start()
	defer c.Stop()

	listenAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      httpMux,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	go func() {
		log.Printf("h51server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

// runDailyMaintenance implements the daily purge + api-log-retention pass
// from §4.5/§9: delete up to 200 expired asset rows per run and drop api log
// entries past retention. Only the rows are deleted; the assets' primary and
// variation blobs are not removed from their backend.
func runDailyMaintenance(ctx context.Context, logger *logging.Logger, assets *store.AssetStore, apiLog *apilog.Ring) {
	const purgeBatchSize = 200
	expired, err := assets.ListExpired(ctx, purgeBatchSize)
	if err != nil {
		logger.Error(ctx, "list expired assets", err, nil)
	} else {
		for _, a := range expired {
			if err := assets.Delete(ctx, a.ID); err != nil {
				logger.Error(ctx, "delete expired asset row", err, map[string]interface{}{"asset_id": a.ID})
			}
		}
	}
	if err := apiLog.Trim(ctx); err != nil {
		logger.Error(ctx, "trim api logs", err, nil)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func splitAddr(addr string) (host string, port int, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("missing port")
	}
	host = addr[:idx]
	_, err = fmt.Sscanf(addr[idx+1:], "%d", &port)
	return host, port, err
}
