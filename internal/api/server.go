package api

import (
	"time"

	"github.com/h51assets/h51/internal/apilog"
	"github.com/h51assets/h51/internal/eventbus"
	"github.com/h51assets/h51/internal/queue"
	"github.com/h51assets/h51/internal/ratelimit"
	"github.com/h51assets/h51/internal/registry"
	"github.com/h51assets/h51/internal/store"
	"github.com/h51assets/h51/pkg/config"

	"github.com/h51assets/h51/infrastructure/cache"
	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
)

// accountCacheTTL bounds how stale an account's allow-list/rate-limit
// override can be after an admin edits it through the account, trading a
// little staleness for skipping a DB round trip on every authenticated
// request.
const accountCacheTTL = 30 * time.Second

// Server holds every dependency the HTTP handlers in this package need:
// the Postgres DAOs, the Redis-backed queue/event bus/rate limiter/api log
// ring, the capability registry, and the service-wide backend/limits
// config an account's settings fall back to.
type Server struct {
	Accounts    *store.AccountStore
	Assets      *store.AssetStore
	Stats       *store.StatsStore
	Queue       queue.Queue
	Events      interface {
		eventbus.Publisher
		eventbus.Subscriber
	}
	RateLimiter  *ratelimit.Limiter
	APILog       *apilog.Ring
	Registry     *registry.Registry
	Cfg          *config.Config
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	accountCache *cache.Cache
}

// New constructs a Server from its dependencies.
func New(
	accounts *store.AccountStore,
	assets *store.AssetStore,
	stats *store.StatsStore,
	q queue.Queue,
	events interface {
		eventbus.Publisher
		eventbus.Subscriber
	},
	rl *ratelimit.Limiter,
	apiLog *apilog.Ring,
	reg *registry.Registry,
	cfg *config.Config,
	logger *logging.Logger,
	m *metrics.Metrics,
) *Server {
	return &Server{
		Accounts:     accounts,
		Assets:       assets,
		Stats:        stats,
		Queue:        q,
		Events:       events,
		RateLimiter:  rl,
		APILog:       apiLog,
		Registry:     reg,
		Cfg:          cfg,
		Logger:       logger,
		Metrics:      m,
		accountCache: cache.NewCache(cache.CacheConfig{DefaultTTL: accountCacheTTL, MaxSize: 10000, CleanupInterval: 5 * time.Minute}),
	}
}
