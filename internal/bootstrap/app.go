package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	queueApp "github.com/cassiomorais/posqueue/internal/application/queue"
	"github.com/cassiomorais/posqueue/internal/application/status"
	"github.com/cassiomorais/posqueue/internal/application/syncengine"
	"github.com/cassiomorais/posqueue/internal/connectivity"
	"github.com/cassiomorais/posqueue/internal/controller"
	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/cassiomorais/posqueue/internal/infrastructure/credentials"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/posqueue/internal/infrastructure/redis"
	"github.com/cassiomorais/posqueue/internal/infrastructure/transport"
	"github.com/cassiomorais/posqueue/internal/repository/memory"
	"github.com/cassiomorais/posqueue/internal/repository/postgres"
	"github.com/cassiomorais/posqueue/internal/repository/sqlite"
	"github.com/cassiomorais/posqueue/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName      = "posqueue"
	metricsNamespace = "posqueue"

	// Read on every submission, so a rotated token is picked up without a restart.
	bearerTokenEnv = "POSQUEUE_BEARER_TOKEN"
	csrfTokenEnv   = "POSQUEUE_CSRF"
)

// App is one running terminal queue: store, monitor, engine and control API.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Status   *status.Facade
	Monitor  *connectivity.Monitor
	Store    *memory.Fallback
	Manager  *queueApp.Manager
	Engine   *syncengine.Engine
	Watcher  connectivity.Watcher
	Server   *http.Server

	redis          *redis.Client
	shutdownTracer func(context.Context) error
	unsubscribe    []func()
}

// New wires every component from cfg. A store that cannot be opened is not
// fatal: the queue runs in memory and the status reports it as degraded.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Status: status.NewFacade()}

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracer(serviceName, cfg.InstanceID, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.shutdownTracer = shutdown
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Metrics = observability.NewMetrics(metricsNamespace, app.Registry)
	}

	primary, err := OpenStore(ctx, cfg, observability.Component(logger, "store"))
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.Store.Driver).Msg("Durable store unavailable, queue kept in memory")
		primary = memory.NewStore()
		app.markDegraded()
	}
	app.Store = memory.NewFallback(primary, func(cause error) {
		logger.Error().Err(cause).Msg("Durable store failed, switched to memory")
		app.markDegraded()
	})

	app.Monitor, app.Watcher = newConnectivity(cfg.Connectivity, logger)
	app.Status.SetOnline(app.Monitor.IsOnline())
	app.Metrics.SetOnline(app.Monitor.IsOnline())
	app.unsubscribe = append(app.unsubscribe, app.Monitor.OnTransition(func(online bool) {
		app.Status.SetOnline(online)
		app.Metrics.SetOnline(online)
	}))

	app.Manager = queueApp.NewManager(app.Store,
		queueApp.WithStatus(app.Status),
		queueApp.WithMetrics(app.Metrics),
		queueApp.WithLogger(observability.Component(logger, "queue")),
	)

	submitter, err := transport.NewClient(transport.Config{
		APIBase:          cfg.Remote.APIBase,
		Timeout:          cfg.Remote.Timeout,
		CSRFHeader:       cfg.Remote.CSRFHeader,
		BreakerThreshold: cfg.Remote.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.Remote.CircuitBreakerTimeout,
	},
		transport.WithMetrics(app.Metrics),
		transport.WithLogger(observability.Component(logger, "transport")),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	opts := []syncengine.Option{
		syncengine.WithCSRF(credentials.FromConfig(cfg.Auth.CSRFToken, cfg.Auth.CSRFTokenFile, csrfTokenEnv)),
		syncengine.WithStatus(app.Status),
		syncengine.WithMetrics(app.Metrics),
		syncengine.WithLogger(observability.Component(logger, "syncengine")),
		syncengine.WithMaxRetries(cfg.Sync.MaxRetries),
		syncengine.WithSyncInterval(cfg.Sync.Interval),
		syncengine.WithCleanup(app.Manager, cfg.Cleanup.OlderThanDays, cfg.Cleanup.Interval),
	}
	if cfg.Sync.Lease == config.LeaseRedis {
		client, err := infraRedis.NewClient(ctx, &cfg.Redis, observability.Component(logger, "redis"))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.redis = client
		opts = append(opts, syncengine.WithLease(
			infraRedis.NewDrainLease(client, cfg.Sync.LeaseKey, cfg.InstanceID, cfg.Sync.LeaseTTL),
		))
		logger.Info().Str("key", cfg.Sync.LeaseKey).Msg("Drain lease enabled")
	}

	bearer := credentials.FromConfig(cfg.Auth.Token, cfg.Auth.TokenFile, bearerTokenEnv)
	app.Engine = syncengine.New(app.Store, submitter, app.Monitor, bearer, opts...)
	app.unsubscribe = append(app.unsubscribe, app.Manager.OnEnqueued(app.Engine.SubmitEnqueued))

	recovered, err := app.Engine.Recover(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to recover interrupted submissions")
	} else if recovered > 0 {
		logger.Warn().Int("recovered", recovered).Msg("Interrupted submissions returned to pending")
	}
	app.Manager.RefreshStatus(ctx)

	deps := controller.RouterDeps{
		Queue:         app.Manager,
		Engine:        app.Engine,
		Status:        app.Status,
		Store:         readiness{store: app.Store, status: app.Status},
		Metrics:       app.Metrics,
		APIToken:      cfg.Server.APIToken,
		RetentionDays: cfg.Cleanup.OlderThanDays,
		CORSConfig:    cfg.Server.CORS,
	}
	if manual, ok := app.Watcher.(*connectivity.ManualWatcher); ok {
		deps.Connectivity = manual
	}
	if app.Registry != nil {
		deps.Gatherer = app.Registry
	}
	if app.redis != nil {
		deps.Replay = infraRedis.NewReplayStore(app.redis, cfg.InstanceID)
	}
	app.Server = controller.NewServer(cfg.Server, controller.NewRouter(deps))

	app.unsubscribe = append(app.unsubscribe, app.Status.Subscribe(func(s status.Snapshot) {
		logger.Debug().
			Bool("online", s.Online).
			Int("pending", s.PendingCount).
			Bool("syncing", s.Syncing).
			Bool("degraded", s.Degraded).
			Str("message", s.LastMessage).
			Msg("status changed")
	}))

	return app, nil
}

// Run serves the control API and drives the engine and the connectivity
// watcher until ctx is done, then drains them within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", a.Server.Addr).Msg("Starting control API")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("Shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("Control API forced to shutdown")
		}
		return nil
	})

	g.Go(func() error {
		return a.Engine.Run(gctx)
	})

	g.Go(func() error {
		if err := connectivity.Run(gctx, a.Watcher, a.Monitor); err != nil {
			// The queue still works offline; the monitor keeps its last state.
			a.Logger.Error().Err(err).Msg("Connectivity watcher stopped")
		}
		return nil
	})

	return g.Wait()
}

// Close releases the store, Redis and the tracer. It is safe on a
// partially built App.
func (a *App) Close() {
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	if a.Engine != nil {
		a.Engine.Wait()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close store")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to flush traces")
		}
	}
}

func (a *App) markDegraded() {
	a.Status.SetDegraded(true)
	a.Status.SetMessage("Durable store unavailable, transactions are kept in memory only")
	a.Metrics.SetDegraded(true)
}

// OpenStore opens and migrates the configured durable store, retrying with
// backoff before giving up.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (domainQueue.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn().Msg("Memory store configured, transactions will not survive a restart")
		return memory.NewStore(), nil
	}

	attempts := cfg.Store.OpenRetries
	if attempts == 0 {
		attempts = 1
	}
	return retry.DoWithResult(ctx, retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: cfg.Store.OpenRetryDelay,
		MaxDelay:     10 * cfg.Store.OpenRetryDelay,
		OnRetry: func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Str("driver", cfg.Store.Driver).Msg("store not available, retrying")
		},
	}, func() (domainQueue.Store, error) {
		return openDurable(ctx, cfg)
	})
}

func openDurable(ctx context.Context, cfg *config.Config) (domainQueue.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		return sqlite.Open(ctx, cfg.Store.Path, cfg.Store.BusyTimeout)
	case config.StoreDriverPostgres:
		if err := postgres.Migrate(cfg.Database.DatabaseURL()); err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newConnectivity(cfg config.ConnectivityConfig, logger zerolog.Logger) (*connectivity.Monitor, connectivity.Watcher) {
	log := observability.Component(logger, "connectivity")
	initial := cfg.AssumeOnline

	var watcher connectivity.Watcher
	switch cfg.Source {
	case config.ConnectivityManual:
		watcher = connectivity.NewManualWatcher()
	default:
		watcher = connectivity.NewNetlinkWatcher(log)
		if routable, err := connectivity.HasRoutableInterface(); err == nil {
			initial = initial || routable
		}
	}
	return connectivity.NewMonitor(initial, connectivity.WithLogger(log)), watcher
}

// readiness fails while the queue is served from memory.
type readiness struct {
	store  *memory.Fallback
	status *status.Facade
}

func (r readiness) Ping(ctx context.Context) error {
	if r.status.Snapshot().Degraded {
		return domainErrors.ErrStoreUnavailable
	}
	return r.store.Ping(ctx)
}
