package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/posqueue/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Queue         QueueService
	Engine        SyncService
	Status        StatusSource
	Connectivity  ConnectivityPusher
	Store         Pinger
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer // nil hides /metrics
	APIToken      string
	RetentionDays int
	CORSConfig    config.CORSConfig
	Replay        customMW.ReplayStore // nil keeps enqueue replays in memory
	ReplayTTL     time.Duration        // zero means 24h
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing("posqueue-api"))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyHeader},
		ExposedHeaders:   []string{customMW.ReplayedHeader},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	replay := deps.Replay
	if replay == nil {
		replay = customMW.NewMemoryReplayStore()
	}
	replayTTL := deps.ReplayTTL
	if replayTTL <= 0 {
		replayTTL = 24 * time.Hour
	}

	healthH := NewHealthController(deps.Store)
	queueH := NewQueueController(deps.Queue, deps.RetentionDays)
	syncH := NewSyncController(deps.Engine)
	statusH := NewStatusController(deps.Status, deps.Connectivity)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireToken(deps.APIToken))

		// Long-lived stream, kept out of the request timeout.
		r.Get("/status/events", statusH.Events)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Get("/status", statusH.Status)
			r.Put("/connectivity", statusH.SetConnectivity)

			// Queue
			r.With(customMW.Idempotency(replay, replayTTL)).Post("/transactions", queueH.Enqueue)
			r.Get("/transactions", queueH.List)
			r.Get("/transactions/{id}", queueH.Get)
			r.Delete("/transactions/{id}", queueH.Delete)
			r.Post("/transactions/{id}/reset", syncH.Reset)
			r.Post("/cleanup", queueH.Cleanup)

			// Sync
			r.Post("/sync", syncH.Sync)
			r.Post("/retry-failed", syncH.RetryFailed)
		})
	})

	return r
}

// NewServer wraps handler with the configured timeouts.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
