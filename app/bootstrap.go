package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"
	"provision-svc/app/handlers"
	"provision-svc/app/logging"
	"provision-svc/app/metrics"
	"provision-svc/app/services"
	"provision-svc/storage/memory"
	"provision-svc/storage/postgres"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// App represents the application
type App struct {
	Config    *Config
	Storage   clients.StorageAdapter
	Tokens    *services.TokenService
	Scheduler *services.TaskScheduler
	Worker    *services.StatusWorker
	Applier   *services.StatusApplier
	Results   *services.ResultService
	Router    *gin.Engine

	logger zerolog.Logger
}

// Bootstrap initializes the application
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	logger := logging.WithComponent("bootstrap")

	if cfg.StoreDriver == services.StoreDriverPostgres && cfg.AutoMigrate {
		if err := postgres.RunMigrations(cfg.ConnString(), cfg.MigrationDir, false); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store, err := services.NewStorageFactory().Create(ctx, cfg.StoreDriver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if mem, ok := store.(*memory.Store); ok {
		seedNodes(mem, cfg.SeedNodes)
	}

	// Initialize services
	tokens := services.NewTokenService(cfg.TokenSecret, cfg.TokenExpirationSec)
	scheduler := services.NewTaskScheduler(cfg.SchedulerWorkers, cfg.RetryPolicy(), cfg.TaskTimeout, logging.WithComponent("scheduler"))
	applier := services.NewStatusApplier(store, logging.WithComponent("applier"))
	worker := services.NewStatusWorker(tokens, scheduler, applier, cfg.StatusInterval, logging.WithComponent("status-worker"))
	results := services.NewResultService(store)

	// Initialize HTTP handlers
	statusHandler := handlers.NewStatusHandler(worker, cfg.MaxBodyBytes, logging.WithComponent("status-handler"))
	resultHandler := handlers.NewResultHandler(results)
	healthHandler := handlers.NewHealthHandler(store)

	router := NewRouter(cfg.CORSOrigins, statusHandler, resultHandler, healthHandler)

	logger.Info().
		Str("store", cfg.StoreDriver).
		Int("workers", cfg.SchedulerWorkers).
		Dur("status_interval", cfg.StatusInterval).
		Msg("application initialized")

	return &App{
		Config:    cfg,
		Storage:   store,
		Tokens:    tokens,
		Scheduler: scheduler,
		Worker:    worker,
		Applier:   applier,
		Results:   results,
		Router:    router,
		logger:    logger,
	}, nil
}

// NewRouter configures the HTTP routes
func NewRouter(corsOrigins []string, statusHandler *handlers.StatusHandler, resultHandler *handlers.ResultHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware())

	// Health endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Machine status reports
	router.POST("/metadata/status", statusHandler.Submit)

	// Read-only operator API
	v1 := router.Group("/v1")
	v1.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	{
		v1.GET("/nodes", resultHandler.ListNodes)
		v1.GET("/nodes/:node_id/events", resultHandler.ListEvents)
		v1.GET("/nodes/:node_id/results", resultHandler.ListResults)
		v1.GET("/results/:id/data", resultHandler.GetResultData)
	}

	return router
}

// Run serves HTTP and processes status messages until ctx is done. On
// shutdown the server stops accepting reports first, queued mailboxes are
// dispatched, and the scheduler drains before the store is closed.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:           ":" + a.Config.ServerPort,
		Handler:        a.Router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	a.Scheduler.Start()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Worker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		a.runCleanupJob(workerCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("port", a.Config.ServerPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("server shutdown error")
	}

	stopWorker()
	wg.Wait()
	a.Scheduler.Stop()
	a.Storage.Close()
	a.logger.Info().Msg("shutdown complete")
	return runErr
}

// runCleanupJob periodically removes events older than the retention window
func (a *App) runCleanupJob(ctx context.Context) {
	if a.Config.EventRetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := a.Storage.CleanupOldEvents(cleanupCtx, a.Config.EventRetentionDays); err != nil {
				a.logger.Error().Err(err).Msg("cleanup job failed")
			}
			cancel()
		}
	}
}

func seedNodes(store *memory.Store, nodes []SeedNode) {
	for _, n := range nodes {
		node := domains.Node{
			NodeID:   n.NodeID,
			Hostname: n.Hostname,
			Status:   domains.NodeStatus(n.Status),
		}
		if n.Owner != "" {
			owner := n.Owner
			node.Owner = &owner
		}
		store.AddNode(node)
	}
}
