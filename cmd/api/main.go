package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/rams-care-platform/cmd/mainconfig"
	"github.com/wolfman30/rams-care-platform/internal/api/router"
	"github.com/wolfman30/rams-care-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	httpmiddleware "github.com/wolfman30/rams-care-platform/internal/http/middleware"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/ledger"
	"github.com/wolfman30/rams-care-platform/internal/observability/metrics"
	"github.com/wolfman30/rams-care-platform/internal/workflow"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

func main() {
	envLoaded := mainconfig.LoadEnv()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting rams-care-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"dotenv", envLoaded,
	)

	ctx := context.Background()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// application is the wired API and the resources it holds open.
type application struct {
	handler http.Handler
	closers []func()
}

// Close releases resources in reverse acquisition order.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	if cfg.IsProduction() && strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required in production")
	}
	app := &application{}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
	}

	store, closeStore, err := bootstrap.BuildStore(ctx, cfg, awsCfg, pool, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeLLM)

	metricsHandler, workflowMetrics := setupMetrics()

	// The auth collaborator lives outside this service; the in-memory
	// provider stands in for it until one is wired.
	auth := identity.NewMemoryAuthProvider()

	engine := workflow.New(workflow.Deps{
		Store:    store,
		Auth:     auth,
		Locker:   bootstrap.BuildLocker(redisClient),
		Cache:    bootstrap.BuildDirectoryCache(redisClient),
		CacheTTL: cfg.DirectoryTTL,
		LockTTL:  cfg.PrescriptionTTL,
		Hooks: ledger.Hooks{
			Events:  bootstrap.BuildPublisher(cfg, awsCfg, logger),
			Audit:   bootstrap.BuildAuditRecorder(cfg, pool, logger),
			Metrics: workflowMetrics,
		},
		Logger: logger,
		LLM:    llm,
	})

	if strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		logger.Warn("AUTH_JWT_SECRET is empty; signed-in routes will answer 401")
	}
	routerCfg := engine.RouterConfig(httpmiddleware.NewCallerJWT(cfg.AuthJWTSecret, cfg.AuthTokenTTL))
	routerCfg.MetricsHandler = metricsHandler
	routerCfg.CORSAllowedOrigins = cfg.CORSAllowedOrigins
	routerCfg.AIRateLimitRPS = cfg.AIRateLimitRPS
	routerCfg.AIRateLimitBurst = cfg.AIRateLimitBurst

	app.handler = router.New(routerCfg)
	return app, nil
}

func setupMetrics() (http.Handler, *metrics.WorkflowMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewWorkflowMetrics(reg)
}
