// Package main is the entry point for the bug hunt API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/bughunt/internal/api"
	"github.com/onnwee/bughunt/internal/auth"
	"github.com/onnwee/bughunt/internal/config"
	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/health"
	"github.com/onnwee/bughunt/internal/image"
	"github.com/onnwee/bughunt/internal/middleware"
	"github.com/onnwee/bughunt/internal/scene"
	"github.com/onnwee/bughunt/internal/storage/postgres"
	"github.com/onnwee/bughunt/internal/storage/sqlite"
	"github.com/onnwee/bughunt/internal/stream"
	"github.com/onnwee/bughunt/internal/tracing"
	"github.com/onnwee/bughunt/internal/upload"
)

const (
	serviceName     = "bughunt-api"
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Bug Hunt API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run wires the server from cfg and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: !cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, logger)
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// buildHandler assembles storage, game, metrics and the router. The
// returned cleanup releases everything that was opened.
func buildHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, nil, err
	}

	gw, dbChecker, closeStore, err := openGateway(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	closers = append(closers, closeStore)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	gameMetrics := game.NewMetrics()
	streamMetrics := stream.NewMetrics()
	for _, r := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, gameMetrics, streamMetrics} {
		if err := r.Register(reg); err != nil {
			return fail(fmt.Errorf("register metrics: %w", err))
		}
	}

	limiter, redisChecker, closeLimiter, err := newRateLimitStore(ctx, cfg, httpMetrics, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeLimiter)

	broadcaster := stream.NewStateBroadcaster(logger, streamMetrics)
	closers = append(closers, broadcaster.Close)

	g := game.New(scene.NewStore(gw, logger), logger,
		game.WithPublisher(broadcaster),
		game.WithMetrics(gameMetrics),
	)
	if err := g.Load(ctx); err != nil {
		return fail(fmt.Errorf("load scenes: %w", err))
	}
	state := g.State()
	logger.Info("scenes loaded", "scenes", len(state.Scenes), "bugs", len(state.Bugs))

	routerCfg := api.RouterConfig{
		Game:        g,
		Broadcaster: broadcaster,
		Images: image.NewProcessor(image.ProcessorConfig{
			Quality:       cfg.ImageQuality,
			StripMetadata: true,
			MaxWidth:      cfg.ImageMaxWidth,
			MaxHeight:     cfg.ImageMaxHeight,
		}),
		MaxImageBytes: int64(cfg.R2MaxUploadSizeMB) << 20,
		Health: api.HealthHandlersConfig{
			DBChecker:      dbChecker,
			RedisChecker:   redisChecker,
			MetricsEnabled: true,
		},
		RateLimitStore: limiter,
		ClickLimit:     middleware.ClickLimit(cfg.ClickRateLimitPerMinute),
		Metrics:        httpMetrics,
		Gatherer:       reg,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ServiceName:    serviceName,
		Logger:         logger,
	}

	if cfg.AdminAuthEnabled() {
		routerCfg.Auth = auth.NewJWTServiceWithRotation(cfg.AdminJWTSecret, cfg.AdminJWTSecretPrevious)
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set, admin routes are open")
	}

	if cfg.R2Enabled() {
		uploads, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			PublicBaseURL:   cfg.R2PublicBaseURL,
			MaxSizeMB:       cfg.R2MaxUploadSizeMB,
		})
		if err != nil {
			return fail(fmt.Errorf("init upload service: %w", err))
		}
		routerCfg.Uploads = uploads
		routerCfg.ObjectStore = uploads
		logger.Info("object storage enabled", "bucket", uploads.Bucket())
	}

	return api.NewRouter(routerCfg), cleanup, nil
}

// openGateway selects the scene gateway for the configured storage driver.
// The in-memory gateway has no database checker.
func openGateway(ctx context.Context, cfg *config.Config) (scene.Gateway, api.HealthChecker, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, health.NewDBChecker(store.DB(), "sqlite"), closeLogged(store.Close, "sqlite"), nil
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, health.NewDBChecker(store.DB(), "postgres"), closeLogged(store.Close, "postgres"), nil
	case config.StorageMemory, "":
		return scene.NewInMemoryGateway(), nil, func() {}, nil
	default:
		return nil, nil, nil, config.ErrInvalidStorageDriver
	}
}

// newRateLimitStore returns the Redis-backed limiter when REDIS_URL is set
// and the in-memory limiter otherwise.
func newRateLimitStore(ctx context.Context, cfg *config.Config, metrics *middleware.Metrics, logger *slog.Logger) (middleware.RateLimitStore, api.HealthChecker, func(), error) {
	if cfg.RedisURL == "" {
		store := middleware.NewInMemoryRateLimitStore()
		runCtx, cancel := context.WithCancel(ctx)
		go store.Run(runCtx, cleanupInterval)
		return store, nil, cancel, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	store := middleware.NewRedisRateLimitStore(client).WithMetrics(metrics).WithLogger(logger)
	return store, health.NewRedisChecker(client), closeLogged(client.Close, "redis"), nil
}

func closeLogged(closeFn func() error, name string) func() {
	return func() {
		if err := closeFn(); err != nil {
			slog.Error("failed to close", "component", name, "error", err)
		}
	}
}
