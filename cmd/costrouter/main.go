package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/costrouter/internal/analytics"
	"github.com/af-corp/costrouter/internal/api"
	"github.com/af-corp/costrouter/internal/budget"
	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/health"
	"github.com/af-corp/costrouter/internal/policy"
	"github.com/af-corp/costrouter/internal/routing"
	"github.com/af-corp/costrouter/internal/telemetry"
	"github.com/af-corp/costrouter/internal/usage"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env", ".env", "optional env file loaded before configuration")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = telemetry.NewLogger(os.Stdout, cfg.Telemetry)
	slog.SetDefault(logger)

	ctx := context.Background()

	engine, err := routing.FromConfig(loader.Routing())
	if err != nil {
		logger.Error("failed to build routing engine", "error", err)
		os.Exit(1)
	}
	router := routing.NewRouter(engine)
	metrics := telemetry.NewMetrics()

	loader.OnReload(func(rc *config.RoutingConfig) error {
		err := router.Reload(rc)
		metrics.RecordReload(err)
		if err == nil {
			logger.Info("routing engine reloaded", "models", len(rc.Models))
		}
		return err
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	} else {
		defer stopWatch()
	}

	store, err := usage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open usage store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("usage store ready", "driver", cfg.Database.Driver)

	// Connect to Redis
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (spend cache disabled)", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			logger.Info("redis connected")
			defer rdb.Close()
		}
	}

	spend := budget.NewCachedSpend(store, rdb, cfg.Redis.SpendTTL)
	budgets := budget.NewManager(spend)
	reports := analytics.New(store, func() *catalog.Catalog { return router.Engine().Catalog() })

	evaluator := policy.NewEvaluator(func() config.PolicyConfig { return loader.Config().Policy })
	if evaluator.Enabled() {
		if err := evaluator.Load(ctx); err != nil {
			logger.Error("failed to load routing policy", "error", err)
			os.Exit(1)
		}
	}

	handler := api.NewHandler(api.Deps{
		Router:    router,
		Usage:     store,
		Budgets:   budgets,
		Analytics: reports,
		Policy:    evaluator,
		Metrics:   metrics,
		Version:   version,

		SpendCache: spend.Breaker(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(cfg.Server, cfg.Telemetry.MetricsPath, promhttp.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	var healthSrv *health.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port))
		if err != nil {
			logger.Error("failed to listen for grpc health", "port", cfg.GRPC.Port, "error", err)
			os.Exit(1)
		}
		healthSrv = health.New()
		healthSrv.SetServing(true)
		go func() { errCh <- healthSrv.Serve(lis) }()
	}

	// Graceful shutdown
	go func() {
		logger.Info("costrouter starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	if healthSrv != nil {
		healthSrv.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		exitCode = 1
	}
	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	logger.Info("costrouter stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
