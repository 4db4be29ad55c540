package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/http"
	"github.com/openctemio/reposcan/internal/infra/http/routes"
	"github.com/openctemio/reposcan/internal/infra/postgres"
	"github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/telemetry"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/migrations"
	"github.com/openctemio/reposcan/pkg/validator"
)

// @title           RepoScan API
// @version         1.0
// @description     Plan-gated repository scanning for multi-tenant organizations.

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

var (
	showRoutes = flag.Bool("routes", false, "Print all registered routes and exit")
	migrate    = flag.Bool("migrate", false, "Apply pending migrations before serving")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env, "version", cfg.App.Version)

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Tracing, telemetry.ServiceInfo{
		Name:        cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Env,
	})
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	if *migrate {
		n, err := migrations.NewRunner(db.DB, postgres.Migrations(), log.Logger).Up(ctx)
		if err != nil {
			log.Error("failed to apply migrations", "error", err)
			return 1
		}
		log.Info("migrations applied", "count", n)
	}

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	stopPoolStats := redis.StartPoolStatsCollector(ctx, redisClient, 15*time.Second)
	defer stopPoolStats()
	log.Info("redis connected")

	repos := NewRepositories(db)

	services, err := NewServices(ctx, &ServiceDeps{
		Config: cfg,
		Log:    log,
		Repos:  repos,
		Redis:  redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	defer closeWithLog(services.Jobs, "job client", log)
	log.Info("services initialized")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	handlers := NewHandlers(&HandlerDeps{
		Config:    cfg,
		Log:       log,
		Validator: validator.New(),
		DB:        db,
		Redis:     redisClient,
		Services:  services,
	})

	server := http.NewServer(cfg, log, http.WithTracerProvider(tracing.TracerProvider()))
	routes.Register(server.Router(), handlers, routes.Guards{
		Tokens:       services.Tokens,
		Entitlements: services.Entitlement,
		LoginLimiter: services.LoginLimiter,
	}, cfg, log)

	if *showRoutes {
		if err := server.Router().Walk(func(method, path string) error {
			_, err := fmt.Fprintf(os.Stdout, "%-7s %s\n", method, path)
			return err
		}); err != nil {
			log.Error("failed to list routes", "error", err)
			return 1
		}
		return 0
	}
	server.LogRoutes()

	// ==========================================================================
	// Run
	// ==========================================================================
	workers := NewWorkers(&WorkerDeps{Config: cfg, Log: log, Repos: repos, Services: services})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		services.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	log.Info("application started", "http_addr", cfg.Server.Addr())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("application stopped with error", "error", err)
		return 1
	}
	log.Info("application stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		// Sampling values are validated non-negative in config.Validate.
		//nolint:gosec // G115
		threshold, every := uint64(cfg.Log.SamplingThreshold), uint64(cfg.Log.SamplingEvery)
		log = logger.NewProduction(cfg.Log.Level, logger.SamplingConfig{
			Enabled:   cfg.Log.SamplingEnabled,
			Tick:      time.Second,
			Threshold: threshold,
			Every:     every,
		})
	} else {
		log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
