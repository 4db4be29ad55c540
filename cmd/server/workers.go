package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/controller"
	"github.com/openctemio/reposcan/internal/infra/jobs"
	"github.com/openctemio/reposcan/pkg/logger"
)

// Workers holds the background workers.
type Workers struct {
	JobWorker         *jobs.Worker        // nil when WORKER_ENABLED is false
	ControllerManager *controller.Manager // nil when CONTROLLERS_ENABLED is false
	log               *logger.Logger
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Repos    *Repositories
	Services *Services
}

// NewWorkers initializes the scan worker and the controllers.
func NewWorkers(deps *WorkerDeps) *Workers {
	cfg, log := deps.Config, deps.Log
	w := &Workers{log: log}

	if cfg.Worker.Enabled {
		w.JobWorker = jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Worker.Concurrency,
			Queues:        cfg.Worker.Queues,
		}, deps.Services.Scan, log)
		log.Info("job worker initialized", "concurrency", cfg.Worker.Concurrency)
	}

	if cfg.Controllers.Enabled {
		w.ControllerManager = controller.NewManager(controller.ManagerConfig{
			Metrics: controller.NewPrometheusMetrics("reposcan", prometheus.DefaultRegisterer),
			Logger:  log,
		})
		w.ControllerManager.Register(controller.NewScheduleDispatchController(
			deps.Services.Schedule,
			cfg.Controllers.DispatchInterval,
			cfg.Controllers.DispatchBatch,
		))
		w.ControllerManager.Register(controller.NewRetentionController(
			deps.Repos.Organization,
			deps.Repos.Scan,
			deps.Repos.Audit,
			controller.RetentionConfig{
				Interval:  cfg.Controllers.RetentionInterval,
				BatchSize: cfg.Controllers.RetentionBatch,
				DryRun:    cfg.Controllers.RetentionDryRun,
				Logger:    log,
			},
		))
		log.Info("controllers initialized", "controllers", w.ControllerManager.Names())
	}
	return w
}

// Run blocks until ctx is canceled, then stops every worker.
func (w *Workers) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if w.JobWorker != nil {
		g.Go(func() error { return w.JobWorker.Run(gctx) })
	}
	if w.ControllerManager != nil {
		if err := w.ControllerManager.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			w.ControllerManager.Stop()
			w.log.Info("controllers stopped")
			return nil
		})
	}
	return g.Wait()
}
