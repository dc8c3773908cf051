package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/adapters/reaper"
	schedrunner "github.com/danavision/discovery-go/internal/adapters/scheduler"
	"github.com/danavision/discovery-go/internal/adapters/worker"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/observability/statsd"
	"github.com/danavision/discovery-go/internal/service"
)

// WorkerConfig contains configuration for the discovery job worker. Nil
// pipeline services leave their job types unregistered on this worker.
type WorkerConfig struct {
	Jobs        *service.JobService
	Pricing     *service.PricingService
	Vision      *service.VisionService
	LocalStores *service.LocalStoreService
	SmartFill   *service.SmartFillService
	Config      config.WorkerConfig
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// RunWorker starts the discovery job worker.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		Jobs:        cfg.Jobs,
		Pricing:     cfg.Pricing,
		Vision:      cfg.Vision,
		LocalStores: cfg.LocalStores,
		SmartFill:   cfg.SmartFill,
		Config:      cfg.Config,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	return runner.Run(ctx)
}

// SchedulerConfig contains configuration for the refresh scheduler.
type SchedulerConfig struct {
	DB              *sql.DB
	Logger          *slog.Logger
	BatchSize       int
	StaleAfter      time.Duration
	RefreshPriority int
	Interval        time.Duration
	Metrics         statsd.Sink
}

// RunScheduler starts the refresh scheduler service.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	schedulerCfg := core.DefaultSchedulerConfig()
	if cfg.BatchSize > 0 {
		schedulerCfg.BatchSize = cfg.BatchSize
	}
	if cfg.StaleAfter > 0 {
		schedulerCfg.StaleAfter = cfg.StaleAfter
	}
	// Zero keeps the default so background refreshes stay below
	// user-initiated job priority.
	if cfg.RefreshPriority != 0 {
		schedulerCfg.RefreshPriority = cfg.RefreshPriority
	}

	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:       cfg.DB,
		Config:   &schedulerCfg,
		Interval: cfg.Interval,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the job reaper.
type ReaperConfig struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Config    config.ReaperConfig
	ImagesDir string
	Metrics   statsd.Sink
}

// RunReaper starts the reaper service. When the image store is available the
// reaper also sweeps images no job references anymore; without it only job
// rows are cleaned.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	opts := reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	}

	if cfg.ImagesDir != "" {
		images, err := data.NewFileImageStore(cfg.ImagesDir)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("image store unavailable, skipping orphaned image sweep",
					"dir", cfg.ImagesDir, "error", err)
			}
		} else {
			opts.Images = images
		}
	}

	runner, err := reaper.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
