// Package scheduler provides adapters for running the refresh scheduler.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	obserrors "github.com/danavision/discovery-go/internal/observability/errors"
	"github.com/danavision/discovery-go/internal/observability/metrics"
	"github.com/danavision/discovery-go/internal/observability/statsd"
	"github.com/danavision/discovery-go/internal/service"
)

// Runner provides a simple adapter to run the scheduler loop.
// It constructs the scheduler service and runs a tick loop with configurable interval.
type Runner struct {
	scheduler core.JobScheduler
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Config   *core.SchedulerConfig
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Optional dependency injections for testing/decoupling
	Scheduler core.JobScheduler
	States    core.DiscoveryStateRepository
	Jobs      core.JobRepository
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = wireSchedulerService(opts)
	}

	return &Runner{
		scheduler: sched,
		interval:  opts.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Scheduler == nil {
		return errors.New("database connection is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("component", "scheduler")
	return nil
}

// wireSchedulerService wires up the scheduler service from the database
// connection, honoring any injected repositories.
func wireSchedulerService(opts RunnerOptions) *service.SchedulerService {
	states := opts.States
	if states == nil {
		states = data.NewDiscoveryStateRepo(opts.DB)
	}
	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	return service.NewSchedulerService(service.SchedulerServiceOptions{
		States: states,
		Jobs:   jobs,
		Config: opts.Config,
		Logger: opts.Logger,
	})
}

// Run starts the scheduler loop and runs until the context is cancelled.
// The first tick fires immediately so a restart does not sit idle for a
// full interval; subsequent ticks follow the configured cadence.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

// tick runs one staleness scan and emits its metrics. Errors are logged
// and the loop keeps running; a failed scan leaves the rows stale, so the
// next tick retries them.
func (r *Runner) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	enqueued, err := r.scheduler.Tick(ctx, now)
	elapsed := time.Since(start)

	r.emitTickMetrics(enqueued, elapsed, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.Debug("scheduler tick cancelled by context", "error", err)
			return
		}
		r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
		return
	}

	if enqueued > 0 {
		r.logger.InfoContext(ctx, "scheduler enqueued refresh jobs", "count", enqueued)
	}
}

func (r *Runner) emitTickMetrics(enqueued int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if enqueued == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)

	if enqueued > 0 {
		r.metrics.Count("scheduler.refreshes_enqueued", int64(enqueued), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
