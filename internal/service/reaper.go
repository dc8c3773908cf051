package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/domain/model"
	obserrors "github.com/danavision/discovery-go/internal/observability/errors"
	"github.com/danavision/discovery-go/internal/observability/metrics"
	"github.com/danavision/discovery-go/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Images  core.ImageStore       // Optional: image sweep is skipped without it
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService runs the periodic cleanup pass: failing processing jobs
// whose worker lease lapsed, failing pending jobs nothing ever picked up,
// deleting terminal jobs past retention, and sweeping stored images that no
// surviving job references.
type ReaperService struct {
	repo    core.ReaperRepository
	images  core.ImageStore
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"terminal_max_age", opts.Config.TerminalMaxAge,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		images:  opts.Images,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run executes cleanup at the configured interval until the context is
// cancelled. Cancellation is a graceful stop and returns nil; cleanup errors
// are logged but never terminate the loop, the next tick retries.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Stagger instances started together so they don't all hit the
	// database at once.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter sleeps a random duration up to 10% of the interval, or
// until cancellation.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupFunc func(context.Context) (int64, error)

// stepResult records one cleanup operation's outcome for metrics and error
// aggregation.
type stepResult struct {
	operation string
	count     int64
	err       error
}

// runCleanup executes every cleanup operation in order. A failing step does
// not stop the ones after it; all failures are joined into the returned
// error. When every failure is a context cancellation the joined error
// collapses to context.Canceled so callers can treat it as shutdown.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()

	steps := []struct {
		operation string
		label     string
		fn        cleanupFunc
	}{
		{"fail_expired_leases", "fail expired leases", s.failExpiredLeases},
		{"fail_pending", "fail stale pending jobs", s.failStalePendingJobs},
		{"delete_completed", "delete old completed jobs", s.deleteOldJobsWithStatus(model.JobStatusCompleted)},
		{"delete_failed", "delete old failed jobs", s.deleteOldJobsWithStatus(model.JobStatusFailed)},
		{"delete_cancelled", "delete old cancelled jobs", s.deleteOldJobsWithStatus(model.JobStatusCancelled)},
		{"sweep_images", "sweep stored images", s.sweepImages},
	}

	results := make([]stepResult, 0, len(steps))
	var errs []error
	allCanceled := true

	for _, step := range steps {
		count, err := step.fn(ctx)
		results = append(results, stepResult{
			operation: step.operation,
			count:     count,
			err:       suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	s.emitCleanupMetrics(results, time.Since(start))

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if allCanceled && isContextCancellation(joined) {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", joined)
}

// drainBatches calls fetch until it reports an empty batch, checking for
// cancellation between rounds so a large backlog cannot pin the reaper past
// shutdown.
func drainBatches(ctx context.Context, fetch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := fetch(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// failExpiredLeases fails processing jobs whose worker lease has lapsed.
// These are jobs whose worker died mid-run; with no retry edge in the state
// machine they fail rather than re-pend.
func (s *ReaperService) failExpiredLeases(ctx context.Context) (int64, error) {
	total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailExpiredLeases(ctx, s.config.BatchSize)
	})
	if err != nil {
		return total, err
	}
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed jobs with expired leases", "count", total)
	}
	return total, nil
}

// failStalePendingJobs fails pending jobs older than PendingMaxAge.
func (s *ReaperService) failStalePendingJobs(ctx context.Context) (int64, error) {
	total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	})
	if err != nil {
		return total, err
	}
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale pending jobs",
			"count", total,
			"max_age", s.config.PendingMaxAge,
		)
	}
	return total, nil
}

// deleteOldJobsWithStatus builds the cleanup step deleting one terminal
// status past TerminalMaxAge.
func (s *ReaperService) deleteOldJobsWithStatus(status model.JobStatus) cleanupFunc {
	return func(ctx context.Context) (int64, error) {
		total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    s.config.TerminalMaxAge,
				BatchSize: s.config.BatchSize,
			})
		})
		if err != nil {
			return total, err
		}
		if total > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old terminal jobs",
				"status", status,
				"count", total,
				"max_age", s.config.TerminalMaxAge,
			)
		}
		return total, nil
	}
}

// sweepImages removes stored images older than the terminal retention
// window. Jobs past retention are deleted, so nothing references these
// images anymore.
func (s *ReaperService) sweepImages(ctx context.Context) (int64, error) {
	if s.images == nil {
		return 0, nil
	}
	count, err := s.images.Sweep(ctx, s.config.TerminalMaxAge)
	if err != nil {
		return int64(count), err
	}
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "swept orphaned images",
			"count", count,
			"max_age", s.config.TerminalMaxAge,
		)
	}
	return int64(count), nil
}

// emitCleanupMetrics publishes one pass-level event plus one event per
// operation, tagged success, error, or noop.
func (s *ReaperService) emitCleanupMetrics(results []stepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var total int64
	var firstErr error
	for _, r := range results {
		total += r.count
		if firstErr == nil {
			firstErr = r.err
		}
	}

	tags := map[string]string{"result": stepResultTag(total, firstErr)}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		opTags := map[string]string{
			"operation": r.operation,
			"result":    stepResultTag(r.count, r.err),
		}
		if r.err != nil {
			if class := obserrors.Classify(r.err); class != "" {
				opTags["error_class"] = class
			}
		}
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if r.err == nil && r.count > 0 {
			s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(opTags))
		}
	}

	// A watchdog alerts when this gauge stops advancing.
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func stepResultTag(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
