// Package worker pulls discovery jobs off the queue and executes them with
// the pipeline services.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	obserrors "github.com/danavision/discovery-go/internal/observability/errors"
	"github.com/danavision/discovery-go/internal/observability/metrics"
	"github.com/danavision/discovery-go/internal/observability/statsd"
	"github.com/danavision/discovery-go/internal/service"
)

// handlerFunc executes one reserved job and returns the output payload to
// merge into the job row. Partial output may accompany an error; it is kept
// on the failed row alongside whatever the run's checkpoints already flushed.
type handlerFunc func(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error)

// RunnerOptions configures the discovery job worker.
type RunnerOptions struct {
	Jobs *service.JobService // Required: reservation, progress, finalization

	// Pipeline services. A nil service leaves its job types unregistered;
	// those jobs stay pending until a worker that carries the service picks
	// them up, or the reaper fails them as stale.
	Pricing     *service.PricingService
	Vision      *service.VisionService
	LocalStores *service.LocalStoreService
	SmartFill   *service.SmartFillService

	Config  config.WorkerConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner reserves jobs, dispatches them to per-type handlers, and finalizes
// the outcome: complete, fail, cooperative cancel, or abandon when another
// actor already finalized the row.
type Runner struct {
	jobs        *service.JobService
	pricing     *service.PricingService
	vision      *service.VisionService
	localStores *service.LocalStoreService
	smartFill   *service.SmartFillService

	lease          time.Duration
	heartbeatEvery time.Duration
	pollInterval   time.Duration
	workers        int

	handlers map[model.JobType]handlerFunc
	types    []model.JobType
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewRunner constructs a worker runner over the given pipeline services.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Config
	cfg.Sanitize()

	r := &Runner{
		jobs:           opts.Jobs,
		pricing:        opts.Pricing,
		vision:         opts.Vision,
		localStores:    opts.LocalStores,
		smartFill:      opts.SmartFill,
		lease:          cfg.JobLease,
		heartbeatEvery: cfg.HeartbeatInterval,
		pollInterval:   cfg.PollInterval,
		workers:        cfg.Concurrency,
		handlers:       make(map[model.JobType]handlerFunc),
		logger:         logger.With("component", "worker"),
		metrics:        opts.Metrics,
	}
	r.registerHandlers()
	if len(r.handlers) == 0 {
		return nil, errors.New("no pipeline services configured")
	}
	r.types = registeredTypes(r.handlers)
	return r, nil
}

func (r *Runner) registerHandlers() {
	ctx := context.Background()

	if r.pricing != nil {
		r.handlers[model.JobTypePriceSearch] = r.handlePriceSearch
		r.handlers[model.JobTypePriceRefresh] = r.handlePriceSearch
		r.handlers[model.JobTypeDiscovery] = r.handleDiscovery
		r.handlers[model.JobTypeDiscoveryRefresh] = r.handleDiscovery
	} else {
		r.logger.WarnContext(ctx, "PricingService not configured; price and discovery jobs will not be reserved")
	}
	if r.vision != nil {
		r.handlers[model.JobTypeProductIdentification] = r.handleIdentification
		r.handlers[model.JobTypeImageAnalysis] = r.handleImageAnalysis
	} else {
		r.logger.WarnContext(ctx, "VisionService not configured; vision jobs will not be reserved")
	}
	if r.localStores != nil {
		r.handlers[model.JobTypeNearbyStoreDiscovery] = r.handleNearbyStores
	} else {
		r.logger.WarnContext(ctx, "LocalStoreService not configured; nearby-store-discovery jobs will not be reserved")
	}
	if r.smartFill != nil {
		r.handlers[model.JobTypeSmartFill] = r.handleSmartFill
	} else {
		r.logger.WarnContext(ctx, "SmartFillService not configured; smart-fill jobs will not be reserved")
	}
}

// registeredTypes returns the handled job types in stable declaration order,
// so reservation queries stay deterministic across workers.
func registeredTypes(handlers map[model.JobType]handlerFunc) []model.JobType {
	types := make([]model.JobType, 0, len(handlers))
	for _, jt := range model.AllJobTypes() {
		if _, ok := handlers[jt]; ok {
			types = append(types, jt)
		}
	}
	return types
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting discovery worker",
		"workers", r.workers, "lease", r.lease, "job_types", len(r.types))

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify, stopNotify := r.subscribeAll()
	defer stopNotify()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, notify); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// subscribeAll merges the per-type notification channels into one wake-up
// channel shared by the worker loops. The returned stop function
// unsubscribes and waits for the forwarders to drain.
func (r *Runner) subscribeAll() (<-chan struct{}, func()) {
	notify := make(chan struct{}, 1)
	unsubs := make([]func(), 0, len(r.types))
	var forwarders sync.WaitGroup

	for _, jt := range r.types {
		unsub, ch := r.jobs.Subscribe(jt)
		unsubs = append(unsubs, unsub)
		forwarders.Add(1)
		go func(ch <-chan struct{}) {
			defer forwarders.Done()
			for range ch {
				select {
				case notify <- struct{}{}:
				default:
				}
			}
		}(ch)
	}

	stop := func() {
		for _, unsub := range unsubs {
			unsub()
		}
		forwarders.Wait()
	}
	return notify, stop
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.types, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

// waitForNotify blocks until a job notification arrives, the poll interval
// lapses, or the context ends. The interval bounds notification loss: a
// missed pg_notify costs at most one poll period of latency.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	h, ok := r.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", job.Type)
		r.fail(ctx, job, err, nil)
		emit("failed", metrics.ResultError, err)
		return
	}

	run := runlog.New(string(job.Type))
	checkpoint := r.jobs.RunCheckpoint(job.ID)

	stopHeartbeat := r.startHeartbeat(ctx, job.ID)
	output, err := r.runHandler(ctx, h, job, run, checkpoint)
	stopHeartbeat()

	switch {
	case err == nil:
		r.complete(ctx, job, attachRunLog(output, run), emit)
	case errors.Is(err, model.ErrRunCancelled):
		r.finalizeCancel(ctx, job, emit)
	case errors.Is(err, runcontext.ErrStopped):
		// Another actor finalized the row, typically the lease reaper after
		// a stall. The run's work is already lost; leave the job as it is.
		r.logger.WarnContext(ctx, "job finalized elsewhere, abandoning run",
			"job_id", job.ID, "type", job.Type)
		emit("abandoned", metrics.ResultNoop, nil)
	default:
		r.fail(ctx, job, err, attachRunLog(output, run))
		emit("failed", metrics.ResultError, err)
	}
}

// runHandler invokes the handler with panic recovery, so one bad run cannot
// take the worker down. A recovered panic fails the job like any other error.
func (r *Runner) runHandler(
	ctx context.Context,
	h handlerFunc,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (output json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
			r.logger.ErrorContext(ctx, "job handler panicked",
				"job_id", job.ID, "type", job.Type, "panic", rec)
		}
	}()
	return h(ctx, job, run, checkpoint)
}

func (r *Runner) complete(
	ctx context.Context,
	job *model.Job,
	output json.RawMessage,
	emit func(transition, result string, err error),
) {
	completed, err := r.jobs.Complete(ctx, core.CompleteJobParams{ID: job.ID, Output: output})
	if err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
		return
	}
	result := metrics.ResultNoop
	if completed {
		result = metrics.ResultSuccess
	}
	emit("completed", result, nil)
}

// finalizeCancel lands the second half of a cooperative cancel after a
// checkpoint observed the flag. A false transition means the row went
// terminal some other way in the meantime; either way the run is over.
func (r *Runner) finalizeCancel(
	ctx context.Context,
	job *model.Job,
	emit func(transition, result string, err error),
) {
	cancelled, err := r.jobs.MarkCancelled(ctx, job.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "mark cancelled error", "job_id", job.ID, "error", err)
		emit("cancelled", metrics.ResultError, err)
		return
	}
	result := metrics.ResultNoop
	if cancelled {
		result = metrics.ResultSuccess
	}
	r.logger.InfoContext(ctx, "job cancelled cooperatively", "job_id", job.ID, "type", job.Type)
	emit("cancelled", result, nil)
}

func (r *Runner) fail(ctx context.Context, job *model.Job, cause error, output json.RawMessage) {
	_, err := r.jobs.FailWithDetails(ctx, core.FailJobParams{
		ID:       job.ID,
		ErrorMsg: cause.Error(),
		Output:   output,
	}, service.JobFailureDetails{
		Scope:      "worker",
		ErrorClass: obserrors.Classify(cause),
		Metadata: map[string]string{
			"component": "discovery_worker",
			"job_type":  string(job.Type),
		},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", job.ID, "error", err, "original_error", cause)
	}
}

// startHeartbeat extends the job's lease periodically while the handler
// runs. The returned stop function blocks until the loop exits, so no
// heartbeat lands after finalization.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.heartbeatEvery)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				alive, err := r.jobs.Heartbeat(hbCtx, jobID, r.lease)
				if err != nil {
					if hbCtx.Err() == nil {
						r.logger.WarnContext(hbCtx, "heartbeat failed", "job_id", jobID, "error", err)
					}
					continue
				}
				if !alive {
					// Row is no longer processing; the next checkpoint
					// observes that and stops the run.
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// attachRunLog folds the serialized run log into the output payload under
// the run_log key. Job output merges key-by-key on write, so the trace lands
// next to whatever the handler and its checkpoints produced.
func attachRunLog(output json.RawMessage, run *runlog.Logger) json.RawMessage {
	trace, err := json.Marshal(run)
	if err != nil {
		return output
	}
	if len(output) == 0 {
		raw, merr := json.Marshal(map[string]json.RawMessage{"run_log": trace})
		if merr != nil {
			return output
		}
		return raw
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(output, &fields); err != nil {
		return output
	}
	fields["run_log"] = trace
	raw, err := json.Marshal(fields)
	if err != nil {
		return output
	}
	return raw
}
