// Package failurenotifier fans terminal job failures out to the configured
// alerting sinks. Delivery is best-effort: a sink that errors is logged and
// skipped, never retried here (the sinks own their retry policy), and never
// blocks the job pipeline beyond the fan-out itself.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/danavision/discovery-go/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with the name used in
// delivery logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier. Nil sinks are dropped and
// unnamed ones get a placeholder so log lines stay attributable.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{logger: logger, sinks: sinks}
}

// NotifyJobFailure delivers the payload to every sink concurrently and
// waits for all of them. Severity defaults to critical when the caller left
// it empty.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliver(ctx, entry, payload)
		}()
	}
	wg.Wait()
}

func (s *Service) deliver(ctx context.Context, entry SinkRegistration, payload notify.JobFailurePayload) {
	if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
		s.logger.Error("failure notifier delivery error",
			"sink", entry.Name,
			"job_id", payload.JobID,
			"job_type", payload.JobType,
			"error", err,
		)
		return
	}
	s.logger.Debug("failure notification delivered",
		"sink", entry.Name,
		"job_id", payload.JobID,
	)
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
