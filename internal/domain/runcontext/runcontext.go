// Package runcontext carries the per-run plumbing shared by all job
// handlers: a checkpoint closure that flushes progress at stage boundaries
// and observes cooperative cancellation.
package runcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// ErrStopped is returned when the job row no longer accepts progress writes,
// meaning something else finalized the run (typically the lease reaper). The
// worker abandons the run without failing the job again.
var ErrStopped = errors.New("job already finalized")

// Checkpoint persists a progress value and an output patch for the running
// job, then reports whether the run may continue. It returns
// model.ErrRunCancelled once cancellation has been requested; handlers call
// it at stage boundaries and propagate the error with their partial output
// already flushed.
type Checkpoint func(ctx context.Context, progress int, patch json.RawMessage) error

// CancelFlagReader reads the cooperative cancel flag for a job.
type CancelFlagReader interface {
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// FlushFunc persists a progress value and merged output patch to the run's
// job row. The bool reports whether the job still accepted the write.
type FlushFunc func(ctx context.Context, progress int, patch json.RawMessage) (bool, error)

// Config assembles the checkpoint for one run.
type Config struct {
	JobID string
	Flag  CancelFlagReader
	Flush FlushFunc
}

// New builds a Checkpoint. Each call flushes first, so the stage's output is
// persisted before cancellation is observed and partial output survives the
// stop. A failed flag read leaves the run running; the next checkpoint
// re-reads the flag.
func New(cfg Config) Checkpoint {
	return func(ctx context.Context, progress int, patch json.RawMessage) error {
		ok, err := cfg.Flush(ctx, progress, patch)
		if err != nil {
			return fmt.Errorf("flush progress: %w", err)
		}
		if !ok {
			return ErrStopped
		}

		cancelled, err := cfg.Flag.CancelRequested(ctx, cfg.JobID)
		if err != nil {
			return nil
		}
		if cancelled {
			return model.ErrRunCancelled
		}
		return nil
	}
}

// Noop returns a Checkpoint that persists nothing and always lets the run
// continue. Used by synchronous callers and tests.
func Noop() Checkpoint {
	return func(context.Context, int, json.RawMessage) error {
		return nil
	}
}
