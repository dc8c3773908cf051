package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable is returned when cancellation is requested for a
	// job that is already terminal. The job is returned alongside so callers
	// can report its actual state.
	ErrJobNotCancellable = errors.New("job is not cancellable")
)

// RepoConfig carries the optional collaborators for JobRepo. Zero values
// fall back to the system clock and no logging.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo persists the job queue. All state transitions run as single
// statements or short transactions against the jobs table so concurrent
// workers coordinate purely through row locks.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo wraps db in a JobRepo.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// jobColumns is the canonical select list; scanJobFromRow expects this order.
const jobColumns = `
  id,
  owner_id,
  type,
  status,
  priority,
  input,
  output,
  error_message,
  progress,
  cancel_requested,
  list_id,
  item_id,
  lease_expires_at,
  started_at,
  completed_at,
  created_at,
  updated_at
`
