// Package reaper assembles the background cleanup loop from its data
// tier dependencies so the service entry point only has to hand over a
// database handle and config.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/observability/statsd"
	"github.com/danavision/discovery-go/internal/service"
)

// Runner owns a constructed ReaperService and drives its cleanup loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner. Either DB
// or Repo must be set; Repo takes precedence when both are present.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Repo overrides the JobRepo built from DB, mainly for tests.
	Repo core.ReaperRepository
	// Images enables the orphaned image sweep; without it the reaper
	// only cleans job rows.
	Images  core.ImageStore
	Metrics statsd.Sink
}

// NewRunner builds the reaper service behind a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Images:  opts.Images,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: svc, logger: opts.Logger}, nil
}

// Run drives cleanup cycles until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
