// Package service provides business logic services for the danavision job system.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// SchedulerService implements the JobScheduler interface. It scans
// local_discovery_state for areas whose store data has gone stale and
// enqueues low-priority nearby-store-discovery refreshes, at most one active
// refresh per (owner, postal code, store type). Safe under concurrent
// replicas: duplicate enqueues across ticks are prevented by the
// active-equivalent check, and a rare race between replicas only costs one
// redundant refresh run.
type SchedulerService struct {
	states       core.DiscoveryStateRepository
	jobs         core.JobRepository
	cfg          core.SchedulerConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	States       core.DiscoveryStateRepository
	Jobs         core.JobRepository
	Config       *core.SchedulerConfig
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Config == nil {
		defaultCfg := core.DefaultSchedulerConfig()
		opts.Config = &defaultCfg
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &SchedulerService{
		states:       opts.States,
		jobs:         opts.Jobs,
		cfg:          *opts.Config,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
	}
}

// Tick processes one staleness scan and returns the number of refresh jobs
// enqueued.
//
// Algorithm:
// 1. List stale state rows, oldest first, up to the batch size
// 2. Skip rows with an equivalent active refresh already in the queue
// 3. Enqueue a nearby-store-discovery job at the refresh priority
//
// Per-row failures are logged and skipped rather than aborting the tick; a
// row that fails to enqueue is still stale next tick and gets retried then.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.states.ListStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale discovery state: %w", err)
	}

	enqueued := 0
	for _, state := range stale {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}
		created, err := s.refreshArea(ctx, state)
		if err != nil {
			s.logger.WarnContext(ctx, "scheduler: area refresh enqueue failed",
				"owner_id", state.OwnerID,
				"postal_code", state.PostalCode,
				"store_type", state.StoreType,
				"error", err,
			)
			continue
		}
		if created {
			enqueued++
		}
	}

	if enqueued > 0 {
		s.logger.InfoContext(ctx, "scheduler tick complete",
			"stale_areas", len(stale),
			"enqueued", enqueued,
			"stale_after", s.cfg.StaleAfter.String(),
			"as_of", now.UTC().Format(time.RFC3339),
		)
	}
	return enqueued, nil
}

// refreshArea enqueues one area refresh unless an equivalent job is already
// pending or processing for the owner.
func (s *SchedulerService) refreshArea(ctx context.Context, state *model.LocalDiscoveryState) (bool, error) {
	active, err := s.jobs.ListActive(ctx, state.OwnerID)
	if err != nil {
		return false, fmt.Errorf("list active jobs: %w", err)
	}
	if hasActiveAreaJob(active, state) {
		return false, nil
	}

	input, err := json.Marshal(model.NearbyStoreDiscoveryInput{
		PostalCode: state.PostalCode,
		StoreType:  state.StoreType,
	})
	if err != nil {
		return false, fmt.Errorf("marshal refresh input: %w", err)
	}

	_, err = s.jobs.Create(ctx, state.OwnerID, &model.CreateJobRequest{
		Type:     model.JobTypeNearbyStoreDiscovery,
		Input:    input,
		Priority: s.cfg.RefreshPriority,
	})
	if err != nil {
		return false, fmt.Errorf("create refresh job: %w", err)
	}
	return true, nil
}

// hasActiveAreaJob reports whether any active job already covers the state
// row's area. Only nearby-store-discovery inputs are inspected; jobs whose
// input does not decode are ignored.
func hasActiveAreaJob(active []*model.Job, state *model.LocalDiscoveryState) bool {
	for _, job := range active {
		if job == nil || job.Type != model.JobTypeNearbyStoreDiscovery {
			continue
		}
		var input model.NearbyStoreDiscoveryInput
		if err := json.Unmarshal(job.Input, &input); err != nil {
			continue
		}
		if err := input.Validate(); err != nil {
			continue
		}
		if model.NormalizePostalCode(input.PostalCode) == model.NormalizePostalCode(state.PostalCode) &&
			input.StoreType == state.StoreType {
			return true
		}
	}
	return false
}
