package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	domainjob "github.com/danavision/discovery-go/internal/domain/job"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/observability/notify"
	"github.com/danavision/discovery-go/internal/service/failurenotifier"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for jobs
	Logger          *slog.Logger              // Optional: structured logger
	FailureNotifier *failurenotifier.Service  // Optional: failure notification fan-out
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for job operations including pub/sub notifications.
//
// This service manages:
// - Owner-scoped job submission, inspection and cancellation
// - Job reservation and lease management for the worker
// - Pub/sub notification system for job availability
// - Goroutine management for background listeners
// - Graceful shutdown of all listeners.
//
// Every boundary-facing operation takes the calling owner's id and refuses to
// touch jobs that belong to someone else. Worker-side operations (reserve,
// heartbeat, complete, fail) act on already-claimed jobs and skip the owner
// check.
type JobService struct {
	repo            core.JobRepository
	leasePolicy     *domainjob.LeasePolicy
	notifier        domainjob.Notifier
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &JobService{
		repo:            opts.Repo,
		leasePolicy:     leasePolicy,
		notifier:        notifier,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create validates and enqueues a new job for the given owner.
// The input payload is decoded against the job type's input structure before
// the row is written, so malformed payloads never reach the worker.
func (s *JobService) Create(
	ctx context.Context,
	ownerID string,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.Validation("owner is required")
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validateJobInput(req); err != nil {
		return nil, apperrors.ValidationField("input", err.Error())
	}

	job, err := s.repo.Create(ctx, ownerID, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"job created",
			"id", job.ID,
			"owner", job.OwnerID,
			"type", job.Type,
			"status", job.Status,
		)
	}

	return job, nil
}

// validateJobInput decodes the request input against the structure its job
// type expects and runs the payload's own validation.
func validateJobInput(req *model.CreateJobRequest) error {
	switch req.Type {
	case model.JobTypePriceSearch, model.JobTypePriceRefresh:
		return model.DecodeInput(req.Input, &model.PriceSearchInput{})
	case model.JobTypeProductIdentification:
		return model.DecodeInput(req.Input, &model.ProductIdentificationInput{})
	case model.JobTypeImageAnalysis:
		return model.DecodeInput(req.Input, &model.ImageAnalysisInput{})
	case model.JobTypeSmartFill:
		return model.DecodeInput(req.Input, &model.SmartFillInput{})
	case model.JobTypeDiscovery, model.JobTypeDiscoveryRefresh:
		return model.DecodeInput(req.Input, &model.DiscoveryInput{})
	case model.JobTypeNearbyStoreDiscovery:
		return model.DecodeInput(req.Input, &model.NearbyStoreDiscoveryInput{})
	default:
		return fmt.Errorf("unsupported job type %q", req.Type)
	}
}

// GetForOwner returns a job by id, refusing access to jobs the caller does
// not own.
func (s *JobService) GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if job.OwnerID != ownerID {
		return nil, apperrors.Forbidden("job belongs to another owner")
	}
	return job, nil
}

// GetStatus returns the status projection for one of the caller's jobs.
func (s *JobService) GetStatus(ctx context.Context, id, ownerID string) (*model.JobStatusResponse, error) {
	job, err := s.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		Status:       job.Status,
		Progress:     job.Progress,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
	}, nil
}

// Cancel requests cancellation of one of the caller's jobs. Pending jobs are
// cancelled immediately; processing jobs keep running until the worker's next
// checkpoint observes the flag. Cancelling a terminal job is an invalid-state
// error, never a silent success.
func (s *JobService) Cancel(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if _, err := s.GetForOwner(ctx, id, ownerID); err != nil {
		return nil, err
	}

	job, err := s.repo.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotCancellable) {
			status := model.JobStatus("")
			if job != nil {
				status = job.Status
			}
			return nil, apperrors.InvalidStatef("job is already %s", status)
		}
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("cancel job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancel requested",
			"id", id,
			"status", job.Status,
			"cancel_requested", job.CancelRequested,
		)
	}

	return job, nil
}

// Delete removes one of the caller's terminal jobs. Active jobs must be
// cancelled first.
func (s *JobService) Delete(ctx context.Context, id, ownerID string) error {
	job, err := s.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if job.Status.Active() {
		return apperrors.InvalidStatef("job is %s; cancel it before deleting", job.Status)
	}

	deleted, err := s.repo.DeleteTerminal(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if !deleted {
		// Raced with another delete; the row is gone either way.
		return nil
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job deleted", "id", id, "owner", ownerID)
	}
	return nil
}

// ClearHistory deletes all of the caller's terminal jobs and reports how many
// rows went away. Active jobs are never touched.
func (s *JobService) ClearHistory(ctx context.Context, ownerID string) (int64, error) {
	deleted, err := s.repo.ClearHistory(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear job history: %w", err)
	}

	if s.logger != nil && deleted > 0 {
		s.logger.InfoContext(ctx, "job history cleared", "owner", ownerID, "deleted", deleted)
	}
	return deleted, nil
}

// List returns one page of the caller's jobs with optional filters.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *JobService) List(
	ctx context.Context,
	ownerID string,
	opts *model.JobListOptions,
) (*model.JobListPage, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	page, err := s.repo.List(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return page, nil
}

// ListActive returns the caller's pending and processing jobs.
func (s *JobService) ListActive(ctx context.Context, ownerID string) ([]*model.Job, error) {
	jobs, err := s.repo.ListActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns per-status counts for the caller's jobs.
func (s *JobService) Stats(ctx context.Context, ownerID string) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// ReserveNext reserves the next available job across the given types for
// processing. Callers receive model.ErrNoJobsAvailable (wrapped) when the
// queue is empty.
func (s *JobService) ReserveNext(
	ctx context.Context,
	jobTypes []model.JobType,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"job_types", jobTypes)
	}

	job, err := s.repo.ReserveNext(ctx, jobTypes, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(
			ctx,
			"job reserved",
			"id", job.ID,
			"type", job.Type,
			"lease_seconds", decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for job notifications of the given type.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(jobType)
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *JobService) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	return s.repo.WaitForNotification(ctx, jobType)
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// UpdateProgress flushes forward progress and an output patch for a
// processing job. Terminal jobs report false without erroring.
func (s *JobService) UpdateProgress(
	ctx context.Context,
	params core.UpdateJobProgressParams,
) (bool, error) {
	updated, err := s.repo.UpdateProgress(ctx, params)
	if err != nil {
		return false, fmt.Errorf("update progress for job %s: %w", params.ID, err)
	}
	return updated, nil
}

// RunCheckpoint assembles the cooperative-cancel checkpoint for one run. The
// worker passes it into job handlers; each stage boundary flushes progress
// and observes the cancel flag through it.
func (s *JobService) RunCheckpoint(jobID string) runcontext.Checkpoint {
	return runcontext.New(runcontext.Config{
		JobID: jobID,
		Flag:  s.repo,
		Flush: func(ctx context.Context, progress int, patch json.RawMessage) (bool, error) {
			return s.UpdateProgress(ctx, core.UpdateJobProgressParams{
				ID:       jobID,
				Progress: progress,
				Output:   patch,
			})
		},
	})
}

// CancelRequested reads the cooperative cancel flag for a job.
func (s *JobService) CancelRequested(ctx context.Context, id string) (bool, error) {
	cancelled, err := s.repo.CancelRequested(ctx, id)
	if err != nil {
		return false, fmt.Errorf("read cancel flag for job %s: %w", id, err)
	}
	return cancelled, nil
}

// MarkCancelled finalizes a cooperative cancel after a checkpoint observed
// the flag. The bool reports whether the job transitioned.
func (s *JobService) MarkCancelled(ctx context.Context, id string) (bool, error) {
	cancelled, err := s.repo.MarkCancelled(ctx, id)
	if err != nil {
		return false, fmt.Errorf("mark job %s cancelled: %w", id, err)
	}

	if s.logger != nil && cancelled {
		s.logger.InfoContext(ctx, "job cancelled at checkpoint", "id", id)
	}
	return cancelled, nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	completed, err := s.repo.Complete(ctx, params)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", params.ID, err)
	}

	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "job completed", "id", params.ID)
	}

	return completed, nil
}

// Fail marks a job as failed with the given error message.
func (s *JobService) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	return s.FailWithDetails(ctx, params, JobFailureDetails{})
}

// JobFailureDetails captures optional context for failure notifications.
type JobFailureDetails struct {
	Scope      string
	ErrorClass string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// FailWithDetails marks a job as failed and propagates optional metadata to the notifier.
func (s *JobService) FailWithDetails(
	ctx context.Context,
	params core.FailJobParams,
	details JobFailureDetails,
) (bool, error) {
	if params.ErrorMsg == "" {
		return false, errors.New("error message required")
	}

	var job *model.Job
	if s.failureNotifier != nil {
		var err error
		job, err = s.repo.GetByID(ctx, params.ID)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to load job for failure notification",
				"job_id", params.ID, "error", err)
		}
	}

	failed, err := s.repo.Fail(ctx, params)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", params.ID, err)
	}

	if s.logger != nil && failed {
		s.logger.DebugContext(ctx, "job failed", "id", params.ID, "error", params.ErrorMsg)
	}

	if failed && s.failureNotifier != nil {
		payload := buildJobFailurePayload(jobFailurePayloadInput{
			ID:      params.ID,
			Job:     job,
			ErrMsg:  params.ErrorMsg,
			Details: details,
		})
		s.failureNotifier.NotifyJobFailure(ctx, payload)
	}

	return failed, nil
}

type jobFailurePayloadInput struct {
	ID      string
	Job     *model.Job
	ErrMsg  string
	Details JobFailureDetails
}

func buildJobFailurePayload(input jobFailurePayloadInput) notify.JobFailurePayload {
	payload := baseFailurePayload(input.ID, input.ErrMsg, input.Details)
	if input.Job != nil {
		applyJobContext(&payload, input.Job)
	}
	if payload.ErrorClass != "" {
		payload.Metadata = mergeMetadata(payload.Metadata, map[string]string{
			"error_class": payload.ErrorClass,
		})
	}

	payload.Normalize()
	return payload
}

func baseFailurePayload(id, errMsg string, details JobFailureDetails) notify.JobFailurePayload {
	return notify.JobFailurePayload{
		JobID:      id,
		Scope:      details.Scope,
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   copyMetadata(details.Metadata),
	}
}

func applyJobContext(payload *notify.JobFailurePayload, job *model.Job) {
	payload.JobType = string(job.Type)
	payload.OwnerID = job.OwnerID

	metadata := map[string]string{
		"priority": strconv.Itoa(job.Priority),
		"progress": strconv.Itoa(job.Progress),
	}
	payload.Metadata = mergeMetadata(payload.Metadata, metadata)
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = v
	}
	return dst
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	out := copyMetadata(base)
	if out == nil && len(extra) == 0 {
		return nil
	}
	if out == nil {
		out = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
