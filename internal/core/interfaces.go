package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// UpdateJobProgressParams groups parameters for JobRepository.UpdateProgress.
// Progress is clamped to [0, 100]; a nil Output leaves the stored output
// untouched, otherwise the patch is merged key-by-key over the existing JSON.
type UpdateJobProgressParams struct {
	ID       string
	Progress int
	Output   json.RawMessage
}

// CompleteJobParams groups parameters for JobRepository.Complete.
type CompleteJobParams struct {
	ID     string
	Output json.RawMessage
}

// FailJobParams groups parameters for JobRepository.Fail. Output carries
// whatever partial output the handler produced before failing; nil leaves
// the stored output untouched.
type FailJobParams struct {
	ID       string
	ErrorMsg string
	Output   json.RawMessage
}

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, ownerID string, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// ReserveNext claims the next pending job across the given types,
	// ordered by priority (desc) then creation time (asc). Returns
	// model.ErrNoJobsAvailable when nothing is pending.
	ReserveNext(ctx context.Context, jobTypes []model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)

	// UpdateProgress records forward progress on a processing job. Terminal
	// jobs are left untouched and reported as false, not as an error.
	UpdateProgress(ctx context.Context, params UpdateJobProgressParams) (bool, error)
	Complete(ctx context.Context, params CompleteJobParams) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (bool, error)

	// Cancel applies the two-phase cancel: pending jobs flip straight to
	// cancelled, processing jobs get cancel_requested set and keep running
	// until the next checkpoint. Terminal jobs are returned alongside a
	// not-cancellable error.
	Cancel(ctx context.Context, id string) (*model.Job, error)
	CancelRequested(ctx context.Context, id string) (bool, error)

	// MarkCancelled finalizes a cooperative cancel: the worker calls it after
	// a checkpoint observed cancel_requested. Only a processing job with the
	// flag set transitions; the bool reports whether it did.
	MarkCancelled(ctx context.Context, id string) (bool, error)

	List(ctx context.Context, ownerID string, opts *model.JobListOptions) (*model.JobListPage, error)
	ListActive(ctx context.Context, ownerID string) ([]*model.Job, error)
	Stats(ctx context.Context, ownerID string) (*model.JobStats, error)

	// DeleteTerminal removes one terminal job owned by ownerID. Active or
	// foreign jobs are not touched; the bool reports whether a row went away.
	DeleteTerminal(ctx context.Context, id, ownerID string) (bool, error)

	// ClearHistory removes all terminal jobs for an owner and returns the
	// number of rows deleted.
	ClearHistory(ctx context.Context, ownerID string) (int64, error)
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, ownerID string, req *model.CreateJobRequest) (*model.Job, error)
}

// StoreRepository defines the interface for store and preference data operations.
type StoreRepository interface {
	Create(ctx context.Context, req *model.CreateStoreRequest) (*model.Store, error)
	GetByID(ctx context.Context, id string) (*model.Store, error)
	GetByDomain(ctx context.Context, domain string) (*model.Store, error)
	List(ctx context.Context, opts model.StoreListOptions) ([]*model.Store, error)
	Delete(ctx context.Context, id string) (bool, error)

	// UpsertLocal records an auto-configured local store discovered near a
	// postal code, keyed by normalized domain.
	UpsertLocal(ctx context.Context, params UpsertLocalStoreParams) (*model.Store, error)

	// ResolveForUser merges active stores with one user's preferences and
	// returns them in discovery query order: favorites first, then effective
	// priority descending, then stable insertion order.
	ResolveForUser(ctx context.Context, userID string) ([]*model.ResolvedStore, error)

	SetPreference(ctx context.Context, params SetStorePreferenceParams) (*model.StorePreference, error)
	GetPreferences(ctx context.Context, userID string) ([]*model.StorePreference, error)
}

// UpsertLocalStoreParams groups parameters for StoreRepository.UpsertLocal.
type UpsertLocalStoreParams struct {
	Name      string
	Domain    string
	Category  string
	Latitude  *float64
	Longitude *float64
}

// SetStorePreferenceParams groups parameters for StoreRepository.SetPreference.
type SetStorePreferenceParams struct {
	UserID  string
	StoreID string
	Req     *model.UpdateStorePreferenceRequest
}

// DiscoveryStateRepository tracks when local stores were last discovered per
// (owner, postal code, store type) area, so the scheduler can refresh stale
// areas proactively.
type DiscoveryStateRepository interface {
	Upsert(ctx context.Context, params UpsertDiscoveryStateParams) (*model.LocalDiscoveryState, error)
	Get(ctx context.Context, params DiscoveryStateKey) (*model.LocalDiscoveryState, error)

	// ListStale returns state rows whose discovered_at is older than maxAge,
	// oldest first, up to limit rows.
	ListStale(ctx context.Context, maxAge time.Duration, limit int) ([]*model.LocalDiscoveryState, error)
}

// UpsertDiscoveryStateParams groups parameters for DiscoveryStateRepository.Upsert.
type UpsertDiscoveryStateParams struct {
	OwnerID    string
	PostalCode string
	StoreType  string
	StoreCount int
}

// DiscoveryStateKey identifies one discovery state row.
type DiscoveryStateKey struct {
	OwnerID    string
	PostalCode string
	StoreType  string
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailExpiredLeases marks processing jobs whose lease has lapsed as
	// failed. Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailExpiredLeases(ctx context.Context, batchSize int) (int64, error)

	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given terminal status older than
	// maxAge. Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// ImageStore persists uploaded image bytes outside the database and hands
// back opaque references the job payloads carry.
type ImageStore interface {
	// Save stores image bytes and returns the reference used to retrieve them.
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	// Load retrieves image bytes and their content type by reference.
	Load(ctx context.Context, ref string) ([]byte, string, error)
	// Delete removes a stored image. Missing references are not an error.
	Delete(ctx context.Context, ref string) error
	// Sweep removes images older than maxAge. After terminal jobs pass out of
	// retention nothing references their images, so age alone decides. Returns
	// the number of images removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}
