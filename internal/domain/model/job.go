// Package model defines the core data types and structures used throughout the danavision discovery engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeProductIdentification identifies a product from an image.
	JobTypeProductIdentification JobType = "product-identification"
	// JobTypeImageAnalysis runs a free-form vision analysis over an image.
	JobTypeImageAnalysis JobType = "image-analysis"
	// JobTypePriceSearch runs tiered price discovery for a product query.
	JobTypePriceSearch JobType = "price-search"
	// JobTypeSmartFill proposes list additions from list context.
	JobTypeSmartFill JobType = "smart-fill"
	// JobTypePriceRefresh re-runs price discovery bypassing the cache.
	JobTypePriceRefresh JobType = "price-refresh"
	// JobTypeDiscovery runs identification (when given an image) plus price discovery.
	JobTypeDiscovery JobType = "discovery"
	// JobTypeDiscoveryRefresh re-runs discovery bypassing caches.
	JobTypeDiscoveryRefresh JobType = "discovery-refresh"
	// JobTypeNearbyStoreDiscovery finds local stores for a postal area.
	JobTypeNearbyStoreDiscovery JobType = "nearby-store-discovery"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being processed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before completion.
	JobStatusCancelled JobStatus = "cancelled"
)

// AllJobTypes lists every job type the worker can execute.
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeProductIdentification,
		JobTypeImageAnalysis,
		JobTypePriceSearch,
		JobTypeSmartFill,
		JobTypePriceRefresh,
		JobTypeDiscovery,
		JobTypeDiscoveryRefresh,
		JobTypeNearbyStoreDiscovery,
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrRunCancelled is returned by run checkpoints once cancellation has been
// requested for the executing job. Handlers stop at the next stage boundary
// and hand back partial output.
var ErrRunCancelled = errors.New("run cancelled")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeProductIdentification,
		JobTypeImageAnalysis,
		JobTypePriceSearch,
		JobTypeSmartFill,
		JobTypePriceRefresh,
		JobTypeDiscovery,
		JobTypeDiscoveryRefresh,
		JobTypeNearbyStoreDiscovery:
		return true
	default:
		return false
	}
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that absorb: once reached, a job never
// leaves them.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Active returns true for statuses that still occupy the pipeline.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// ClampProgress clamps a reported progress value into [0, 100].
func ClampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Job represents a discovery job with all its metadata and status information.
// Jobs are owned: every boundary read and mutation is scoped to OwnerID.
type Job struct {
	ID              string          `json:"id"                         db:"id"`
	OwnerID         string          `json:"owner_id"                   db:"owner_id"`
	Type            JobType         `json:"type"                       db:"type"`
	Status          JobStatus       `json:"status"                     db:"status"`
	Priority        int             `json:"priority"                   db:"priority"`
	Input           json.RawMessage `json:"input"                      db:"input"`
	Output          json.RawMessage `json:"output,omitempty"           db:"output"`
	ErrorMessage    *string         `json:"error_message,omitempty"    db:"error_message"`
	Progress        int             `json:"progress"                   db:"progress"`
	CancelRequested bool            `json:"cancel_requested"           db:"cancel_requested"`
	ListID          *string         `json:"list_id,omitempty"          db:"list_id"`
	ItemID          *string         `json:"item_id,omitempty"          db:"item_id"`
	LeaseExpiresAt  *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type     JobType         `json:"type"`
	Input    json.RawMessage `json:"input"`
	Priority int             `json:"priority,omitempty"`
	ListID   *string         `json:"list_id,omitempty"`
	ItemID   *string         `json:"item_id,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Input) == 0 {
		return errors.New("input is required")
	}
	if !json.Valid(r.Input) {
		return errors.New("input must be valid JSON")
	}
	if r.Priority < -100 || r.Priority > 100 {
		return errors.New("priority must be between -100 and 100")
	}
	return nil
}

// JobStats represents per-owner statistics about jobs in different states.
// Total counts every job; Active counts pending plus processing.
type JobStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Active     int `json:"active"`
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}
