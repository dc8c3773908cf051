// Package httpx provides HTTP handlers and utilities for the danavision discovery API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations. Every
// operation is scoped to the authenticated owner resolved by the identity
// middleware.
type JobHandlers struct {
	Svc *service.JobService
}

// requireOwner extracts the authenticated user id from the request context.
// Responds 401 and returns false when the identity middleware did not run or
// rejected the request.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := UserID(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return "", false
	}
	return owner, true
}

// requireJobID extracts the {id} path value. Responds 400 and returns false
// when it is missing.
func requireJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: string(apperrors.ErrCodeValidation),
			Err:     errors.New("job id is required"),
		})
		return "", false
	}
	return id, true
}

// Create handles HTTP requests to enqueue a new job for the caller.
// The job is accepted for asynchronous processing, so a successful create
// returns 202 with the pending job row.
func (h *JobHandlers) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Create(r.Context(), owner, &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// Get handles HTTP requests to fetch one of the caller's jobs.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}

	job, err := h.Svc.GetForOwner(r.Context(), id, owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetStatus handles HTTP requests for the lightweight status projection
// pollers consume while a job runs.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), id, owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// List handles HTTP requests to page through the caller's jobs with optional
// status, type and list filters.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	opts, err := jobListOptionsFromQuery(r)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	page, err := h.Svc.List(r.Context(), owner, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// jobListOptionsFromQuery parses list filters from the query string. Unknown
// status or type values are rejected rather than silently matching nothing.
func jobListOptionsFromQuery(r *http.Request) (*model.JobListOptions, error) {
	opts := &model.JobListOptions{
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
		Limit:     parseIntQuery(r, "limit", 0),
		Offset:    parseIntQuery(r, "offset", 0),
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := model.JobStatus(v)
		if !status.Valid() {
			return nil, apperrors.ValidationField("status", "unknown job status "+v)
		}
		opts.Status = &status
	}
	if v := r.URL.Query().Get("type"); v != "" {
		jobType := model.JobType(v)
		if !jobType.Valid() {
			return nil, apperrors.ValidationField("type", "unknown job type "+v)
		}
		opts.Type = &jobType
	}
	if v := r.URL.Query().Get("list_id"); v != "" {
		opts.ListID = &v
	}

	return opts, nil
}

// ListActive handles HTTP requests for the caller's pending and processing
// jobs.
func (h *JobHandlers) ListActive(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	jobs, err := h.Svc.ListActive(r.Context(), owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Stats handles HTTP requests for per-status counts of the caller's jobs.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	stats, err := h.Svc.Stats(r.Context(), owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Cancel handles HTTP requests to cancel one of the caller's jobs. Pending
// jobs come back cancelled; processing jobs come back with cancel_requested
// set and finish cancelling at the worker's next checkpoint. Cancelling a
// finished job is a 409.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}

	job, err := h.Svc.Cancel(r.Context(), id, owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Delete handles HTTP requests to remove one of the caller's terminal jobs.
// Active jobs are a 409; cancel them first.
func (h *JobHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}

	if err := h.Svc.Delete(r.Context(), id, owner); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory handles HTTP requests to delete all of the caller's terminal
// jobs. Active jobs are untouched.
func (h *JobHandlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	deleted, err := h.Svc.ClearHistory(r.Context(), owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
