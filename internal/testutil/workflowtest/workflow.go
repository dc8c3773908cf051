// Package workflowtest provides an end-to-end harness for the job pipeline:
// real repositories over a test database, real services, and the API router
// served from httptest. Tests drive the owner side over HTTP and play the
// worker side through direct service calls, the same split production runs
// with the in-process worker.
package workflowtest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	httpx "github.com/danavision/discovery-go/internal/http"
	"github.com/danavision/discovery-go/internal/service"
	"github.com/danavision/discovery-go/internal/testutil"
)

// Harness wires repositories, services, and the API router over a real test
// database. The embedded HTTP server runs the production router with
// header-mode identity, so requests behave exactly as they do for API
// clients.
type Harness struct {
	t  testutil.TestingTB
	db *sql.DB
	ts *httptest.Server

	JobRepo   core.JobRepository
	StoreRepo core.StoreRepository

	JobSvc   *service.JobService
	StoreSvc *service.StoreService

	// UserID is the identity every harness client request carries.
	UserID string

	lease time.Duration
}

// Options configures the workflow harness.
type Options struct {
	// JobLease sets the default lease duration for worker-side reservations.
	JobLease time.Duration
	// UserID overrides the identity the harness client sends. Defaults to
	// "workflow-user".
	UserID string
}

// DefaultOptions returns harness options for plain job workflow testing.
func DefaultOptions() Options {
	return Options{
		JobLease: 30 * time.Second,
		UserID:   "workflow-user",
	}
}

// NewHarness creates a workflow harness with all components wired up.
func NewHarness(t testutil.TestingTB, db *sql.DB, opts Options) *Harness {
	t.Helper()

	if opts.JobLease == 0 {
		opts.JobLease = 30 * time.Second
	}
	if opts.UserID == "" {
		opts.UserID = "workflow-user"
	}

	h := &Harness{
		t:      t,
		db:     db,
		UserID: opts.UserID,
		lease:  opts.JobLease,
	}

	jobRepo := data.NewJobRepo(db, data.RepoConfig{})
	storeRepo := data.NewStoreRepo(db)
	h.JobRepo = jobRepo
	h.StoreRepo = storeRepo

	h.JobSvc = service.MustNewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: opts.JobLease,
	})
	h.StoreSvc = service.MustNewStoreService(service.StoreServiceOptions{
		Repo: storeRepo,
	})

	router := httpx.NewRouter(httpx.RouterServices{
		Jobs:   h.JobSvc,
		Stores: h.StoreSvc,
		Identity: httpx.Identity(httpx.IdentityConfig{
			DefaultUserID: opts.UserID,
		}),
	})
	h.ts = httptest.NewServer(router)

	return h
}

// Close cleans up all resources.
func (h *Harness) Close() {
	h.t.Helper()

	if h.ts != nil {
		h.ts.Close()
	}
	h.JobSvc.StopAllListeners()
}

// BaseURL returns the base URL of the test HTTP server.
func (h *Harness) BaseURL() string {
	return h.ts.URL
}

// --- worker-side actions ---
//
// The worker runs in-process in production, so the harness plays its part
// with direct service calls rather than HTTP.

// ReserveNext claims the next pending job across the given types, or all
// types when none are given. Returns nil when nothing is pending.
func (h *Harness) ReserveNext(jobTypes ...model.JobType) *model.Job {
	h.t.Helper()

	if len(jobTypes) == 0 {
		jobTypes = model.AllJobTypes()
	}
	job, err := h.JobSvc.ReserveNext(context.Background(), jobTypes, h.lease)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil
		}
		h.t.Fatalf("reserve next job: %v", err)
	}
	return job
}

// MustReserve claims the next pending job of the given type and fails the
// test when nothing is pending.
func (h *Harness) MustReserve(jobType model.JobType) *model.Job {
	h.t.Helper()

	job := h.ReserveNext(jobType)
	if job == nil {
		h.t.Fatalf("expected a pending %s job to reserve", jobType)
	}
	return job
}

// Heartbeat extends the lease on a processing job.
func (h *Harness) Heartbeat(jobID string, extend time.Duration) {
	h.t.Helper()

	ok, err := h.JobSvc.Heartbeat(context.Background(), jobID, extend)
	if err != nil {
		h.t.Fatalf("heartbeat job %s: %v", jobID, err)
	}
	if !ok {
		h.t.Fatalf("heartbeat job %s: lease no longer held", jobID)
	}
}

// ReportProgress writes a progress checkpoint for a processing job.
func (h *Harness) ReportProgress(jobID string, progress int, output json.RawMessage) {
	h.t.Helper()

	ok, err := h.JobSvc.UpdateProgress(context.Background(), core.UpdateJobProgressParams{
		ID:       jobID,
		Progress: progress,
		Output:   output,
	})
	if err != nil {
		h.t.Fatalf("update progress for job %s: %v", jobID, err)
	}
	if !ok {
		h.t.Fatalf("update progress for job %s: job is not processing", jobID)
	}
}

// Complete finishes a processing job with the given output.
func (h *Harness) Complete(jobID string, output json.RawMessage) {
	h.t.Helper()

	ok, err := h.JobSvc.Complete(context.Background(), core.CompleteJobParams{
		ID:     jobID,
		Output: output,
	})
	if err != nil {
		h.t.Fatalf("complete job %s: %v", jobID, err)
	}
	if !ok {
		h.t.Fatalf("complete job %s: job is not processing", jobID)
	}
}

// Fail marks a processing job failed with the given error message.
func (h *Harness) Fail(jobID, errorMsg string) {
	h.t.Helper()

	ok, err := h.JobSvc.Fail(context.Background(), core.FailJobParams{
		ID:       jobID,
		ErrorMsg: errorMsg,
	})
	if err != nil {
		h.t.Fatalf("fail job %s: %v", jobID, err)
	}
	if !ok {
		h.t.Fatalf("fail job %s: job is not processing", jobID)
	}
}

// --- owner-side HTTP client ---

// Client makes owner-facing requests against the harness API server,
// carrying the harness identity header on every call.
type Client struct {
	t       testutil.TestingTB
	baseURL string
	userID  string
	client  *http.Client
}

// NewClient creates an HTTP client bound to the harness server and identity.
func (h *Harness) NewClient() *Client {
	return &Client{
		t:       h.t,
		baseURL: h.BaseURL(),
		userID:  h.UserID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AsUser returns a client that acts as a different owner. Workflow tests use
// it to verify cross-owner isolation.
func (c *Client) AsUser(userID string) *Client {
	clone := *c
	clone.userID = userID
	return &clone
}

// DoJSON performs a request with the harness identity header and returns the
// raw response. Callers own the response body.
func (c *Client) DoJSON(method, path string, payload any) *http.Response {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

// decodeResponse checks the status code and decodes the body into out.
func (c *Client) decodeResponse(resp *http.Response, wantStatus int, out any) {
	c.t.Helper()

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != wantStatus {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			c.t.Fatalf("status %d (want %d), failed to read response: %v", resp.StatusCode, wantStatus, readErr)
		}
		c.t.Fatalf("status %d (want %d), response: %s", resp.StatusCode, wantStatus, string(body))
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.t.Fatalf("decode response: %v", err)
	}
}

// CreateJob enqueues a job via the API and returns the accepted pending row.
func (c *Client) CreateJob(req *model.CreateJobRequest) model.Job {
	c.t.Helper()

	var job model.Job
	c.decodeResponse(c.DoJSON(http.MethodPost, "/api/jobs", req), http.StatusAccepted, &job)
	return job
}

// GetJob fetches one of the caller's jobs.
func (c *Client) GetJob(jobID string) model.Job {
	c.t.Helper()

	var job model.Job
	c.decodeResponse(c.DoJSON(http.MethodGet, "/api/jobs/"+jobID, nil), http.StatusOK, &job)
	return job
}

// GetJobExpectStatus fetches a job and asserts on the HTTP status, for tests
// that expect a rejection rather than a row.
func (c *Client) GetJobExpectStatus(jobID string, wantStatus int) {
	c.t.Helper()
	c.decodeResponse(c.DoJSON(http.MethodGet, "/api/jobs/"+jobID, nil), wantStatus, nil)
}

// JobStatus fetches the polling projection for a job.
func (c *Client) JobStatus(jobID string) model.JobStatusResponse {
	c.t.Helper()

	var status model.JobStatusResponse
	c.decodeResponse(c.DoJSON(http.MethodGet, "/api/jobs/"+jobID+"/status", nil), http.StatusOK, &status)
	return status
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(jobID string) model.Job {
	c.t.Helper()

	var job model.Job
	c.decodeResponse(c.DoJSON(http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil), http.StatusOK, &job)
	return job
}

// DeleteJob removes a terminal job.
func (c *Client) DeleteJob(jobID string) {
	c.t.Helper()
	c.decodeResponse(c.DoJSON(http.MethodDelete, "/api/jobs/"+jobID, nil), http.StatusNoContent, nil)
}

// ClearHistory deletes all of the caller's terminal jobs and returns the
// deleted count.
func (c *Client) ClearHistory() int64 {
	c.t.Helper()

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	c.decodeResponse(c.DoJSON(http.MethodDelete, "/api/jobs", nil), http.StatusOK, &out)
	return out.Deleted
}

// ListActive returns the caller's pending and processing jobs.
func (c *Client) ListActive() []*model.Job {
	c.t.Helper()

	var out struct {
		Jobs []*model.Job `json:"jobs"`
	}
	c.decodeResponse(c.DoJSON(http.MethodGet, "/api/jobs/active", nil), http.StatusOK, &out)
	return out.Jobs
}

// Stats returns the caller's per-status job counts.
func (c *Client) Stats() model.JobStats {
	c.t.Helper()

	var stats model.JobStats
	c.decodeResponse(c.DoJSON(http.MethodGet, "/api/jobs/stats", nil), http.StatusOK, &stats)
	return stats
}

// --- high-level workflows ---

// Helpers provides high-level workflow flows composed from client and
// harness actions.
type Helpers struct {
	harness *Harness
	client  *Client
}

// NewHelpers creates workflow helpers for the given harness.
func (h *Harness) NewHelpers() *Helpers {
	return &Helpers{
		harness: h,
		client:  h.NewClient(),
	}
}

// Client returns the underlying owner-side client.
func (w *Helpers) Client() *Client {
	return w.client
}

// RunPriceSearchLifecycle drives one price-search job through the full happy
// path: enqueue over HTTP, reserve and heartbeat as the worker, complete with
// output, then read the finished job back over HTTP.
func (w *Helpers) RunPriceSearchLifecycle() model.Job {
	w.harness.t.Helper()

	created := w.client.CreateJob(testutil.PriceSearchJobRequest())
	if created.Status != model.JobStatusPending {
		w.harness.t.Fatalf("expected created job pending, got %s", created.Status)
	}

	reserved := w.harness.MustReserve(model.JobTypePriceSearch)
	if reserved.ID != created.ID {
		w.harness.t.Fatalf("expected reserved job %s, got %s", created.ID, reserved.ID)
	}

	w.harness.Heartbeat(reserved.ID, 30*time.Second)
	w.harness.ReportProgress(reserved.ID, 50, nil)
	w.harness.Complete(reserved.ID, json.RawMessage(`{"query":"usb-c charger","discovery":{"results":[]}}`))

	done := w.client.GetJob(created.ID)
	if done.Status != model.JobStatusCompleted {
		w.harness.t.Fatalf("expected completed job, got %s", done.Status)
	}
	if len(done.Output) == 0 {
		w.harness.t.Fatalf("expected completed job %s to carry output", done.ID)
	}
	return done
}

// RunFailureFlow drives a job to failure and returns the failed row as the
// owner sees it.
func (w *Helpers) RunFailureFlow(errorMsg string) model.Job {
	w.harness.t.Helper()

	created := w.client.CreateJob(testutil.PriceSearchJobRequest())
	reserved := w.harness.MustReserve(model.JobTypePriceSearch)
	if reserved.ID != created.ID {
		w.harness.t.Fatalf("expected reserved job %s, got %s", created.ID, reserved.ID)
	}
	w.harness.Fail(reserved.ID, errorMsg)

	failed := w.client.GetJob(created.ID)
	if failed.Status != model.JobStatusFailed {
		w.harness.t.Fatalf("expected failed job, got %s", failed.Status)
	}
	return failed
}

// RunCancelPendingFlow enqueues a job and cancels it before any worker
// reserves it. Pending jobs cancel immediately.
func (w *Helpers) RunCancelPendingFlow() model.Job {
	w.harness.t.Helper()

	created := w.client.CreateJob(testutil.LowPriorityJobRequest())
	cancelled := w.client.CancelJob(created.ID)
	if cancelled.Status != model.JobStatusCancelled {
		w.harness.t.Fatalf("expected cancelled job, got %s", cancelled.Status)
	}
	return cancelled
}

// UniqueQueryJobRequest builds a price-search request with a unique query so
// concurrent workflow tests never collide on cached results.
func UniqueQueryJobRequest() *model.CreateJobRequest {
	query := fmt.Sprintf("workflow item %d", time.Now().UnixNano())
	return testutil.NewJobRequest().
		WithType(model.JobTypePriceSearch).
		WithInputString(`{"query": "` + query + `"}`).
		Build()
}

// WithHarness sets up a harness over an isolated test database, runs fn, and
// tears everything down.
func WithHarness(t testutil.TestingTB, opts Options, fn func(*Harness)) {
	t.Helper()

	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		harness := NewHarness(t, db, opts)
		defer harness.Close()
		fn(harness)
	})
}
