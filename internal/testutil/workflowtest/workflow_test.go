package workflowtest

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/danavision/discovery-go/internal/domain/model"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 30*time.Second, opts.JobLease)
	assert.Equal(t, "workflow-user", opts.UserID)
}

func TestUniqueQueryJobRequest(t *testing.T) {
	first := UniqueQueryJobRequest()
	second := UniqueQueryJobRequest()

	assert.Equal(t, model.JobTypePriceSearch, first.Type)
	assert.NoError(t, first.Validate())
	assert.NotEqual(t, string(first.Input), string(second.Input))
}

func TestJobLifecycleWorkflow(t *testing.T) {
	WithHarness(t, DefaultOptions(), func(h *Harness) {
		helpers := h.NewHelpers()

		done := helpers.RunPriceSearchLifecycle()
		assert.Equal(t, model.JobStatusCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)

		stats := helpers.Client().Stats()
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 0, stats.Active)

		assert.Empty(t, helpers.Client().ListActive())
	})
}

func TestFailureAndHistoryWorkflow(t *testing.T) {
	WithHarness(t, DefaultOptions(), func(h *Harness) {
		helpers := h.NewHelpers()

		failed := helpers.RunFailureFlow("provider unavailable")
		if assert.NotNil(t, failed.ErrorMessage) {
			assert.Equal(t, "provider unavailable", *failed.ErrorMessage)
		}

		status := helpers.Client().JobStatus(failed.ID)
		assert.Equal(t, model.JobStatusFailed, status.Status)

		deleted := helpers.Client().ClearHistory()
		assert.Equal(t, int64(1), deleted)
		helpers.Client().GetJobExpectStatus(failed.ID, http.StatusNotFound)
	})
}

func TestCancelPendingWorkflow(t *testing.T) {
	WithHarness(t, DefaultOptions(), func(h *Harness) {
		helpers := h.NewHelpers()

		cancelled := helpers.RunCancelPendingFlow()
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)

		// A cancelled job never reaches the worker.
		assert.Nil(t, h.ReserveNext(model.JobTypePriceSearch))
	})
}

func TestCrossOwnerIsolationWorkflow(t *testing.T) {
	WithHarness(t, DefaultOptions(), func(h *Harness) {
		client := h.NewClient()
		job := client.CreateJob(UniqueQueryJobRequest())

		stranger := client.AsUser("someone-else")
		stranger.GetJobExpectStatus(job.ID, http.StatusForbidden)

		assert.Empty(t, stranger.ListActive())
		assert.Len(t, client.ListActive(), 1)
	})
}
