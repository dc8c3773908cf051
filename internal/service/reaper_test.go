package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	failExpiredLeasesCalled int
	failExpiredLeasesCount  int64
	failExpiredLeasesError  error

	failStalePendingJobsCalled int
	failStalePendingJobsCount  int64
	failStalePendingJobsError  error

	deleteOldJobsCalls   map[model.JobStatus]int
	deleteOldJobsCounts  map[model.JobStatus]int64
	deleteOldJobsMaxAges map[model.JobStatus]time.Duration
	deleteOldJobsError   error
}

func (m *mockReaperRepo) FailExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	m.failExpiredLeasesCalled++
	if m.failExpiredLeasesError != nil {
		return 0, m.failExpiredLeasesError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failExpiredLeasesCalled == 1 {
		return m.failExpiredLeasesCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) FailStalePendingJobs(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	m.failStalePendingJobsCalled++
	if m.failStalePendingJobsError != nil {
		return 0, m.failStalePendingJobsError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failStalePendingJobsCalled == 1 {
		return m.failStalePendingJobsCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldJobs(
	ctx context.Context,
	params core.DeleteOldJobsParams,
) (int64, error) {
	if m.deleteOldJobsCalls == nil {
		m.deleteOldJobsCalls = make(map[model.JobStatus]int)
	}
	if m.deleteOldJobsMaxAges == nil {
		m.deleteOldJobsMaxAges = make(map[model.JobStatus]time.Duration)
	}

	m.deleteOldJobsCalls[params.Status]++
	m.deleteOldJobsMaxAges[params.Status] = params.MaxAge
	if m.deleteOldJobsError != nil {
		return 0, m.deleteOldJobsError
	}

	// Return the configured count on the first call per status, then 0 to
	// simulate batch exhaustion
	if m.deleteOldJobsCalls[params.Status] == 1 {
		return m.deleteOldJobsCounts[params.Status], nil
	}
	return 0, nil
}

// mockImageSweeper implements core.ImageStore for sweep testing.
type mockImageSweeper struct {
	sweepCalled int
	sweepMaxAge time.Duration
	sweepCount  int
	sweepError  error
}

func (m *mockImageSweeper) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockImageSweeper) Load(ctx context.Context, ref string) ([]byte, string, error) {
	return nil, "", errors.New("not implemented")
}

func (m *mockImageSweeper) Delete(ctx context.Context, ref string) error {
	return nil
}

func (m *mockImageSweeper) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	m.sweepCalled++
	m.sweepMaxAge = maxAge
	return m.sweepCount, m.sweepError
}

func reaperTestConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       5 * time.Minute,
		PendingMaxAge:  1 * time.Hour,
		TerminalMaxAge: 30 * 24 * time.Hour,
		BatchSize:      1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: reaperTestConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{
			Repo:   nil,
			Config: reaperTestConfig(),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{
			failExpiredLeasesCount:    2,
			failStalePendingJobsCount: 5,
			deleteOldJobsCounts: map[model.JobStatus]int64{
				model.JobStatusCompleted: 10,
				model.JobStatusFailed:    3,
				model.JobStatusCancelled: 1,
			},
		}
		images := &mockImageSweeper{sweepCount: 4}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Images: images,
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))

		assert.Equal(t, 2, repo.failExpiredLeasesCalled, "lease step loops until exhausted")
		assert.Equal(t, 2, repo.failStalePendingJobsCalled)
		for _, status := range []model.JobStatus{
			model.JobStatusCompleted,
			model.JobStatusFailed,
			model.JobStatusCancelled,
		} {
			assert.Equal(t, 2, repo.deleteOldJobsCalls[status], "delete step for %s loops until exhausted", status)
			assert.Equal(t, 30*24*time.Hour, repo.deleteOldJobsMaxAges[status])
		}
		assert.Equal(t, 1, images.sweepCalled)
		assert.Equal(t, 30*24*time.Hour, images.sweepMaxAge, "image sweep follows job retention")
	})

	t.Run("aggregates step errors without stopping later steps", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStalePendingJobsError: errors.New("pg down"),
			deleteOldJobsCounts: map[model.JobStatus]int64{
				model.JobStatusCompleted: 1,
			},
		}
		images := &mockImageSweeper{sweepCount: 2}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Images: images,
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale pending jobs")

		assert.Positive(t, repo.deleteOldJobsCalls[model.JobStatusCompleted],
			"later steps must still run after an earlier failure")
		assert.Equal(t, 1, images.sweepCalled)
	})

	t.Run("skips image sweep without an image store", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))
	})

	t.Run("surfaces image sweep errors", func(t *testing.T) {
		images := &mockImageSweeper{sweepError: errors.New("disk gone")}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Images: images,
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sweep stored images")
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops cleanly on context cancellation", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: reaperTestConfig(),
			Logger: slog.Default(),
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Give the loop a moment to pass jitter and the initial cleanup
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err, "graceful shutdown must not report an error")
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not stop after context cancellation")
		}
	})

	t.Run("initial cleanup errors do not kill the loop", func(t *testing.T) {
		repo := &mockReaperRepo{failExpiredLeasesError: errors.New("pg down")}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
			assert.Positive(t, repo.failExpiredLeasesCalled)
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not stop after context cancellation")
		}
	})
}

func TestReaperService_failExpiredLeases(t *testing.T) {
	repo := &mockReaperRepo{failExpiredLeasesCount: 7}

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: reaperTestConfig(),
	})
	require.NoError(t, err)

	count, err := svc.failExpiredLeases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, 2, repo.failExpiredLeasesCalled)
}

func TestReaperService_failStalePendingJobs(t *testing.T) {
	repo := &mockReaperRepo{failStalePendingJobsCount: 3}

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: reaperTestConfig(),
	})
	require.NoError(t, err)

	count, err := svc.failStalePendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestReaperService_deleteOldJobsWithStatus(t *testing.T) {
	repo := &mockReaperRepo{
		deleteOldJobsCounts: map[model.JobStatus]int64{
			model.JobStatusCancelled: 9,
		},
	}

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: reaperTestConfig(),
	})
	require.NoError(t, err)

	count, err := svc.deleteOldJobsWithStatus(model.JobStatusCancelled)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)
	assert.Equal(t, 30*24*time.Hour, repo.deleteOldJobsMaxAges[model.JobStatusCancelled])
}
