package core

import (
	"context"
	"time"
)

// JobScheduler defines the interface for the scheduler service.
type JobScheduler interface {
	// Tick scans for stale local discovery areas and enqueues refresh jobs.
	// Returns the number of refresh jobs enqueued.
	Tick(ctx context.Context, now time.Time) (int, error)
}

// SchedulerConfig holds configuration for the refresh scheduler.
type SchedulerConfig struct {
	// BatchSize caps how many stale areas one tick refreshes.
	BatchSize int `json:"batch_size"`
	// StaleAfter is the age past which local discovery data is re-queued.
	StaleAfter time.Duration `json:"stale_after"`
	// RefreshPriority is the job priority for scheduler-enqueued refreshes.
	// Background refreshes run below user-initiated work.
	RefreshPriority int `json:"refresh_priority"`
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:       25,
		StaleAfter:      7 * 24 * time.Hour,
		RefreshPriority: -10,
	}
}
