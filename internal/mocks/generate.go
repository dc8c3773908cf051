// Package mocks provides mock implementations for testing the danavision job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), "owner-1", gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, UpdateProgress,
// Complete, Fail, Cancel, CancelRequested, MarkCancelled, List, ListActive,
// Stats, DeleteTerminal, ClearHistory
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/danavision/discovery-go/internal/core JobRepository

// Generate mock for StoreRepository interface from internal/core package.
// This creates MockStoreRepository with methods for all StoreRepository interface methods:
// Create, GetByID, GetByDomain, List, Delete, UpsertLocal, ResolveForUser,
// SetPreference, GetPreferences
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=store_repository_mock.go github.com/danavision/discovery-go/internal/core StoreRepository

// Generate mock for DiscoveryStateRepository interface from internal/core package.
// This creates MockDiscoveryStateRepository with methods for all DiscoveryStateRepository interface methods:
// Upsert, Get, ListStale
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=discovery_state_repository_mock.go github.com/danavision/discovery-go/internal/core DiscoveryStateRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// FailExpiredLeases, FailStalePendingJobs, DeleteOldJobs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/danavision/discovery-go/internal/core ReaperRepository

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete, Exists
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/danavision/discovery-go/internal/core CacheRepository

// Generate mock for ImageStore interface from internal/core package.
// This creates MockImageStore with methods for all ImageStore interface methods:
// Save, Load, Delete, Sweep
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=image_store_mock.go github.com/danavision/discovery-go/internal/core ImageStore
