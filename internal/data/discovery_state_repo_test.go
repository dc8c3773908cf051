package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/testutil"
)

func TestDiscoveryStateRepo_UpsertAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("records and refreshes a discovery pass", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			fixed := testutil.TestTime()
			timeProvider := NewFixedTimeProvider(fixed)
			repo := NewDiscoveryStateRepoWithTimeProvider(db, timeProvider)
			ctx := context.Background()

			state, err := repo.Upsert(ctx, core.UpsertDiscoveryStateParams{
				OwnerID:    testOwner,
				PostalCode: "M5V 3L9",
				StoreType:  "Grocery",
				StoreCount: 4,
			})
			require.NoError(t, err)

			// Postal code and store type are normalized on the way in.
			assert.Equal(t, "m5v3l9", state.PostalCode)
			assert.Equal(t, "grocery", state.StoreType)
			assert.Equal(t, 4, state.StoreCount)
			assert.True(t, state.DiscoveredAt.Equal(fixed))
			assert.Nil(t, state.UpdatedAt)

			// A later pass moves discovered_at forward and replaces the count.
			timeProvider.AddTime(48 * time.Hour)
			refreshed, err := repo.Upsert(ctx, core.UpsertDiscoveryStateParams{
				OwnerID:    testOwner,
				PostalCode: "m5v3l9",
				StoreType:  "grocery",
				StoreCount: 6,
			})
			require.NoError(t, err)
			assert.Equal(t, state.ID, refreshed.ID)
			assert.Equal(t, 6, refreshed.StoreCount)
			assert.True(t, refreshed.DiscoveredAt.Equal(fixed.Add(48*time.Hour)))
			assert.NotNil(t, refreshed.UpdatedAt)
		})
	})

	t.Run("get normalizes the key the same way", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewDiscoveryStateRepo(db)
			ctx := context.Background()

			_, err := repo.Upsert(ctx, core.UpsertDiscoveryStateParams{
				OwnerID:    testOwner,
				PostalCode: "v6b 1a1",
				StoreType:  "pharmacy",
				StoreCount: 2,
			})
			require.NoError(t, err)

			got, err := repo.Get(ctx, core.DiscoveryStateKey{
				OwnerID:    testOwner,
				PostalCode: "V6B 1A1",
				StoreType:  "Pharmacy",
			})
			require.NoError(t, err)
			assert.Equal(t, 2, got.StoreCount)

			_, err = repo.Get(ctx, core.DiscoveryStateKey{
				OwnerID:    "owner-2",
				PostalCode: "v6b1a1",
				StoreType:  "pharmacy",
			})
			require.ErrorIs(t, err, ErrDiscoveryStateNotFound)
		})
	})

	t.Run("key validation", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewDiscoveryStateRepo(db)
			ctx := context.Background()

			tests := []struct {
				name   string
				params core.UpsertDiscoveryStateParams
				errMsg string
			}{
				{
					name:   "missing owner",
					params: core.UpsertDiscoveryStateParams{PostalCode: "m5v3l9", StoreType: "grocery"},
					errMsg: "owner id is required",
				},
				{
					name:   "missing postal code",
					params: core.UpsertDiscoveryStateParams{OwnerID: testOwner, StoreType: "grocery"},
					errMsg: "postal code is required",
				},
				{
					name:   "missing store type",
					params: core.UpsertDiscoveryStateParams{OwnerID: testOwner, PostalCode: "m5v3l9"},
					errMsg: "store type is required",
				},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					_, err := repo.Upsert(ctx, tt.params)
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.errMsg)
				})
			}
		})
	})
}

func TestDiscoveryStateRepo_ListStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		fixed := testutil.TestTime()
		timeProvider := NewFixedTimeProvider(fixed)
		repo := NewDiscoveryStateRepoWithTimeProvider(db, timeProvider)
		ctx := context.Background()

		// Three areas discovered at different points in the past.
		areas := []struct {
			postal string
			age    time.Duration
		}{
			{postal: "m5v3l9", age: 10 * 24 * time.Hour},
			{postal: "v6b1a1", age: 8 * 24 * time.Hour},
			{postal: "h2y1c6", age: 2 * 24 * time.Hour},
		}
		for _, area := range areas {
			timeProvider.SetTime(fixed.Add(-area.age))
			_, err := repo.Upsert(ctx, core.UpsertDiscoveryStateParams{
				OwnerID:    testOwner,
				PostalCode: area.postal,
				StoreType:  "grocery",
				StoreCount: 3,
			})
			require.NoError(t, err)
		}
		timeProvider.SetTime(fixed)

		// Only areas older than a week are stale, oldest first.
		stale, err := repo.ListStale(ctx, 7*24*time.Hour, 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		assert.Equal(t, "m5v3l9", stale[0].PostalCode)
		assert.Equal(t, "v6b1a1", stale[1].PostalCode)

		// Limit truncates from the oldest end.
		stale, err = repo.ListStale(ctx, 7*24*time.Hour, 1)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "m5v3l9", stale[0].PostalCode)

		// Nothing stale within a generous window.
		stale, err = repo.ListStale(ctx, 30*24*time.Hour, 10)
		require.NoError(t, err)
		assert.Empty(t, stale)

		_, err = repo.ListStale(ctx, 0, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maxAge must be positive")

		_, err = repo.ListStale(ctx, time.Hour, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit must be positive")
	})
}
