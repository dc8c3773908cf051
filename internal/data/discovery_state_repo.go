package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data/pgxutil"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// ErrDiscoveryStateNotFound is returned when no state row exists for a key.
var ErrDiscoveryStateNotFound = errors.New("discovery state not found")

// DiscoveryStateRepo persists per-area local store discovery bookkeeping.
type DiscoveryStateRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDiscoveryStateRepo creates a new DiscoveryStateRepo with real time provider.
func NewDiscoveryStateRepo(db *sql.DB) *DiscoveryStateRepo {
	return &DiscoveryStateRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDiscoveryStateRepoWithTimeProvider creates a new DiscoveryStateRepo with a
// custom time provider (useful for tests).
func NewDiscoveryStateRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DiscoveryStateRepo {
	return &DiscoveryStateRepo{DB: db, timeProvider: tp}
}

const discoveryStateColumns = `id, owner_id, postal_code, store_type, store_count,
       discovered_at, created_at, updated_at`

// Upsert records a completed discovery pass for an area, resetting its
// discovered_at to now.
func (r *DiscoveryStateRepo) Upsert(ctx context.Context, params core.UpsertDiscoveryStateParams) (*model.LocalDiscoveryState, error) {
	if err := validateDiscoveryKey(params.OwnerID, params.PostalCode, params.StoreType); err != nil {
		return nil, err
	}
	now := r.timeProvider.Now().UTC()

	var out model.LocalDiscoveryState
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO local_discovery_state (owner_id, postal_code, store_type, store_count, discovered_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id, postal_code, store_type) DO UPDATE SET
				store_count = EXCLUDED.store_count,
				discovered_at = EXCLUDED.discovered_at,
				updated_at = $5
			RETURNING `+discoveryStateColumns,
			params.OwnerID,
			normalizePostal(params.PostalCode),
			strings.ToLower(strings.TrimSpace(params.StoreType)),
			params.StoreCount,
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.LocalDiscoveryState])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to upsert discovery state: %w", err)
	}
	return &out, nil
}

// Get retrieves the state row for one (owner, postal code, store type) area.
func (r *DiscoveryStateRepo) Get(ctx context.Context, params core.DiscoveryStateKey) (*model.LocalDiscoveryState, error) {
	if err := validateDiscoveryKey(params.OwnerID, params.PostalCode, params.StoreType); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + discoveryStateColumns + `
		FROM local_discovery_state
		WHERE owner_id = $1 AND postal_code = $2 AND store_type = $3`

	var out model.LocalDiscoveryState
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query,
			params.OwnerID,
			normalizePostal(params.PostalCode),
			strings.ToLower(strings.TrimSpace(params.StoreType)),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.LocalDiscoveryState])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDiscoveryStateNotFound
		}
		return nil, fmt.Errorf("failed to get discovery state: %w", err)
	}
	return &out, nil
}

// ListStale returns rows whose discovered_at is older than maxAge, oldest
// first. The scheduler turns each row into a refresh job.
func (r *DiscoveryStateRepo) ListStale(ctx context.Context, maxAge time.Duration, limit int) ([]*model.LocalDiscoveryState, error) {
	if maxAge <= 0 {
		return nil, errors.New("maxAge must be positive")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	query := `
		SELECT ` + discoveryStateColumns + `
		FROM local_discovery_state
		WHERE discovered_at < $1
		ORDER BY discovered_at ASC
		LIMIT $2`

	var rowsOut []model.LocalDiscoveryState
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, cutoff, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.LocalDiscoveryState])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list stale discovery state: %w", err)
	}

	res := make([]*model.LocalDiscoveryState, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

func validateDiscoveryKey(ownerID, postalCode, storeType string) error {
	if ownerID == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(postalCode) == "" {
		return errors.New("postal code is required")
	}
	if strings.TrimSpace(storeType) == "" {
		return errors.New("store type is required")
	}
	return nil
}

// normalizePostal matches the cache key normalization so a cache row and a
// state row never disagree about which area they describe.
func normalizePostal(postal string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(postal), " ", ""))
}
