package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data/database"
	"github.com/danavision/discovery-go/internal/data/pgxutil"
	"github.com/danavision/discovery-go/internal/domain/model"
)

var (
	// ErrStoreNotFound is returned when a store is not found.
	ErrStoreNotFound = errors.New("store not found")
	// ErrStoreDomainExists is returned when creating a store whose normalized domain already exists.
	ErrStoreDomainExists = errors.New("store domain already exists")
)

// StoreRepo provides database operations for stores and per-user preferences.
type StoreRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewStoreRepo creates a new StoreRepo with real time provider.
func NewStoreRepo(db *sql.DB) *StoreRepo {
	return &StoreRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewStoreRepoWithTimeProvider creates a new StoreRepo with a custom time provider (useful for tests).
func NewStoreRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *StoreRepo {
	return &StoreRepo{DB: db, timeProvider: tp}
}

const storeSelectColumns = `id, name, domain, url_template, category, default_priority,
       is_default, is_active, is_local, auto_configured, latitude, longitude,
       created_at, updated_at`

// Create inserts a new store.
func (r *StoreRepo) Create(ctx context.Context, req *model.CreateStoreRequest) (*model.Store, error) {
	if req == nil {
		return nil, errors.New("create store request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = req.Domain
	}

	var out model.Store
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO stores (name, domain, url_template, category)
			VALUES ($1, $2, $3, $4)
			RETURNING `+storeSelectColumns,
			name,
			req.Domain,
			req.URLTemplate,
			req.Category,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Store])
		return err
	}); err != nil {
		return nil, r.mapWriteErr(err, false)
	}
	return &out, nil
}

// GetByID retrieves a store by ID.
func (r *StoreRepo) GetByID(ctx context.Context, id string) (*model.Store, error) {
	return r.getByQuery(ctx, storeGetByIDQuery, "failed to get store by ID", id)
}

// GetByDomain retrieves a store by its normalized domain.
func (r *StoreRepo) GetByDomain(ctx context.Context, domain string) (*model.Store, error) {
	return r.getByQuery(ctx, storeGetByDomainQuery, "failed to get store by domain", domain)
}

// List retrieves stores with optional filters, in insertion order.
func (r *StoreRepo) List(ctx context.Context, opts model.StoreListOptions) ([]*model.Store, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	queryOpts := []database.ListQueryOption{
		database.WithColumns(storeColumns()...),
		database.WithLimit(limit),
		database.WithOffset(offset),
		database.WithOrderBy("created_at", "ASC"),
	}
	if opts.ActiveOnly {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("is_active", database.Equal, true),
		))
	}
	if opts.LocalOnly {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("is_local", database.Equal, true),
		))
	}
	if opts.Category != nil && strings.TrimSpace(*opts.Category) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("category", database.Equal, strings.ToLower(strings.TrimSpace(*opts.Category))),
		))
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("stores", queryOpts...))

	var rowsOut []model.Store
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Store])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	res := make([]*model.Store, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Delete deletes a store by ID. Callers are responsible for refusing to
// delete default stores before reaching this point.
func (r *StoreRepo) Delete(ctx context.Context, id string) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM stores WHERE id = $1 AND NOT is_default`, id)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete store: %w", err)
	}
	return rows > 0, nil
}

// UpsertLocal records an auto-configured local store keyed by normalized
// domain. A manually configured store with the same domain keeps its name
// and category; only coordinates are refreshed.
func (r *StoreRepo) UpsertLocal(ctx context.Context, params core.UpsertLocalStoreParams) (*model.Store, error) {
	if params.Domain == "" {
		return nil, errors.New("store domain is required")
	}
	name := params.Name
	if name == "" {
		name = params.Domain
	}
	category := params.Category
	if category == "" {
		category = model.DefaultStoreCategory
	}

	var out model.Store
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO stores (name, domain, category, is_local, auto_configured, latitude, longitude)
			VALUES ($1, $2, $3, true, true, $4, $5)
			ON CONFLICT (domain) DO UPDATE SET
				name = CASE WHEN stores.auto_configured THEN EXCLUDED.name ELSE stores.name END,
				category = CASE WHEN stores.auto_configured THEN EXCLUDED.category ELSE stores.category END,
				latitude = COALESCE(EXCLUDED.latitude, stores.latitude),
				longitude = COALESCE(EXCLUDED.longitude, stores.longitude),
				updated_at = $6
			RETURNING `+storeSelectColumns,
			name,
			params.Domain,
			category,
			params.Latitude,
			params.Longitude,
			r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Store])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to upsert local store: %w", err)
	}
	return &out, nil
}

// ResolveForUser merges active stores with one user's preferences in
// discovery query order: favorites first, then effective priority
// descending, then stable insertion order. Stores the user disabled are
// dropped; stores without a preference row ride on their defaults.
func (r *StoreRepo) ResolveForUser(ctx context.Context, userID string) ([]*model.ResolvedStore, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	query := `
		SELECT s.id, s.name, s.domain, s.url_template, s.category, s.default_priority,
		       s.is_default, s.is_active, s.is_local, s.auto_configured, s.latitude, s.longitude,
		       s.created_at, s.updated_at,
		       COALESCE(p.favorite, false) AS favorite,
		       COALESCE(p.priority_override, s.default_priority) AS effective_priority,
		       COALESCE(p.position, 0) AS position
		FROM stores s
		LEFT JOIN store_preferences p ON p.store_id = s.id AND p.user_id = $1
		WHERE s.is_active AND COALESCE(p.enabled, true)
		ORDER BY COALESCE(p.favorite, false) DESC,
		         COALESCE(p.priority_override, s.default_priority) DESC,
		         s.created_at ASC, s.id ASC
	`

	var rowsOut []model.ResolvedStore
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.ResolvedStore])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to resolve stores for user: %w", err)
	}

	res := make([]*model.ResolvedStore, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// SetPreference upserts one user's preference row for a store. Nil request
// fields leave the stored values unchanged.
func (r *StoreRepo) SetPreference(ctx context.Context, params core.SetStorePreferenceParams) (*model.StorePreference, error) {
	if params.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if params.StoreID == "" {
		return nil, errors.New("store id is required")
	}
	req := params.Req
	if req == nil {
		return nil, errors.New("update store preference request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO store_preferences (user_id, store_id, enabled, favorite, priority_override, position)
		VALUES ($1, $2,
		        COALESCE($3, true),
		        COALESCE($4, false),
		        $5,
		        COALESCE((SELECT MAX(position) + 1 FROM store_preferences WHERE user_id = $1), 0))
		ON CONFLICT (user_id, store_id) DO UPDATE SET
			enabled = COALESCE($3, store_preferences.enabled),
			favorite = COALESCE($4, store_preferences.favorite),
			priority_override = COALESCE($5, store_preferences.priority_override)
		RETURNING id, user_id, store_id, enabled, favorite, priority_override, position, created_at
	`

	var out model.StorePreference
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query,
			params.UserID,
			params.StoreID,
			req.Enabled,
			req.Favorite,
			req.PriorityOverride,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.StorePreference])
		return err
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("failed to set store preference: %w", err)
	}
	return &out, nil
}

// GetPreferences returns all of a user's preference rows in position order.
func (r *StoreRepo) GetPreferences(ctx context.Context, userID string) ([]*model.StorePreference, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	query := `
		SELECT id, user_id, store_id, enabled, favorite, priority_override, position, created_at
		FROM store_preferences
		WHERE user_id = $1
		ORDER BY position ASC, created_at ASC
	`

	var rowsOut []model.StorePreference
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.StorePreference])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to get store preferences: %w", err)
	}

	res := make([]*model.StorePreference, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// --- helpers ---

const (
	storeGetByIDQuery = `
		SELECT ` + storeSelectColumns + `
		FROM stores
		WHERE id = $1`

	storeGetByDomainQuery = `
		SELECT ` + storeSelectColumns + `
		FROM stores
		WHERE domain = $1`
)

// storeColumns returns the standard column list for store queries.
// Used by dynamic queries that need to build column lists at runtime.
func storeColumns() []string {
	return []string{
		"id",
		"name",
		"domain",
		"url_template",
		"category",
		"default_priority",
		"is_default",
		"is_active",
		"is_local",
		"auto_configured",
		"latitude",
		"longitude",
		"created_at",
		"updated_at",
	}
}

// getByQuery is a helper function to execute a query and return a single store.
func (r *StoreRepo) getByQuery(
	ctx context.Context,
	q string,
	errMsg string,
	args ...any,
) (*model.Store, error) {
	var store model.Store
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		store, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Store])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return &store, nil
}

func (r *StoreRepo) mapWriteErr(err error, includeNotFound bool) error {
	if err == nil {
		return nil
	}
	if includeNotFound && errors.Is(err, pgx.ErrNoRows) {
		return ErrStoreNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrStoreDomainExists
	}
	return err
}
