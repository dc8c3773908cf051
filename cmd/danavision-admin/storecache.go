package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/danavision/discovery-go/internal/data/database"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// Local store discovery keeps two records per (owner, postal code, store
// type) area: a local_discovery_state row that drives scheduler refreshes and
// a Redis cache entry that serves reads. The store-cache commands inspect and
// clear both so an operator can force a full re-discovery.

const localStoreCacheKeyPrefix = "localstores:v1:"

type storeCacheClearOptions struct {
	Owner     string
	Postal    string
	StoreType string
	All       bool
	DryRun    bool
	Yes       bool
}

type storeCacheListOptions struct {
	Owner     string
	Postal    string
	StoreType string
	All       bool
	Limit     int
	Offset    int
	DBOnly    bool
	RedisOnly bool
}

func runClearStoreCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseStoreCacheClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(storeCacheConfirmOptions{opts}, "clear local store discovery data"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	db, redisClient, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
			}
		}()
	}

	rows, err := deleteDiscoveryStateRows(&deleteDiscoveryStateRequest{
		Ctx:     ctx,
		DB:      db,
		Logger:  cmdCtx.Logger,
		Options: opts,
	})
	if err != nil {
		return err
	}

	if redisClient != nil {
		if purgeErr := purgeLocalStoreRedis(&purgeLocalStoreRedisRequest{
			Ctx:     ctx,
			Client:  redisClient,
			Logger:  cmdCtx.Logger,
			Options: opts,
		}); purgeErr != nil {
			return purgeErr
		}
	}

	cmdCtx.Logger.Info("clear store cache complete", "rows_deleted", rows)
	return nil
}

func runListStoreCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseStoreCacheListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	wantDB := !opts.RedisOnly
	wantRedis := !opts.DBOnly

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    wantDB,
		WantRedis: wantRedis,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close store cache connections failed", "error", cerr)
		}
	}()

	if wantRedis && redisClient == nil && !hasRedisConfig(&cmdCtx.Config.Redis) {
		if warnErr := writeln(
			os.Stdout,
			"Redis not configured or connection disabled; skipping cache inspection.",
		); warnErr != nil {
			return fmt.Errorf("print redis warning: %w", warnErr)
		}
	}

	if wantDB {
		dbResp, queryErr := queryDiscoveryStateRows(&queryDiscoveryStateRequest{
			Ctx:     ctx,
			DB:      db,
			Logger:  cmdCtx.Logger,
			Options: &opts,
		})
		if queryErr != nil {
			return queryErr
		}
		if renderErr := printDiscoveryStateRows(dbResp, &opts); renderErr != nil {
			return fmt.Errorf("render discovery state rows: %w", renderErr)
		}
	}

	if wantRedis && redisClient != nil {
		redisResp, inspectErr := inspectLocalStoreRedis(&inspectLocalStoreRedisRequest{
			Ctx:     ctx,
			Client:  redisClient,
			Logger:  cmdCtx.Logger,
			Options: &opts,
		})
		if inspectErr != nil {
			return inspectErr
		}
		if renderErr := printLocalStoreRedisEntries(redisResp, &opts); renderErr != nil {
			return fmt.Errorf("render redis entries: %w", renderErr)
		}
	}

	return nil
}

// --- Postgres side ---

type deleteDiscoveryStateRequest struct {
	Ctx     context.Context
	DB      *sql.DB
	Logger  *slog.Logger
	Options storeCacheClearOptions
}

func deleteDiscoveryStateRows(req *deleteDiscoveryStateRequest) (int64, error) {
	if req == nil {
		return 0, errors.New("delete request is required")
	}
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if !req.Options.All {
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, req.Options.Owner)
		if req.Options.Postal != "" {
			where = append(where, fmt.Sprintf("postal_code = $%d", len(args)+1))
			args = append(args, model.NormalizePostalCode(req.Options.Postal))
		}
		if req.Options.StoreType != "" {
			where = append(where, fmt.Sprintf("store_type = $%d", len(args)+1))
			args = append(args, req.Options.StoreType)
		}
	}

	query := "DELETE FROM local_discovery_state"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	req.Logger.Info("executing", "query", query, "args", args, "dry_run", req.Options.DryRun)

	if req.Options.DryRun {
		return 0, nil
	}

	res, err := req.DB.ExecContext(req.Ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete discovery state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("discovery state rows affected: %w", err)
	}
	return rows, nil
}

type queryDiscoveryStateRequest struct {
	Ctx     context.Context
	DB      *sql.DB
	Logger  *slog.Logger
	Options *storeCacheListOptions
}

type discoveryStateRow struct {
	OwnerID      string
	PostalCode   string
	StoreType    string
	StoreCount   int
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

type queryDiscoveryStateResponse struct {
	Rows  []discoveryStateRow
	Total int64
}

func queryDiscoveryStateRows(req *queryDiscoveryStateRequest) (queryDiscoveryStateResponse, error) {
	if req == nil || req.Options == nil {
		return queryDiscoveryStateResponse{}, nil
	}
	conditions := buildStateConditions(req.Options)

	countOpts := []database.ListQueryOption{
		database.WithConditions(conditions...),
		database.WithCountOnly(),
	}
	countQuery, countArgs := database.BuildListQuery(
		database.NewListQueryOptions("local_discovery_state", countOpts...),
	)
	var total int64
	if err := req.DB.QueryRowContext(req.Ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return queryDiscoveryStateResponse{}, fmt.Errorf("count discovery state: %w", err)
	}

	listColumns := []string{"owner_id", "postal_code", "store_type", "store_count", "discovered_at", "updated_at"}
	listOpts := []database.ListQueryOption{
		database.WithColumns(listColumns...),
		database.WithConditions(conditions...),
		database.WithOrderBy("discovered_at", "DESC"),
	}
	if req.Options.Limit > 0 {
		listOpts = append(listOpts, database.WithLimit(req.Options.Limit))
	}
	if req.Options.Offset > 0 {
		listOpts = append(listOpts, database.WithOffset(req.Options.Offset))
	}
	selectQuery, selectArgs := database.BuildListQuery(
		database.NewListQueryOptions("local_discovery_state", listOpts...),
	)

	req.Logger.Debug("querying discovery state", "query", selectQuery, "args", selectArgs)

	rows, err := req.DB.QueryContext(req.Ctx, selectQuery, selectArgs...)
	if err != nil {
		return queryDiscoveryStateResponse{}, fmt.Errorf("list discovery state: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && req.Logger != nil {
			req.Logger.Warn("close discovery state rows failed", "error", closeErr)
		}
	}()

	out := make([]discoveryStateRow, 0)
	for rows.Next() {
		var row discoveryStateRow
		if scanErr := rows.Scan(
			&row.OwnerID,
			&row.PostalCode,
			&row.StoreType,
			&row.StoreCount,
			&row.DiscoveredAt,
			&row.UpdatedAt,
		); scanErr != nil {
			return queryDiscoveryStateResponse{}, fmt.Errorf("scan discovery state row: %w", scanErr)
		}
		out = append(out, row)
	}
	if iterErr := rows.Err(); iterErr != nil {
		return queryDiscoveryStateResponse{}, fmt.Errorf("list discovery state rows: %w", iterErr)
	}

	return queryDiscoveryStateResponse{Rows: out, Total: total}, nil
}

func buildStateConditions(opts *storeCacheListOptions) []database.Condition {
	if opts == nil {
		return nil
	}
	conditions := make([]database.Condition, 0, 3)
	if opts.Owner != "" {
		conditions = append(conditions, database.WhereCond("owner_id", database.Equal, opts.Owner))
	}
	if opts.Postal != "" {
		normalized := model.NormalizePostalCode(opts.Postal)
		conditions = append(conditions, database.WhereCond("postal_code", database.ILike, "%"+normalized+"%"))
	}
	if opts.StoreType != "" {
		conditions = append(conditions, database.WhereCond("store_type", database.Equal, opts.StoreType))
	}
	return conditions
}

// --- Redis side ---

type purgeLocalStoreRedisRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options storeCacheClearOptions
}

func purgeLocalStoreRedis(req *purgeLocalStoreRedisRequest) error {
	if req == nil {
		return errors.New("purge request is required")
	}
	pattern := buildLocalStoreClearPattern(req.Options)
	if pattern == "" {
		return nil
	}

	req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)

	const batchCap = 1000
	stats := cacheDeleteStats{}
	flushReq := &flushCacheBatchRequest{
		Ctx:    req.Ctx,
		Redis:  req.Client,
		Logger: req.Logger,
		DryRun: req.Options.DryRun,
	}

	iter := req.Client.Scan(req.Ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)
	for iter.Next(req.Ctx) {
		stats.total++
		batch = append(batch, iter.Val())
		if len(batch) == batchCap {
			flushCacheBatch(flushReq, batch, &stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan redis: %w", err)
	}
	flushCacheBatch(flushReq, batch, &stats)

	if stats.failures > 0 {
		return fmt.Errorf("failed to delete %d redis key batches", stats.failures)
	}
	req.Logger.Info("redis purge complete", "matched", stats.total, "deleted", stats.deleted, "dry_run", req.Options.DryRun)
	return nil
}

func buildLocalStoreClearPattern(opts storeCacheClearOptions) string {
	switch {
	case opts.All:
		return localStoreCacheKeyPrefix + "*"
	case opts.Owner == "":
		return ""
	default:
		pattern := localStoreCacheKeyPrefix + opts.Owner + ":"
		if opts.Postal == "" {
			return pattern + "*"
		}
		pattern += model.NormalizePostalCode(opts.Postal) + ":"
		if opts.StoreType == "" {
			return pattern + "*"
		}
		return pattern + opts.StoreType
	}
}

func buildLocalStoreQueryPattern(opts *storeCacheListOptions) string {
	if opts == nil || (!opts.All && opts.Owner == "") {
		return ""
	}

	ownerPart := "*"
	if opts.Owner != "" {
		ownerPart = opts.Owner
	}
	postalPart := "*"
	if opts.Postal != "" {
		postalPart = "*" + model.NormalizePostalCode(opts.Postal) + "*"
	}
	typePart := "*"
	if opts.StoreType != "" {
		typePart = opts.StoreType
	}

	return localStoreCacheKeyPrefix + ownerPart + ":" + postalPart + ":" + typePart
}

type inspectLocalStoreRedisRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options *storeCacheListOptions
}

type localStoreRedisEntry struct {
	Key       string
	Owner     string
	Postal    string
	StoreType string
	TTL       time.Duration
}

type inspectLocalStoreRedisResponse struct {
	Entries []localStoreRedisEntry
	Total   int
}

func inspectLocalStoreRedis(req *inspectLocalStoreRedisRequest) (inspectLocalStoreRedisResponse, error) {
	if req == nil || req.Options == nil {
		return inspectLocalStoreRedisResponse{}, nil
	}
	pattern := buildLocalStoreQueryPattern(req.Options)
	if pattern == "" {
		return inspectLocalStoreRedisResponse{}, nil
	}

	req.Logger.Info("scanning redis", "pattern", pattern)

	collector := localStoreRedisCollector{limit: req.Options.Limit}
	iter := req.Client.Scan(req.Ctx, 0, pattern, 1000).Iterator()
	for iter.Next(req.Ctx) {
		if err := collector.addKey(req, iter.Val()); err != nil {
			return inspectLocalStoreRedisResponse{}, err
		}
	}
	if err := iter.Err(); err != nil {
		return inspectLocalStoreRedisResponse{}, fmt.Errorf("redis scan: %w", err)
	}
	return collector.result(), nil
}

type localStoreRedisCollector struct {
	entries []localStoreRedisEntry
	total   int
	limit   int
}

func (c *localStoreRedisCollector) addKey(req *inspectLocalStoreRedisRequest, key string) error {
	if req == nil {
		return nil
	}
	c.total++
	if c.limit > 0 && len(c.entries) >= c.limit {
		return nil
	}

	owner, postal, storeType, err := parseLocalStoreCacheKey(key)
	if err != nil {
		req.Logger.Warn("skipping redis key", "key", key, "error", err)
		return nil
	}

	ttl, err := req.Client.TTL(req.Ctx, key).Result()
	if err != nil {
		return fmt.Errorf("query redis ttl for key %q: %w", key, err)
	}

	c.entries = append(c.entries, localStoreRedisEntry{
		Key:       key,
		Owner:     owner,
		Postal:    postal,
		StoreType: storeType,
		TTL:       ttl,
	})
	return nil
}

func (c *localStoreRedisCollector) result() inspectLocalStoreRedisResponse {
	sort.Slice(c.entries, func(i, j int) bool {
		if c.entries[i].Owner == c.entries[j].Owner {
			if c.entries[i].Postal == c.entries[j].Postal {
				return c.entries[i].StoreType < c.entries[j].StoreType
			}
			return c.entries[i].Postal < c.entries[j].Postal
		}
		return c.entries[i].Owner < c.entries[j].Owner
	})

	return inspectLocalStoreRedisResponse{
		Entries: c.entries,
		Total:   c.total,
	}
}

var errUnexpectedLocalStoreCacheKeyFormat = errors.New("unexpected local store cache key format")

// parseLocalStoreCacheKey parses "localstores:v1:<owner>:<postal>:<type>"
// into its parts. Owner ids may contain colons; normalized postal codes and
// store types cannot, so both are taken from the tail.
func parseLocalStoreCacheKey(key string) (string, string, string, error) {
	if !strings.HasPrefix(key, localStoreCacheKeyPrefix) {
		return "", "", "", errUnexpectedLocalStoreCacheKeyFormat
	}
	rest := strings.TrimPrefix(key, localStoreCacheKeyPrefix)
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", "", errUnexpectedLocalStoreCacheKeyFormat
	}
	storeType := rest[i+1:]
	j := strings.LastIndex(rest[:i], ":")
	if j <= 0 {
		return "", "", "", errUnexpectedLocalStoreCacheKeyFormat
	}
	return rest[:j], rest[j+1 : i], storeType, nil
}

// --- rendering ---

func printDiscoveryStateRows(resp queryDiscoveryStateResponse, opts *storeCacheListOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	displayLimit := max(opts.Limit, 0)
	if err := writef(os.Stdout, "\nPostgres local_discovery_state results"); err != nil {
		return fmt.Errorf("write discovery state header: %w", err)
	}
	switch {
	case displayLimit > 0:
		if err := writef(os.Stdout, " (limit %d, offset %d)", displayLimit, opts.Offset); err != nil {
			return fmt.Errorf("write discovery state limit: %w", err)
		}
	case opts.Offset > 0:
		if err := writef(os.Stdout, " (offset %d)", opts.Offset); err != nil {
			return fmt.Errorf("write discovery state offset: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write discovery state header newline: %w", err)
	}

	if len(resp.Rows) == 0 {
		if err := writeln(os.Stdout, "  (no rows found)"); err != nil {
			return fmt.Errorf("write discovery state empty message: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "OWNER\tPOSTAL\tTYPE\tSTORES\tDISCOVERED (UTC)\tUPDATED (UTC)"); err != nil {
		return fmt.Errorf("write discovery state header row: %w", err)
	}
	for _, row := range resp.Rows {
		if err := writef(
			tw,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			row.OwnerID,
			row.PostalCode,
			row.StoreType,
			row.StoreCount,
			formatTimestamp(row.DiscoveredAt),
			formatTimestamp(row.UpdatedAt),
		); err != nil {
			return fmt.Errorf("write discovery state row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush discovery state table: %w", err)
	}

	if err := writef(os.Stdout, "Total matching rows: %d\n", resp.Total); err != nil {
		return fmt.Errorf("write discovery state total: %w", err)
	}
	if opts.Limit > 0 && len(resp.Rows) == opts.Limit && int64(opts.Offset+opts.Limit) < resp.Total {
		if err := writeln(os.Stdout, "More rows available; adjust --offset or --limit to view additional data."); err != nil {
			return fmt.Errorf("write discovery state more-rows message: %w", err)
		}
	}
	return nil
}

func printLocalStoreRedisEntries(resp inspectLocalStoreRedisResponse, opts *storeCacheListOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	displayLimit := max(opts.Limit, 0)
	if err := writef(os.Stdout, "\nRedis local store cache entries"); err != nil {
		return fmt.Errorf("write redis entries header: %w", err)
	}
	if displayLimit > 0 {
		if err := writef(os.Stdout, " (showing up to %d)", displayLimit); err != nil {
			return fmt.Errorf("write redis entries limit: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write redis entries header newline: %w", err)
	}

	if len(resp.Entries) == 0 {
		if err := writeln(os.Stdout, "  (no keys matched)"); err != nil {
			return fmt.Errorf("write redis entries empty message: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "OWNER\tPOSTAL\tTYPE\tTTL\tKEY"); err != nil {
		return fmt.Errorf("write redis entries header row: %w", err)
	}
	for _, entry := range resp.Entries {
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\n",
			entry.Owner,
			entry.Postal,
			entry.StoreType,
			formatRedisTTL(entry.TTL),
			entry.Key,
		); err != nil {
			return fmt.Errorf("write redis entry row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush redis entries table: %w", err)
	}

	if err := writef(os.Stdout, "Total keys matched: %d\n", resp.Total); err != nil {
		return fmt.Errorf("write redis entries total: %w", err)
	}
	if opts.Limit > 0 && resp.Total > len(resp.Entries) {
		if err := writeln(os.Stdout, "More keys available; increase --limit to view additional entries."); err != nil {
			return fmt.Errorf("write redis entries more-keys message: %w", err)
		}
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// formatRedisTTL renders go-redis TTL results, which report -1s for keys
// without expiry and -2s for missing keys.
func formatRedisTTL(ttl time.Duration) string {
	switch {
	case ttl == -1*time.Second:
		return "no expiry"
	case ttl == -2*time.Second:
		return "missing"
	case ttl < 0:
		return ttl.String()
	default:
		return ttl.Round(time.Millisecond).String()
	}
}

// --- flags and confirmation ---

func parseStoreCacheClearFlags(args []string) (storeCacheClearOptions, error) {
	fs := flag.NewFlagSet("clear-store-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts storeCacheClearOptions
	fs.StringVar(&opts.Owner, "owner", "", "Owner ID to clear (required unless --all)")
	fs.StringVar(&opts.Postal, "postal", "", "Optional postal code filter (requires --owner)")
	fs.StringVar(&opts.StoreType, "type", "", "Optional store type filter (requires --postal)")
	fs.BoolVar(&opts.All, "all", false, "Clear discovery data for all owners")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return storeCacheClearOptions{}, err
	}

	normalizeStoreCacheFilters(&opts.Owner, &opts.Postal, &opts.StoreType)
	if err := validateStoreCacheClearOptions(opts); err != nil {
		return storeCacheClearOptions{}, err
	}

	return opts, nil
}

func parseStoreCacheListFlags(args []string) (storeCacheListOptions, error) {
	fs := flag.NewFlagSet("list-store-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts storeCacheListOptions
	fs.StringVar(&opts.Owner, "owner", "", "Filter by owner ID (required unless --all)")
	fs.StringVar(&opts.Postal, "postal", "", "Filter by postal code substring")
	fs.StringVar(&opts.StoreType, "type", "", "Filter by store type")
	fs.BoolVar(&opts.All, "all", false, "Include entries for all owners")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum rows/keys to display (0 for unlimited)")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset for database query results")
	fs.BoolVar(&opts.DBOnly, "db-only", false, "Only query Postgres (skip Redis)")
	fs.BoolVar(&opts.RedisOnly, "redis-only", false, "Only query Redis (skip Postgres)")

	if err := fs.Parse(args); err != nil {
		return storeCacheListOptions{}, err
	}

	normalizeStoreCacheFilters(&opts.Owner, &opts.Postal, &opts.StoreType)
	if err := validateStoreCacheListOptions(&opts); err != nil {
		return storeCacheListOptions{}, err
	}

	return opts, nil
}

func normalizeStoreCacheFilters(owner, postal, storeType *string) {
	*owner = strings.TrimSpace(*owner)
	*postal = strings.TrimSpace(*postal)
	*storeType = strings.ToLower(strings.TrimSpace(*storeType))
}

func validateStoreCacheClearOptions(opts storeCacheClearOptions) error {
	if opts.All {
		if opts.Owner != "" || opts.Postal != "" || opts.StoreType != "" {
			return errors.New("--all cannot be combined with owner, postal, or type filters")
		}
		return nil
	}
	if opts.Owner == "" {
		return errors.New("--owner is required unless --all is provided")
	}
	if opts.Postal == "" && opts.StoreType != "" {
		return errors.New("--type requires --postal to avoid clearing other areas accidentally")
	}
	return nil
}

func validateStoreCacheListOptions(opts *storeCacheListOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	if opts.Limit < 0 {
		return errors.New("--limit must be >= 0")
	}
	if opts.Offset < 0 {
		return errors.New("--offset must be >= 0")
	}
	if opts.DBOnly && opts.RedisOnly {
		return errors.New("--db-only and --redis-only cannot both be set")
	}
	if opts.All {
		if opts.Owner != "" {
			return errors.New("--all cannot be combined with --owner")
		}
		return nil
	}
	if opts.Owner == "" {
		return errors.New("--owner is required (or use --all)")
	}
	return nil
}

type storeCacheConfirmOptions struct {
	opts storeCacheClearOptions
}

func (s storeCacheConfirmOptions) IsDryRun() bool { return s.opts.DryRun }
func (s storeCacheConfirmOptions) IsYes() bool    { return s.opts.Yes }
func (s storeCacheConfirmOptions) GetWarning() string {
	return "WARNING: this will remove local store discovery state and cache entries for every owner."
}

func (s storeCacheConfirmOptions) GetTarget() string {
	if s.opts.All {
		return ""
	}
	target := fmt.Sprintf("owner %q", s.opts.Owner)
	if s.opts.Postal != "" {
		target += fmt.Sprintf(", postal %q", s.opts.Postal)
	}
	if s.opts.StoreType != "" {
		target += fmt.Sprintf(", type %q", s.opts.StoreType)
	}
	return target
}
