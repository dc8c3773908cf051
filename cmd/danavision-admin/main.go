package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/bootstrap"
	"github.com/danavision/discovery-go/internal/devseed"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"db-reset": {
			name:        "db-reset",
			description: "Drop the database schema, run migrations, and optionally seed data",
			run:         runDBReset,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run database migrations and seed the default store catalog",
			run:         runDBSeed,
		},
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"job-inspect": {
			name:        "job-inspect",
			description: "Inspect one job's status, input, and output payloads",
			run:         runJobInspect,
		},
		"clear-job-history": {
			name:        "clear-job-history",
			description: "Delete an owner's terminal jobs (active jobs survive)",
			run:         runClearJobHistory,
		},
		"list-price-cache": {
			name:        "list-price-cache",
			description: "Inspect cached price discovery entries in Redis",
			run:         runListPriceCache,
		},
		"clear-price-cache": {
			name:        "clear-price-cache",
			description: "Clear cached price discovery entries from Redis",
			run:         runClearPriceCache,
		},
		"list-store-cache": {
			name:        "list-store-cache",
			description: "Inspect local store discovery state (Postgres + Redis)",
			run:         runListStoreCache,
		},
		"clear-store-cache": {
			name:        "clear-store-cache",
			description: "Clear local store discovery state (Postgres + Redis)",
			run:         runClearStoreCache,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: danavision-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-24s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	Seed        bool
	AllowRemote bool
}

type dbSeedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}

	target := fmt.Sprintf(
		"database %q on %s:%d",
		cmdCtx.Config.Postgres.Name,
		cmdCtx.Config.Postgres.Host,
		cmdCtx.Config.Postgres.Port,
	)

	remote, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "drop and recreate the public schema")
	if err != nil {
		return err
	}

	confirmOpts := dbResetConfirmOptions{
		yes:    opts.Yes,
		target: target,
	}
	if remote {
		confirmOpts.remoteHost = cmdCtx.Config.Postgres.Host
	}
	if confirmErr := confirmAction(confirmOpts, "reset database schema"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", cmdCtx.Config.Postgres.Name)
		if resetErr := cmdCtx.resetDatabase(ctx, db); resetErr != nil {
			return resetErr
		}

		cmdCtx.Logger.Info("re-running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		if opts.Seed {
			cmdCtx.Logger.Info("seeding development data after reset")
			if seedErr := devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger); seedErr != nil {
				return fmt.Errorf("seed data: %w", seedErr)
			}
		}

		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func runDBSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBSeedFlags(args)
	if err != nil {
		return err
	}

	if _, guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "seed development data on the configured database"); guardErr != nil {
		return guardErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("ensuring database migrations are current")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		cmdCtx.Logger.Info("seeding development data")
		if seedErr := devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger); seedErr != nil {
			return fmt.Errorf("seed data: %w", seedErr)
		}

		cmdCtx.Logger.Info("database seeding completed successfully")
		return nil
	})
}

// --- price cache inspection ---

const priceCacheKeyPrefix = "price:v1:"

type priceCacheListOptions struct {
	Owner string
	All   bool
	Limit int
}

type priceCacheClearOptions struct {
	Owner  string
	All    bool
	DryRun bool
	Yes    bool
}

func runListPriceCache(cmdCtx *commandContext, args []string) error {
	opts, err := parsePriceCacheListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    false,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	resp, err := inspectPriceCache(&inspectPriceCacheRequest{
		Ctx:     ctx,
		Client:  redisClient,
		Logger:  cmdCtx.Logger,
		Options: &opts,
	})
	if err != nil {
		return err
	}

	return printPriceCacheEntries(resp, &opts)
}

func runClearPriceCache(cmdCtx *commandContext, args []string) error {
	opts, err := parsePriceCacheClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(priceCacheConfirmOptions{opts}, "clear cached price results"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    false,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	req := &priceCacheDeleteRequest{
		Ctx:      ctx,
		Logger:   cmdCtx.Logger,
		Redis:    redisClient,
		Options:  opts,
		BatchCap: 1000,
	}
	stats, err := deletePriceCacheKeys(req)
	if err != nil {
		return err
	}

	if stats.total == 0 {
		if writeErr := writeln(os.Stdout, "No price cache keys found in Redis"); writeErr != nil {
			return fmt.Errorf("print price cache summary: %w", writeErr)
		}
		return nil
	}

	if opts.DryRun {
		if writeErr := writef(os.Stdout, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total); writeErr != nil {
			return fmt.Errorf("print price cache dry run: %w", writeErr)
		}
		return nil
	}

	if writeErr := writef(os.Stdout, "Deleted %d/%d keys\n", stats.deleted, stats.total); writeErr != nil {
		return fmt.Errorf("print price cache deleted: %w", writeErr)
	}
	if stats.failures > 0 {
		if writeErr := writef(os.Stdout, "Failed batches: %d\n", stats.failures); writeErr != nil {
			return fmt.Errorf("print price cache failures: %w", writeErr)
		}
	}
	return nil
}

type inspectPriceCacheRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options *priceCacheListOptions
}

type priceCacheEntry struct {
	Key    string
	Owner  string
	Digest string
	TTL    time.Duration
}

type inspectPriceCacheResponse struct {
	Entries []priceCacheEntry
	Total   int
}

func inspectPriceCache(req *inspectPriceCacheRequest) (inspectPriceCacheResponse, error) {
	if req == nil || req.Options == nil {
		return inspectPriceCacheResponse{}, nil
	}
	pattern := buildPriceCachePattern(req.Options.Owner, req.Options.All)
	if pattern == "" {
		return inspectPriceCacheResponse{}, nil
	}

	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", pattern)
	}

	collector := priceCacheCollector{limit: req.Options.Limit}
	iter := req.Client.Scan(req.Ctx, 0, pattern, 1000).Iterator()
	for iter.Next(req.Ctx) {
		if err := collector.addKey(req, iter.Val()); err != nil {
			return inspectPriceCacheResponse{}, err
		}
	}
	if err := iter.Err(); err != nil {
		return inspectPriceCacheResponse{}, fmt.Errorf("redis scan: %w", err)
	}
	return collector.result(), nil
}

type priceCacheCollector struct {
	entries []priceCacheEntry
	total   int
	limit   int
}

func (c *priceCacheCollector) addKey(req *inspectPriceCacheRequest, key string) error {
	c.total++
	if c.limit > 0 && len(c.entries) >= c.limit {
		return nil
	}

	owner, digest, err := parsePriceCacheKey(key)
	if err != nil {
		if req.Logger != nil {
			req.Logger.Warn("skipping price cache key", "key", key, "error", err)
		}
		return nil
	}

	ttl, err := req.Client.TTL(req.Ctx, key).Result()
	if err != nil {
		return fmt.Errorf("query redis ttl for key %q: %w", key, err)
	}

	c.entries = append(c.entries, priceCacheEntry{
		Key:    key,
		Owner:  owner,
		Digest: digest,
		TTL:    ttl,
	})
	return nil
}

func (c *priceCacheCollector) result() inspectPriceCacheResponse {
	sort.Slice(c.entries, func(i, j int) bool {
		if c.entries[i].Owner == c.entries[j].Owner {
			return c.entries[i].Digest < c.entries[j].Digest
		}
		return c.entries[i].Owner < c.entries[j].Owner
	})
	return inspectPriceCacheResponse{
		Entries: c.entries,
		Total:   c.total,
	}
}

func buildPriceCachePattern(owner string, all bool) string {
	if !all && owner == "" {
		return ""
	}
	ownerPart := "*"
	if owner != "" {
		ownerPart = owner
	}
	return priceCacheKeyPrefix + ownerPart + ":*"
}

var errUnexpectedPriceCacheKeyFormat = errors.New("unexpected price cache key format")

// parsePriceCacheKey parses "price:v1:<owner>:<digest>" into (owner, digest).
// Owner ids may themselves contain colons, so the digest is taken from the
// final segment.
func parsePriceCacheKey(key string) (string, string, error) {
	if !strings.HasPrefix(key, priceCacheKeyPrefix) {
		return "", "", errUnexpectedPriceCacheKeyFormat
	}
	rest := strings.TrimPrefix(key, priceCacheKeyPrefix)
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", errUnexpectedPriceCacheKeyFormat
	}
	return rest[:i], rest[i+1:], nil
}

func printPriceCacheEntries(resp inspectPriceCacheResponse, opts *priceCacheListOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	displayLimit := max(opts.Limit, 0)
	if err := writef(os.Stdout, "\nCached price discovery entries"); err != nil {
		return fmt.Errorf("write price cache header: %w", err)
	}
	if displayLimit > 0 {
		if err := writef(os.Stdout, " (showing up to %d)", displayLimit); err != nil {
			return fmt.Errorf("write price cache limit: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write price cache header newline: %w", err)
	}

	if len(resp.Entries) == 0 {
		if err := writeln(os.Stdout, "  (no keys matched)"); err != nil {
			return fmt.Errorf("write price cache empty message: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "OWNER\tQUERY DIGEST\tTTL\tKEY"); err != nil {
		return fmt.Errorf("write price cache header row: %w", err)
	}
	for _, entry := range resp.Entries {
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\n",
			entry.Owner,
			shortDigest(entry.Digest),
			formatRedisTTL(entry.TTL),
			entry.Key,
		); err != nil {
			return fmt.Errorf("write price cache entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush price cache table: %w", err)
	}

	if err := writef(os.Stdout, "Total keys matched: %d\n", resp.Total); err != nil {
		return fmt.Errorf("write price cache total: %w", err)
	}
	if opts.Limit > 0 && resp.Total > len(resp.Entries) {
		if err := writeln(os.Stdout, "More keys available; increase --limit to view additional entries."); err != nil {
			return fmt.Errorf("write price cache more-keys message: %w", err)
		}
	}
	return nil
}

// shortDigest truncates a query digest for table display. Full keys stay in
// the KEY column.
func shortDigest(digest string) string {
	const keep = 12
	if len(digest) <= keep {
		return digest
	}
	return digest[:keep] + "..."
}

type priceCacheDeleteRequest struct {
	Ctx      context.Context
	Logger   *slog.Logger
	Redis    redis.UniversalClient
	Options  priceCacheClearOptions
	BatchCap int
}

type cacheDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func deletePriceCacheKeys(req *priceCacheDeleteRequest) (cacheDeleteStats, error) {
	pattern := buildPriceCachePattern(req.Options.Owner, req.Options.All)
	if pattern == "" {
		return cacheDeleteStats{}, nil
	}

	batchCap := req.BatchCap
	if batchCap <= 0 {
		batchCap = 1000
	}

	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)
	}

	stats := cacheDeleteStats{}
	iter := req.Redis.Scan(req.Ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)

	for iter.Next(req.Ctx) {
		stats.total++
		batch = append(batch, iter.Val())

		if len(batch) == batchCap {
			flushCacheBatch(&flushCacheBatchRequest{
				Ctx:    req.Ctx,
				Redis:  req.Redis,
				Logger: req.Logger,
				DryRun: req.Options.DryRun,
			}, batch, &stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}

	flushCacheBatch(&flushCacheBatchRequest{
		Ctx:    req.Ctx,
		Redis:  req.Redis,
		Logger: req.Logger,
		DryRun: req.Options.DryRun,
	}, batch, &stats)
	return stats, nil
}

type flushCacheBatchRequest struct {
	Ctx    context.Context
	Redis  redis.UniversalClient
	Logger *slog.Logger
	DryRun bool
}

func flushCacheBatch(req *flushCacheBatchRequest, batch []string, stats *cacheDeleteStats) {
	if len(batch) == 0 {
		return
	}
	if req.DryRun {
		stats.deleted += int64(len(batch))
		if req.Logger != nil {
			req.Logger.Info("dry-run skipping cache delete", "count", len(batch))
		}
		return
	}
	n, delErr := req.Redis.Del(req.Ctx, batch...).Result()
	if delErr != nil {
		stats.failures++
		if req.Logger != nil {
			req.Logger.Error("failed to delete cache keys", "count", len(batch), "error", delErr)
		}
		return
	}
	stats.deleted += n
}

// --- flag parsing ---

func parsePriceCacheListFlags(args []string) (priceCacheListOptions, error) {
	fs := flag.NewFlagSet("list-price-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts priceCacheListOptions
	fs.StringVar(&opts.Owner, "owner", "", "Owner ID to inspect (required unless --all)")
	fs.BoolVar(&opts.All, "all", false, "Include cached entries for all owners")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum keys to display (0 for unlimited)")

	if err := fs.Parse(args); err != nil {
		return priceCacheListOptions{}, err
	}

	opts.Owner = strings.TrimSpace(opts.Owner)
	if err := validateOwnerScope(opts.Owner, opts.All); err != nil {
		return priceCacheListOptions{}, err
	}
	if opts.Limit < 0 {
		return priceCacheListOptions{}, errors.New("--limit must be >= 0")
	}

	return opts, nil
}

func parsePriceCacheClearFlags(args []string) (priceCacheClearOptions, error) {
	fs := flag.NewFlagSet("clear-price-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts priceCacheClearOptions
	fs.StringVar(&opts.Owner, "owner", "", "Owner ID to clear (required unless --all)")
	fs.BoolVar(&opts.All, "all", false, "Clear cached entries for all owners")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return priceCacheClearOptions{}, err
	}

	opts.Owner = strings.TrimSpace(opts.Owner)
	if err := validateOwnerScope(opts.Owner, opts.All); err != nil {
		return priceCacheClearOptions{}, err
	}

	return opts, nil
}

func validateOwnerScope(owner string, all bool) error {
	if all {
		if owner != "" {
			return errors.New("--all cannot be combined with --owner")
		}
		return nil
	}
	if owner == "" {
		return errors.New("--owner is required unless --all is provided")
	}
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := flag.NewFlagSet("db-reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbResetOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for reset operations to complete",
	)
	fs.BoolVar(
		&opts.Yes,
		"yes",
		false,
		"Skip confirmation prompt",
	)
	fs.BoolVar(
		&opts.Seed,
		"seed",
		false,
		"Run database seeding after reset completes",
	)
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}

	if opts.Timeout <= 0 {
		return dbResetOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseDBSeedFlags(args []string) (dbSeedOptions, error) {
	fs := flag.NewFlagSet("db-seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbSeedOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for seeding to complete",
	)
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)

	if err := fs.Parse(args); err != nil {
		return dbSeedOptions{}, err
	}

	if opts.Timeout <= 0 {
		return dbSeedOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

// --- shared database helpers ---

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	remote := isLikelyRemoteHost(cmdCtx.Config.Postgres.Host)
	if !remote {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			cmdCtx.Config.Postgres.Host,
		)
	}
	if err := requireRemoteHostConfirmation(action, cmdCtx.Config.Postgres.Host); err != nil {
		return true, err
	}
	return true, nil
}

func (cmdCtx *commandContext) resetDatabase(ctx context.Context, db *sql.DB) error {
	if cmdCtx == nil {
		return errors.New("command context is required")
	}

	cfg := &cmdCtx.Config.Postgres
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user := strings.TrimSpace(cfg.User); user != "" && !strings.EqualFold(user, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
	}

	for _, stmt := range statements {
		if cmdCtx.Logger != nil {
			cmdCtx.Logger.DebugContext(ctx, "executing reset statement", "sql", stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || h == "127.0.0.1" || h == "::1" {
		return false
	}
	if strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(action, host string) error {
	if err := writef(
		os.Stderr,
		"\nWARNING: database host %q does not look like a local address.\n"+
			"This operation will %s.\n",
		host,
		action,
	); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	if err := writef(os.Stderr, "Type %q to continue or press enter to abort: ", host); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		if writeErr := writef(os.Stderr, "\nFailed to read confirmation input: %v\n", err); writeErr != nil {
			return fmt.Errorf("aborted by user: report write failed: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	if strings.TrimSpace(resp) != host {
		if writeErr := writeln(os.Stderr, "\nRemote safeguard check failed; aborting."); writeErr != nil {
			return fmt.Errorf("print remote safeguard failure: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	return nil
}

// --- confirmation machinery ---

type confirmOptions interface {
	IsDryRun() bool
	IsYes() bool
	GetTarget() string
	GetWarning() string
}

type dbResetConfirmOptions struct {
	yes        bool
	target     string
	remoteHost string
}

func (d dbResetConfirmOptions) IsDryRun() bool { return false }
func (d dbResetConfirmOptions) IsYes() bool {
	if d.remoteHost != "" {
		return false
	}
	return d.yes
}

func (d dbResetConfirmOptions) GetWarning() string {
	warning := "WARNING: this will drop and recreate the public schema for the configured database."
	if d.remoteHost != "" {
		warning += fmt.Sprintf(" Host %q appears to be remote; double-check before proceeding.", d.remoteHost)
	}
	return warning
}
func (d dbResetConfirmOptions) GetTarget() string { return d.target }

type priceCacheConfirmOptions struct {
	opts priceCacheClearOptions
}

func (p priceCacheConfirmOptions) IsDryRun() bool { return p.opts.DryRun }
func (p priceCacheConfirmOptions) IsYes() bool    { return p.opts.Yes }
func (p priceCacheConfirmOptions) GetWarning() string {
	return "WARNING: this will remove cached price results for every owner."
}

func (p priceCacheConfirmOptions) GetTarget() string {
	if p.opts.All {
		return ""
	}
	return fmt.Sprintf("owner %q", p.opts.Owner)
}

func confirmAction(opts confirmOptions, actionType string) error {
	if opts.IsDryRun() || opts.IsYes() {
		return nil
	}

	if err := printConfirmationIntro(opts, actionType); err != nil {
		return err
	}

	if err := write(os.Stdout, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		if writeErr := writef(os.Stdout, "\nFailed to read confirmation input: %v\n", err); writeErr != nil {
			return fmt.Errorf("aborted by user: report write failed: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func printConfirmationIntro(opts confirmOptions, actionType string) error {
	target := opts.GetTarget()
	if target == "" {
		if err := writeln(os.Stdout, opts.GetWarning()); err != nil {
			return fmt.Errorf("print confirmation warning: %w", err)
		}
		return nil
	}

	if err := writef(os.Stdout, "About to %s for %s.\n", actionType, target); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	return nil
}
