// Package testutil provides database and cache fixtures for integration
// tests. Postgres-backed helpers skip when no test database is reachable
// unless TEST_REQUIRE_DB or TEST_REQUIRE_INFRA demands one.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	// Registers the pgx driver under database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/danavision/discovery-go/internal/migrate"
)

// TestingTB covers the subset of testing.T and testing.B the fixtures need.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
}

// RunMigrations applies the production migration set so test schemas never
// drift from what the application actually runs against.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// TestDBConfig holds connection details for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* with defaults matching the
// docker-compose test profile. Port 55432 is the local compose mapping; CI
// environments set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOrDefault("TEST_DB_HOST", "localhost"),
		Port:     envOrDefault("TEST_DB_PORT", "55432"),
		User:     envOrDefault("TEST_DB_USER", "danavision"),
		Password: envOrDefault("TEST_DB_PASSWORD", "danavision"),
		DBName:   envOrDefault("TEST_DB_NAME", "danavision"),
	}
}

// dsn renders a pgx connection URL for the config, with optional extra query
// parameters such as search_path.
func (cfg TestDBConfig) dsn(params map[string]string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}
	q := u.Query()
	q.Set("sslmode", envOrDefault("DB_SSL_MODE", "disable"))
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// openPostgres opens and pings a connection, failing the test on error.
func openPostgres(t TestingTB, dsn string, pingTimeout time.Duration) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("open test database:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(t, "test database", db)
		t.Fatal("ping test database (is docker-compose up?):", err)
	}
	return db
}

// SkipIfNoTestDB skips the calling test when the test database is
// unreachable, or fails it when the environment requires infrastructure.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn(nil))
	if err != nil {
		unavailable(t, requireDB(), "test database", err)
		return
	}
	defer closeQuietly(t, "test database", db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		unavailable(t, requireDB(), "test database", err)
	}
}

// unavailable either skips or fails depending on whether the dependency is
// mandatory for this run.
func unavailable(t TestingTB, required bool, what string, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

// SetupTestDB connects to the shared test database, migrates it, and wipes
// leftover rows from earlier runs.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db := openPostgres(t, DefaultTestDBConfig().dsn(nil), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := RunMigrations(ctx, db); err != nil {
		closeQuietly(t, "test database", db)
		t.Fatal("run migrations:", err)
	}

	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB deletes all rows, children before parents so foreign keys
// never block the wipe.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, table := range []string{"store_preferences", "stores", "jobs", "local_discovery_state"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean up table %s: %v", table, err)
		}
	}
}

// TeardownTestDB wipes and closes the shared database handle.
func TeardownTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	CleanupTestDB(t, db)
	if err := db.Close(); err != nil {
		t.Fatal("close test database:", err)
	}
}

// WithTestDB runs fn against the shared test database and tears it down
// afterwards.
func WithTestDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	db := SetupTestDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// WithAutoDB picks the isolation strategy from the environment. With
// TEST_DB_EPHEMERAL each test gets its own schema, dropped via t.Cleanup;
// otherwise tests share one database and wipe rows between runs.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(SetupEphemeralSchemaDB(t))
		return
	}
	db := SetupTestDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// SetupEphemeralSchemaDB creates a throwaway schema, points search_path at
// it, migrates it, and registers a drop on test cleanup. Cleanup is
// registered before migrations so a failed migration still releases the
// schema.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	adminDB := openPostgres(t, cfg.dsn(nil), 5*time.Second)

	schema := newSchemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := adminDB.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		closeQuietly(t, "admin DB", adminDB)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db := openPostgres(t, cfg.dsn(map[string]string{"search_path": schema + ",public"}), 10*time.Second)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	t.Logf("using ephemeral schema %s", schema)
	registerCleanup(t, func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		closeQuietly(t, "schema DB", db)
		if _, err := adminDB.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		closeQuietly(t, "admin DB", adminDB)
	})

	migCtx, migCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer migCancel()
	if err := RunMigrations(migCtx, db); err != nil {
		t.Fatal("run migrations in ephemeral schema:", err)
	}
	return db
}

// newSchemaName returns a lowercase identifier safe to splice into DDL.
func newSchemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

// registerCleanup prefers t.Cleanup when the TB implementation has it;
// benchmarks driven through a bare TestingTB fall back to running cleanup
// immediately after setup would fail anyway.
func registerCleanup(t TestingTB, fn func()) {
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(fn)
		return
	}
	t.Logf("warning: no Cleanup support, ephemeral schema will leak until manual drop")
}

func closeQuietly(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: close %s: %v", name, err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// TestTime returns a fixed instant so assertions on timestamps stay stable.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// GetTestRedisAddr locates a Redis to test against. REDIS_ADDR wins when
// set; otherwise the compose service name and localhost are probed before
// the local test port.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr, redisReachable(t, addr)
	}

	for _, candidate := range []string{"redis:6379", "localhost:6379"} {
		if redisReachable(t, candidate) {
			return candidate, true
		}
	}

	local := "localhost:56379"
	return local, redisReachable(t, local)
}

func redisReachable(t TestingTB, addr string) bool {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, "redis probe client", client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// selectTestRedisDB reserves a logical DB index so packages flushing their
// test DB do not trample each other. Reservations live in DB 0 under a
// TTL'd lock key, which FlushDB on the reserved index cannot remove.
// TEST_REDIS_DB overrides the auto-selection.
func selectTestRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("invalid TEST_REDIS_DB=%q, auto-selecting", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeQuietly(t, "redis meta client", meta)

	for i := 1; i <= 15; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lockKey := fmt.Sprintf("danavision:testutil:db_lock:%d", i)
		lockVal := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
		ok, err := meta.SetNX(ctx, lockKey, lockVal, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}

		releaseLockOnCleanup(t, addr, lockKey)
		t.Logf("using redis DB=%d for tests at %s", i, addr)
		return i
	}

	t.Logf("all redis DB locks taken, falling back to DB=1 at %s", addr)
	return 1
}

func releaseLockOnCleanup(t TestingTB, addr, lockKey string) {
	tc, ok := any(t).(interface{ Cleanup(func()) })
	if !ok {
		return
	}
	tc.Cleanup(func() {
		c := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Del(ctx, lockKey).Err(); err != nil {
			t.Logf("warning: release redis db lock %s: %v", lockKey, err)
		}
		closeQuietly(t, "redis cleanup client", c)
	})
}

// SetupTestRedis connects to a real Redis, reserving a dedicated DB index
// and flushing it. Skips (or fails under TEST_REQUIRE_REDIS) when no server
// is reachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		unavailable(t, requireRedis(), "redis", fmt.Errorf("no server at %s", addr))
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   selectTestRedisDB(t, addr),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		closeQuietly(t, "redis client", client)
		unavailable(t, requireRedis(), "redis", err)
	}

	client.FlushDB(ctx)
	return client
}

// SetupMiniRedis runs an in-process Redis and returns a client bound to it.
// Unlike SetupTestRedis this never skips; tests use it when they need a
// hermetic cache rather than the docker-compose instance.
func SetupMiniRedis(t *testing.T) *redis.Client {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		closeQuietly(t, "miniredis client", client)
	})
	return client
}
