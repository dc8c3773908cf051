// Package migrate applies the embedded schema migrations for the jobs,
// stores, and local discovery state tables.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes migrators across processes. Every service mode
// may run migrations at startup, so concurrent deployments must queue here
// rather than race on DDL.
const advisoryLockKey = 0x64616e61 // "dana"

// Run applies every embedded migration that has not been recorded in
// schema_migrations. Safe to call repeatedly and from multiple processes.
func Run(ctx context.Context, db *sql.DB) error {
	// Advisory locks are session-scoped, so the lock and unlock must run on
	// the same connection. A pinned conn guarantees that; the migrations
	// themselves can use the pool freely.
	lockConn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration lock connection: %w", err)
	}
	defer func() {
		if err := lockConn.Close(); err != nil {
			slog.Default().ErrorContext(ctx, "failed to close migration lock connection", "err", err)
		}
	}()

	if _, err := lockConn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := lockConn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			slog.Default().ErrorContext(ctx, "failed to release migration lock", "err", err)
		}
	}()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, version := range embeddedVersions() {
		if err := applyVersion(ctx, db, version); err != nil {
			return err
		}
	}
	return nil
}

// embeddedVersions lists migration versions in apply order. File names are
// the versions, so lexicographic order is apply order.
func embeddedVersions() []string {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		// The directory is embedded at compile time; failure here means a
		// broken build, not a runtime condition.
		panic(fmt.Sprintf("migrate: read embedded migrations: %v", err))
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	sort.Strings(versions)
	return versions
}

// applyVersion runs one migration inside a transaction and records it in
// schema_migrations as part of the same transaction, so a failed migration
// leaves no record behind.
func applyVersion(ctx context.Context, db *sql.DB, version string) error {
	var applied bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&applied); err != nil {
		return fmt.Errorf("check migration %s: %w", version, err)
	}
	if applied {
		return nil
	}

	ddl, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	logger := slog.Default().With("component", "migrations")
	logger.InfoContext(ctx, "applying migration", "version", version)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback migration", "err", rollbackErr, "version", version)
		}
	}()

	if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("exec migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`, version,
	); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
