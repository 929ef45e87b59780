package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations is the embedded schema history shipped with the binary.
func Migrations() fs.FS {
	return migrationFiles
}

const (
	migrationsDir         = "migrations"
	migrationAdvisoryLock = int64(0x6c75646f)
	createTrackingTable   = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     text PRIMARY KEY,
    name        text NOT NULL,
    executed_at timestamptz NOT NULL DEFAULT now()
)`
)

type TxStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Migration struct {
	Version string
	Name    string
	Path    string
	number  int
}

type AppliedMigration struct {
	Version    string
	Name       string
	ExecutedAt time.Time
}

type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

type migrateOptions struct {
	dir     string
	version string
}

type MigrateOption func(*migrateOptions)

func WithMigrationsDir(dir string) MigrateOption {
	return func(o *migrateOptions) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithVersion runs only the migration with this version, even if it was applied
// before.
func WithVersion(version string) MigrateOption {
	return func(o *migrateOptions) {
		o.version = strings.TrimSpace(version)
	}
}

// ParseMigrationVersion returns the numeric prefix of a file name such as
// "002_create_game_manuals.sql".
func ParseMigrationVersion(name string) (string, error) {
	base := strings.TrimSuffix(name, path.Ext(name))
	idx := strings.IndexAny(base, "_-")
	if idx <= 0 {
		return "", fmt.Errorf("migrate: %q has no numeric version prefix", name)
	}
	version := base[:idx]
	if _, err := strconv.Atoi(version); err != nil {
		return "", fmt.Errorf("migrate: %q has no numeric version prefix", name)
	}
	return version, nil
}

// DiscoverMigrations lists the .sql files in dir ordered by numeric version.
func DiscoverMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	out := make([]Migration, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		version, err := ParseMigrationVersion(e.Name())
		if err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(version)
		if prev, ok := seen[n]; ok {
			return nil, fmt.Errorf("migrate: duplicate version %s in %s and %s", version, prev, e.Name())
		}
		seen[n] = e.Name()
		out = append(out, Migration{Version: version, Name: e.Name(), Path: path.Join(dir, e.Name()), number: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out, nil
}

// ApplyMigrations runs pending migrations in one transaction guarded by an
// advisory lock and returns the ones it executed.
func ApplyMigrations(ctx context.Context, conn TxStarter, fsys fs.FS, opts ...MigrateOption) ([]Migration, error) {
	settings := migrateOptions{dir: migrationsDir}
	for _, opt := range opts {
		opt(&settings)
	}
	all, err := DiscoverMigrations(fsys, settings.dir)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("migrate: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationAdvisoryLock); err != nil {
		return nil, fmt.Errorf("migrate: acquire advisory lock: %w", err)
	}
	if _, err := tx.Exec(ctx, createTrackingTable); err != nil {
		return nil, fmt.Errorf("migrate: ensure tracking table: %w", err)
	}

	var toApply []Migration
	if settings.version != "" {
		for _, m := range all {
			if versionsEqual(m.Version, settings.version) {
				toApply = append(toApply, m)
			}
		}
		if len(toApply) == 0 {
			return nil, fmt.Errorf("migrate: version %s not found", settings.version)
		}
	} else {
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, m := range all {
			if _, ok := applied[m.Version]; !ok {
				toApply = append(toApply, m)
			}
		}
	}

	for _, m := range toApply {
		raw, err := fs.ReadFile(fsys, m.Path)
		if err != nil {
			return nil, fmt.Errorf("migrate: %s: %w", m.Path, err)
		}
		if _, err := tx.Exec(ctx, string(raw)); err != nil {
			return nil, wrapMigrationError(m.Path, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)
ON CONFLICT (version) DO UPDATE SET name = EXCLUDED.name, executed_at = now()`, m.Version, m.Name); err != nil {
			return nil, fmt.Errorf("migrate: record %s: %w", m.Version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("migrate: commit transaction: %w", err)
	}
	committed = true
	return toApply, nil
}

// Status reports which embedded migrations have run.
func Status(ctx context.Context, conn TxStarter, fsys fs.FS, opts ...MigrateOption) (MigrationStatus, error) {
	settings := migrateOptions{dir: migrationsDir}
	for _, opt := range opts {
		opt(&settings)
	}
	all, err := DiscoverMigrations(fsys, settings.dir)
	if err != nil {
		return MigrationStatus{}, err
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status MigrationStatus
	rows, err := tx.Query(ctx, "SELECT version, name, executed_at FROM schema_migrations ORDER BY executed_at")
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			status.Pending = all
			return status, nil
		}
		return MigrationStatus{}, fmt.Errorf("migrate: list applied versions: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.ExecutedAt); err != nil {
			return MigrationStatus{}, fmt.Errorf("migrate: read applied versions: %w", err)
		}
		status.Applied = append(status.Applied, a)
		done[a.Version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return MigrationStatus{}, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	for _, m := range all {
		if _, ok := done[m.Version]; !ok {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func appliedVersions(ctx context.Context, tx pgx.Tx) (map[string]struct{}, error) {
	rows, err := tx.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied versions: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("migrate: read applied versions: %w", err)
		}
		applied[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	return applied, nil
}

func versionsEqual(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return x == y
}

func wrapMigrationError(path string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Line > 0 {
		return fmt.Errorf("migrate: %s:%d: %w", path, pgErr.Line, err)
	}
	return fmt.Errorf("migrate: %s: %w", path, err)
}
