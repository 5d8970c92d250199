// Schema migrations for the history store. Files under migrations/ are named
// NNN_description.up.sql; each runs once, in version order, in its own
// transaction, and is recorded in schema_migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.up.sql
var migrationFS embed.FS

const migrationSuffix = ".up.sql"

// Migration is one embedded schema step.
type Migration struct {
	Version int
	Name    string
	sql     string
}

// SchemaStatus compares the applied schema with the embedded migrations.
type SchemaStatus struct {
	Current int `json:"current"`
	Latest  int `json:"latest"`
}

// UpToDate reports whether every embedded migration has been applied.
func (s SchemaStatus) UpToDate() bool { return s.Current >= s.Latest }

// Migrations returns the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded dir: %w", err)
	}

	out := make([]Migration, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, migrationSuffix) {
			continue
		}
		version, err := parseVersion(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrate: version %d used by %s and %s", version, prev, name)
		}
		seen[version] = name

		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: name, sql: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseVersion reads the numeric prefix of "042_add_index.up.sql".
func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migrate: %s: missing NNN_ prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migrate: %s: invalid version %q", name, prefix)
	}
	return v, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sql.DB) error {
	_, err := Migrate(context.Background(), db)
	return err
}

// Migrate applies pending migrations and returns the ones it applied. On
// failure the migrations applied before the failing one stay committed.
func Migrate(ctx context.Context, db *sql.DB) ([]Migration, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []Migration
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return done, fmt.Errorf("migrate: apply %s: %w", m.Name, err)
		}
		done = append(done, m)
	}
	return done, nil
}

// MigrationVersion returns the highest applied version, 0 on a fresh database.
func MigrationVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	var version int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: query version: %w", err)
	}
	return version, nil
}

// Status reports the applied version against the newest embedded one.
func Status(ctx context.Context, db *sql.DB) (SchemaStatus, error) {
	all, err := Migrations()
	if err != nil {
		return SchemaStatus{}, err
	}
	current, err := MigrationVersion(ctx, db)
	if err != nil {
		return SchemaStatus{}, err
	}
	st := SchemaStatus{Current: current}
	if len(all) > 0 {
		st.Latest = all[len(all)-1].Version
	}
	return st, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate: ensure schema_migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("migrate: list applied: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
