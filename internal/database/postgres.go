// Package database provides the PostgreSQL-backed persistence layer for the
// Project Store (C5), plus a row-based distributed lock used for
// cross-replica serialization.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Database wraps a *sql.DB with the rebind helper every query goes through.
type Database struct {
	db *sql.DB
}

// rebind converts ? placeholders to PostgreSQL's $N positional form.
func rebind(query string) string {
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// Open connects to Postgres, verifies reachability, and initializes schema.
func Open(dsn string) (*Database, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &Database{db: sqlDB}
	if err := d.initSchema(); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return d, nil
}

// DB exposes the underlying *sql.DB for components (e.g. logging) that
// persist alongside project state.
func (d *Database) DB() *sql.DB { return d.db }

// Close releases the underlying connection pool.
func (d *Database) Close() error { return d.db.Close() }

func (d *Database) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			forge_repo_id TEXT,
			forge_owner TEXT,
			platform_app_uuid TEXT,
			container_port INTEGER NOT NULL,
			status TEXT NOT NULL,
			status_detail TEXT,
			fqdn_url TEXT,
			llm_provider_id TEXT,
			llm_model_id TEXT,
			clone_url_public TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_slug_active ON projects(slug) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status)`,

		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			credential_material TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resource_tiers (
			id TEXT PRIMARY KEY,
			cpu_millicores INTEGER NOT NULL,
			memory_mb INTEGER NOT NULL,
			gpu BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS container_flavors (
			id TEXT PRIMARY KEY,
			description TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS container_addons (
			id TEXT PRIMARY KEY,
			description TEXT,
			requires_gpu BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			extra_port INTEGER,
			compatible_flavors TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS distributed_locks (
			lock_name TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			heartbeat_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
