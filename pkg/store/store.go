// Package store is Cardigan's durable persistence layer: a single embedded
// SQLite file holding jobs, job_phases, session_events, and config_items
// (spec §3, §6). It is hand-written against database/sql and sqlx rather
// than generated, because the teacher's ent-generated client is not
// reproducible without running `go generate` (see DESIGN.md); the shape of
// NewStore/runMigrations below otherwise follows tarsy's
// pkg/database/client.go, retargeted from Postgres/pgx to sqlite.
//
// Migrations are applied with a small embedded-SQL runner rather than
// golang-migrate: golang-migrate's sqlite3 database driver requires
// github.com/mattn/go-sqlite3, which is cgo-based and would silently
// reintroduce the C dependency modernc.org/sqlite was chosen to avoid (see
// DESIGN.md's dependency disposition table).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/codeready-toolchain/cardigan/internal/migrations"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Config configures the embedded store.
type Config struct {
	// Path is the file the SQLite database lives in. Empty means
	// in-memory, used by tests.
	Path string
}

// Store wraps the database handle and provides the query methods spec §4.1
// requires. Its methods are split across jobs.go, phases.go, events.go and
// config_items.go by entity, mirroring tarsy's one-file-per-concern layout
// even though there is no generated ent client to delegate to here.
type Store struct {
	db *sqlx.DB
}

// _txlock=immediate makes every BeginTx issue BEGIN IMMEDIATE rather than
// SQLite's default BEGIN DEFERRED, so the claim transaction in jobs.go
// takes its write lock up front instead of racing another connection
// between its SELECT and its UPDATE.
func dsn(path string) string {
	if path == "" {
		return "file::memory:?cache=shared&_txlock=immediate"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate", path)
}

// NewStore opens (creating if necessary) the SQLite file at cfg.Path,
// applies pending migrations, and returns a ready Store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writers at the file level; a single connection
	// avoids SQLITE_BUSY storms under concurrent workers and keeps the
	// claim-transaction semantics in jobs.go deterministic.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := runMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// runMigrations applies every *.up.sql file embedded in internal/migrations
// that has not already been recorded in schema_migrations, in filename
// order, each inside its own transaction (tarsy's runMigrations in
// pkg/database/client.go: migrations are embedded in the binary and
// auto-applied on startup; the apply-and-record loop is hand-written here
// instead of delegated to golang-migrate, see the package doc comment).
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`, name, now()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for health checks (mirrors tarsy's
// pkg/database.Client.DB()).
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// now is overridable in tests that need deterministic timestamps; the
// production path always calls time.Now.
var now = time.Now
