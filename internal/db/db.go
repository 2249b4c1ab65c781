// Package db owns the engine's embedded SQLite database: a single WAL-mode
// connection shared by every repository, schema migrations embedded in the
// binary, and crash recovery for generation jobs.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the shared connection. One connection is intentional: SQLite
// serializes writers regardless, and a single handle keeps busy errors out
// of the repositories.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens or creates the database at dbPath, applies pragmas and any
// pending migrations, and fails jobs left processing by a crashed run.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db.failInterruptedJobs()

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the shared connection for the repositories.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies embedded migration files in name order, recording each in
// _migrations. The first migration creates _migrations itself, so a fresh
// database starts from an empty applied set.
func (d *DB) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	applied := d.appliedMigrations()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := d.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := d.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}

		if d.logger != nil {
			d.logger.Info("applied migration", "name", name)
		}
	}

	return nil
}

// appliedMigrations returns the set of recorded migration names. Before the
// first migration runs the table does not exist yet; that reads as nothing
// applied.
func (d *DB) appliedMigrations() map[string]bool {
	applied := make(map[string]bool)

	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return applied
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			applied[name] = true
		}
	}
	return applied
}

// failInterruptedJobs marks jobs stuck in processing as failed. A job only
// holds that status while this process drives it, so after a restart every
// such row is an orphan.
func (d *DB) failInterruptedJobs() {
	res, err := d.conn.ExecContext(context.Background(),
		`UPDATE jobs SET status = 'failed', error = 'interrupted by restart', updated_at = datetime('now') WHERE status = 'processing'`)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("failed to mark interrupted jobs", "error", err)
		}
		return
	}
	if n, _ := res.RowsAffected(); n > 0 && d.logger != nil {
		d.logger.Info("failed interrupted jobs", "count", n)
	}
}
