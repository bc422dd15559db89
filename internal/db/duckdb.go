// Package db opens the DuckDB database backing the usage ledger.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	Logger  *slog.Logger
}

// Path returns the database file path: <data-dir>/duckdb/<name>.duckdb.
// An empty DataDir means an in-memory database.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	name := c.DBName
	if name == "" {
		name = "hotspots"
	}
	return filepath.Join(c.DataDir, "duckdb", name+".duckdb")
}

// Open opens (creating if needed) the DuckDB database described by cfg.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.Path()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb %q: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to duckdb %q: %w", path, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// parquet backs the usage export.
	loadExtensions(conn, logger, "parquet")

	return conn, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// loadExtensions installs and loads each extension. A failure is logged and
// left for the feature that needs the extension to report.
func loadExtensions(conn execer, logger *slog.Logger, names ...string) {
	for _, ext := range names {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			logger.Warn("duckdb extension unavailable", "extension", ext, "error", err)
		}
	}
}
