package db

import (
	"bytes"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPath(t *testing.T) {
	if got := (Config{}).Path(); got != "" {
		t.Errorf("in-memory path = %q", got)
	}
	want := filepath.Join("data", "duckdb", "hotspots.duckdb")
	if got := (Config{DataDir: "data"}).Path(); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	if got := (Config{DataDir: "data", DBName: "usage"}).Path(); got != filepath.Join("data", "duckdb", "usage.duckdb") {
		t.Errorf("Path = %q", got)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Skipf("duckdb unavailable: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow("SELECT 40 + 2").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "duckdb", "hotspots.duckdb")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

type failingExec struct{ queries []string }

func (f *failingExec) Exec(query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	return nil, errors.New("extension repository unreachable")
}

func TestLoadExtensionsLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	conn := &failingExec{}

	loadExtensions(conn, logger, "parquet")

	if len(conn.queries) != 1 || conn.queries[0] != "INSTALL parquet; LOAD parquet;" {
		t.Errorf("queries = %q", conn.queries)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "extension=parquet", "extension repository unreachable"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}
