package duckdb

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver
)

// Options controls how a database file is opened.
type Options struct {
	// ReadOnly opens the file without taking the write lock.
	ReadOnly bool
}

// Open opens the DuckDB database at path, creating its parent directory when
// writing. An empty path or ":memory:" opens an in-memory database.
func Open(path string, opts Options) (*sql.DB, error) {
	inMemory := path == "" || path == ":memory:"
	if !inMemory && !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

// dsn appends access_mode for read-only opens, keeping any query already on path.
func dsn(path string, opts Options) string {
	if path == ":memory:" {
		path = ""
	}
	if !opts.ReadOnly || path == "" {
		return path
	}

	base, query, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		return path
	}
	if !params.Has("access_mode") {
		params.Set("access_mode", "READ_ONLY")
	}
	return base + "?" + params.Encode()
}
