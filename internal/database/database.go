// Package database opens the SQLite files behind the persistent stores.
// Two drivers are supported: mattn/go-sqlite3 (cgo, the default) and
// modernc.org/sqlite (pure Go, for CGO_ENABLED=0 builds).
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names as registered with database/sql.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// DSN returns the data source name for path with WAL journaling and a
// busy timeout, spelled the way each driver expects.
func DSN(driver, path string) (string, error) {
	switch driver {
	case DriverCGO, "":
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPure:
		return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", driver)
	}
}

// Open opens (creating if needed) the SQLite database at path. The
// parent directory is created when missing.
func Open(driver, path string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverCGO
	}
	dsn, err := DSN(driver, path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return db, nil
}
