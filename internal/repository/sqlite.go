package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	_ "modernc.org/sqlite"
)

// memoryPath selects a process-local database that disappears on Close.
const memoryPath = ":memory:"

// openSQLite opens a SQLite database using the pure Go modernc driver.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./haveibeendrained.db"
	}

	var dsn string
	if path == memoryPath {
		// Every pooled connection would otherwise see its own empty database.
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(ON)"
	} else {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	return db, nil
}
