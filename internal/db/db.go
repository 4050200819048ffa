// Package db opens the per-workspace SQLite store kept under .blueprint/.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dataDirName = ".blueprint"
	dbFileName  = "blueprint.db"
)

// Config locates the workspace whose data directory holds the store.
type Config struct {
	Workspace string
}

func (c Config) dataDir() string {
	ws := c.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, dataDirName)
}

// Path returns the database file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.dataDir(), dbFileName)
}

// EnsureWorkspace creates the workspace data directory if missing and returns
// its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Config{Workspace: workspace}.dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open returns a handle on the workspace database with foreign keys enforced
// and WAL journaling. The handle is capped at one connection; sqlite has a
// single writer and the CLI and the serve command share this file.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		Path(cfg.Workspace),
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
