package migrate

import (
	"database/sql"
	"embed"
	"fmt"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// steps are applied in order; user_version records how many have run.
// Append new steps at the end, never reorder or edit a shipped one.
var steps = []string{
	"sql/1_init.sql",
}

// Migrate brings a workspace database up to the current schema. Each pending
// step runs in its own transaction and bumps user_version with it, so a
// failed step leaves the database at the last completed version.
func Migrate(conn *sql.DB) error {
	version, err := Version(conn)
	if err != nil {
		return err
	}
	if version > len(steps) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", version, len(steps))
	}
	for i := version; i < len(steps); i++ {
		if err := apply(conn, i); err != nil {
			return err
		}
	}
	return nil
}

// Version reads the schema version of an open database. 0 means untouched.
func Version(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func apply(conn *sql.DB, step int) error {
	ddl, err := schemaFS.ReadFile(steps[step])
	if err != nil {
		return fmt.Errorf("schema step %s: %w", steps[step], err)
	}
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(string(ddl)); err != nil {
		return fmt.Errorf("schema step %s: %w", steps[step], err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", step+1)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
