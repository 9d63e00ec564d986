package docsource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	_ "modernc.org/sqlite"
)

const DefaultTable = "documents"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite reads documents from a table of (id TEXT, body TEXT) rows in an
// existing database. The database is opened query-only.
type SQLite struct {
	Path  string
	Table string
}

func (s *SQLite) Each(ctx context.Context, fn func(Raw) error) error {
	table := s.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	db, err := openDB(s.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT id, body FROM `+table+` ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw Raw
		if err := rows.Scan(&raw.ID, &raw.Body); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate documents: %w", err)
	}
	return nil
}

func openDB(path string) (*sql.DB, error) {
	// sql.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only=1"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set query only: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
