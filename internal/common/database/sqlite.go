// internal/common/database/sqlite.go
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"shopping-agent/internal/common/config"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(cfg config.SQLiteConfig) (*SQLClient, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// The tracker loop and the menu write from different goroutines.
	db.SetMaxOpenConns(1)

	return &SQLClient{DB: db, Dialect: DialectSQLite}, nil
}
