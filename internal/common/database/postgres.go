// internal/common/database/postgres.go
package database

import (
	"database/sql"
	"fmt"
	"time"

	"shopping-agent/internal/common/config"

	_ "github.com/lib/pq"
)

const (
	defaultPostgresMaxOpen = 4
	defaultPostgresMaxIdle = 2
)

// NewPostgres opens the price history database on PostgreSQL. The tracker
// only writes one check at a time, so the pool defaults stay small.
func NewPostgres(cfg config.PostgresConfig) (*SQLClient, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("postgres host and database are required")
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	db, err := sql.Open("postgres", cfg.GetDSN()+" application_name=shopping-agent")
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxConnections, cfg.MaxIdle
	if maxOpen <= 0 {
		maxOpen = defaultPostgresMaxOpen
	}
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = min(defaultPostgresMaxIdle, maxOpen)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQLClient{DB: db, Dialect: DialectPostgres}, nil
}
