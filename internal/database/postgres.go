// Package database provides PostgreSQL access to the ingestion ledger:
// sites, content files, entity references, and processing errors.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/jonesrussell/goingest/internal/config"
)

const (
	// maxOpenConns limits concurrent connections per process.
	maxOpenConns = 10

	// maxIdleConns keeps a small pool warm between jobs.
	maxIdleConns = 5

	// connMaxLifetime forces periodic reconnects so load balancers can
	// rotate backends.
	connMaxLifetime = 30 * time.Minute

	// pingTimeout bounds the initial connectivity check.
	pingTimeout = 5 * time.Second
)

// Connect opens a PostgreSQL connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
