// Package database opens the PostgreSQL connection pool used by the import
// job store and applies its schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PoolConfig holds connection pool limits
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	MaxConnLife  time.Duration
	MaxConnIdle  time.Duration
}

// DefaultPoolConfig returns the pool limits used when none are configured
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		MaxConnLife:  5 * time.Minute,
		MaxConnIdle:  time.Minute,
	}
}

// DB wraps the sql.DB with health and stats helpers
type DB struct {
	*sql.DB
	log *logrus.Logger
}

// Open creates a new connection pool and verifies it with a ping
func Open(ctx context.Context, databaseURL string, config PoolConfig, logger *logrus.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.MaxConnLife)
	sqlDB.SetConnMaxIdleTime(config.MaxConnIdle)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_open_conns": config.MaxOpenConns,
		"max_idle_conns": config.MaxIdleConns,
	}).Info("Database connection pool established")

	return &DB{DB: sqlDB, log: logger}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	err := db.DB.Close()
	db.log.Info("Database connection pool closed")
	return err
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}
