// Package store provides database operations for the job fleet's tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
)

// Store provides database operations for all podpilot entities
type Store struct {
	db *sql.DB
}

// NewStore creates a new store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for advisory locks.
func (s *Store) DB() *sql.DB { return s.db }

// Open connects to postgres and configures the pool for batch workloads.
func Open(url string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, joberr.New(joberr.Fatal, "store.Open", err)
	}
	return db, nil
}

// requireField converts a missing required column into a validation error
// naming the field, so bad stored config skips the tenant loudly.
func requireField(op, field, val string) error {
	if val == "" {
		return joberr.Newf(joberr.Validation, op, "missing required field %s", field)
	}
	return nil
}
