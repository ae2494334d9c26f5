// Package store provides the relational store used by hrload: a SQLite
// connection pool with the HR tables, store-side identifier sequences,
// transactional batch inserts, full-table reads, restore upserts, and the
// reporting queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/schema"
	_ "github.com/mattn/go-sqlite3"
)

// Options configures the SQLite connection pool.
type Options struct {
	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration

	// MaxOpenConns caps the pool size
	MaxOpenConns int

	// ForeignKeys enables foreign key enforcement
	ForeignKeys bool
}

// DefaultOptions returns the default pool options.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
		ForeignKeys:  true,
	}
}

// Store is the process-wide connection pool handle. It is created once during
// initialization and passed to every component that needs store access.
type Store struct {
	db       *sql.DB
	dbPath   string
	registry *schema.Registry
}

// Open opens (creating if needed) the SQLite database at dbPath and
// initializes the schema for every table in the registry.
func Open(dbPath string, registry *schema.Registry, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}

	fk := 0
	if opts.ForeignKeys {
		fk = 1
	}

	// Write transactions take the lock up front (BEGIN IMMEDIATE) so that
	// concurrent writers queue on the busy timeout instead of deadlocking.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=%d",
		dbPath, opts.BusyTimeout.Milliseconds(), fk)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, hrerrors.NewStoreError("failed to open database", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		db:       db,
		dbPath:   dbPath,
		registry: registry,
	}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates all tables and seeds the identifier sequences from the
// current table contents.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return hrerrors.NewStoreError("failed to execute schema statement", err)
		}
	}

	for _, name := range s.registry.Names() {
		if err := s.seedSequence(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return hrerrors.NewStoreError("ping failed", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Registry returns the schema registry the store was opened with.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a SQL identifier. Identifiers only ever come from the
// schema registry, never from request input.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
