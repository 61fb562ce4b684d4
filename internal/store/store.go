package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/clinic/internal/catalog"
)

// Store provides durable storage for the clinic's record collections.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db      *sql.DB
	cat     *catalog.Catalog
	dialect goqu.DialectWrapper
	logger  *slog.Logger

	// schemaMu guards the one-time schema check; ready is set once it succeeds.
	schemaMu sync.Mutex
	ready    bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for schema and write events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCatalog overrides the collection catalog. Mostly useful for building a
// database at an older schema version.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Store) {
		if c != nil {
			s.cat = c
		}
	}
}

// Open creates or opens a SQLite database at the given path, applies the
// required pragmas, and brings the schema up to the catalog version.
//
// Every failure is reported as STORAGE_UNAVAILABLE.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		dialect: goqu.Dialect("sqlite3"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cat == nil {
		cat, err := catalog.Load()
		if err != nil {
			return nil, unavailable("load catalog", err)
		}
		s.cat = cat
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, unavailable("open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("connect to database", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, unavailable("apply pragmas", err)
	}

	s.db = db

	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Catalog returns the catalog the store was opened with.
func (s *Store) Catalog() *catalog.Catalog {
	return s.cat
}

// Collections returns the collection names in catalog order.
func (s *Store) Collections() []string {
	return s.cat.Names()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = OFF",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
