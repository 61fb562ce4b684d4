package store

import (
	"context"
	"fmt"

	"github.com/roach88/clinic/internal/catalog"
)

// EnsureSchema brings the on-disk schema to the catalog version.
//
// It is idempotent and safe for concurrent use: callers serialize on a mutex
// and only the first successful call does any work. A failed upgrade leaves
// the database unchanged (the whole upgrade is one transaction) and the next
// call retries.
//
// All data operations call it first, so an explicit call is only needed to
// surface STORAGE_UNAVAILABLE early. Open already calls it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.upgrade(ctx); err != nil {
		return unavailable("ensure schema", err)
	}
	s.ready = true
	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, &Error{Code: CodeReadFailed, Op: "read schema version", Err: err}
	}
	return version, nil
}

// upgrade applies every collection and index added since the stored version.
func (s *Store) upgrade(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var stored int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stored); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	target := s.cat.Version
	if stored > target {
		return fmt.Errorf("database schema version %d is newer than supported version %d", stored, target)
	}
	if stored == target {
		return nil
	}

	changes := s.cat.Added(stored)
	for _, ch := range changes {
		stmt := createStatement(ch)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	// user_version is part of the database header, so it commits with the tables.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("schema upgraded",
		"from_version", stored,
		"to_version", target,
		"changes", len(changes),
	)
	return nil
}

// createStatement renders the DDL for one catalog change. Names and fields
// are restricted to identifier characters by the catalog schema.
func createStatement(ch catalog.Change) string {
	if ch.Index == nil {
		return fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY NOT NULL, doc TEXT NOT NULL)`,
			ch.Collection.Name,
		)
	}
	return fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %q ON %q (%s)`,
		indexName(ch.Collection.Name, ch.Index.Name),
		ch.Collection.Name,
		fieldExpr(ch.Index.Field),
	)
}

func indexName(collection, index string) string {
	return fmt.Sprintf("idx_%s_%s", collection, index)
}

// fieldExpr is the indexed expression for a top-level document field. Lookups
// must use the identical expression for SQLite to pick the index.
func fieldExpr(field string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", field)
}
