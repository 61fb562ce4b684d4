package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/roach88/clinic/internal/catalog"
)

// PutRecord inserts rec, or fully replaces the record sharing its key.
// The key is read from the collection's key field and must be a non-empty string.
func (s *Store) PutRecord(ctx context.Context, collection string, rec Record) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	col, err := s.lookup("put", collection)
	if err != nil {
		return err
	}

	key, doc, err := prepare(col, rec)
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "put", Collection: collection, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "put", Collection: collection, Key: key, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	if err := s.putTx(ctx, tx, collection, key, doc); err != nil {
		return &Error{Code: CodeWriteFailed, Op: "put", Collection: collection, Key: key, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Code: CodeWriteFailed, Op: "put", Collection: collection, Key: key, Err: fmt.Errorf("commit: %w", err)}
	}

	s.logger.Debug("record put", "collection", collection, "key", key)
	return nil
}

// GetRecord returns the record with the given key. The boolean is false when
// no such record exists.
func (s *Store) GetRecord(ctx context.Context, collection, key string) (Record, bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, false, err
	}
	if _, err := s.lookup("get", collection); err != nil {
		return nil, false, err
	}

	query, args, err := s.dialect.From(goqu.T(collection)).
		Select("doc").
		Where(goqu.C("key").Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, false, &Error{Code: CodeReadFailed, Op: "get", Collection: collection, Key: key, Err: err}
	}

	var doc string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Code: CodeReadFailed, Op: "get", Collection: collection, Key: key, Err: err}
	}

	rec, err := parseRecord([]byte(doc))
	if err != nil {
		return nil, false, &Error{Code: CodeReadFailed, Op: "get", Collection: collection, Key: key, Err: err}
	}
	return rec, true, nil
}

// GetAllRecords returns every record in the collection, ordered by key.
// An empty collection yields an empty, non-nil slice.
func (s *Store) GetAllRecords(ctx context.Context, collection string) ([]Record, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if _, err := s.lookup("get all", collection); err != nil {
		return nil, err
	}

	query, args, err := s.dialect.From(goqu.T(collection)).
		Select("doc").
		Order(goqu.C("key").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, &Error{Code: CodeReadFailed, Op: "get all", Collection: collection, Err: err}
	}

	recs, err := s.queryRecords(ctx, query, args)
	if err != nil {
		return nil, &Error{Code: CodeReadFailed, Op: "get all", Collection: collection, Err: err}
	}
	return recs, nil
}

// GetByIndex returns the records whose indexed field equals value, ordered by key.
func (s *Store) GetByIndex(ctx context.Context, collection, index, value string) ([]Record, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	col, err := s.lookup("get by index", collection)
	if err != nil {
		return nil, err
	}
	idx, ok := col.Index(index)
	if !ok {
		return nil, &Error{
			Code:       CodeUnknownCollection,
			Op:         "get by index",
			Collection: collection,
			Err:        fmt.Errorf("no index %q", index),
		}
	}

	query, args, err := s.dialect.From(goqu.T(collection)).
		Select("doc").
		Where(goqu.L(fieldExpr(idx.Field)).Eq(value)).
		Order(goqu.C("key").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, &Error{Code: CodeReadFailed, Op: "get by index", Collection: collection, Err: err}
	}

	recs, err := s.queryRecords(ctx, query, args)
	if err != nil {
		return nil, &Error{Code: CodeReadFailed, Op: "get by index", Collection: collection, Err: err}
	}
	return recs, nil
}

// DeleteRecord removes the record with the given key. Deleting a key that does
// not exist succeeds. Records in other collections that reference the key are
// left untouched.
func (s *Store) DeleteRecord(ctx context.Context, collection, key string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.lookup("delete", collection); err != nil {
		return err
	}

	query, args, err := s.dialect.Delete(goqu.T(collection)).
		Where(goqu.C("key").Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "delete", Collection: collection, Key: key, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &Error{Code: CodeWriteFailed, Op: "delete", Collection: collection, Key: key, Err: err}
	}

	s.logger.Debug("record deleted", "collection", collection, "key", key)
	return nil
}

// ClearCollection removes every record in the collection.
func (s *Store) ClearCollection(ctx context.Context, collection string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.lookup("clear", collection); err != nil {
		return err
	}

	query, args, err := s.dialect.Delete(goqu.T(collection)).Prepared(true).ToSQL()
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "clear", Collection: collection, Err: err}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "clear", Collection: collection, Err: err}
	}

	removed, _ := res.RowsAffected()
	s.logger.Debug("collection cleared", "collection", collection, "removed", removed)
	return nil
}

// ReplaceAll atomically replaces the contents of every collection named in
// data. All records are validated before anything is written; then, in a
// single transaction, every named collection is cleared and refilled. A
// concurrent reader sees either the old state or the new one, never a mix.
// Collections absent from data are left as they are.
func (s *Store) ReplaceAll(ctx context.Context, data map[string][]Record) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	staged := make(map[string][]stagedRow, len(data))
	for name, recs := range data {
		col, err := s.lookup("replace", name)
		if err != nil {
			return err
		}
		rows := make([]stagedRow, 0, len(recs))
		for i, rec := range recs {
			key, doc, err := prepare(col, rec)
			if err != nil {
				return &Error{Code: CodeWriteFailed, Op: "replace", Collection: name, Err: fmt.Errorf("record %d: %w", i, err)}
			}
			rows = append(rows, stagedRow{key: key, doc: doc})
		}
		staged[name] = rows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Code: CodeWriteFailed, Op: "replace", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	// Clear everything before writing anything, in catalog order.
	names := s.orderedNames(staged)
	for _, name := range names {
		query, args, err := s.dialect.Delete(goqu.T(name)).Prepared(true).ToSQL()
		if err != nil {
			return &Error{Code: CodeWriteFailed, Op: "replace", Collection: name, Err: err}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return &Error{Code: CodeWriteFailed, Op: "replace", Collection: name, Err: fmt.Errorf("clear: %w", err)}
		}
	}

	for _, name := range names {
		for _, r := range staged[name] {
			if err := s.putTx(ctx, tx, name, r.key, r.doc); err != nil {
				return &Error{Code: CodeWriteFailed, Op: "replace", Collection: name, Key: r.key, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Code: CodeWriteFailed, Op: "replace", Err: fmt.Errorf("commit: %w", err)}
	}

	for _, name := range names {
		s.logger.Info("collection replaced", "collection", name, "records", len(staged[name]))
	}
	return nil
}

// putTx replaces the row for key within tx. Delete-then-insert keeps the
// upsert inside plain statements every SQLite build understands.
func (s *Store) putTx(ctx context.Context, tx *sql.Tx, collection, key, doc string) error {
	del, args, err := s.dialect.Delete(goqu.T(collection)).
		Where(goqu.C("key").Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("delete existing: %w", err)
	}

	ins, args, err := s.dialect.Insert(goqu.T(collection)).
		Rows(goqu.Record{"key": key, "doc": doc}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args []any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec, err := parseRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return recs, nil
}

func (s *Store) lookup(op, collection string) (catalog.Collection, error) {
	col, ok := s.cat.Lookup(collection)
	if !ok {
		return catalog.Collection{}, &Error{Code: CodeUnknownCollection, Op: op, Collection: collection}
	}
	return col, nil
}

// orderedNames returns the keys of staged in catalog order.
func (s *Store) orderedNames(staged map[string][]stagedRow) []string {
	names := make([]string, 0, len(staged))
	for _, name := range s.cat.Names() {
		if _, ok := staged[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// stagedRow is a validated record ready to insert.
type stagedRow struct {
	key string
	doc string
}

// prepare extracts the key and canonical document for rec.
func prepare(col catalog.Collection, rec Record) (key, doc string, err error) {
	key, ok := rec.Key(col.Key)
	if !ok {
		return "", "", fmt.Errorf("%w: field %q", ErrMissingKey, col.Key)
	}
	doc, err = marshalRecord(rec)
	if err != nil {
		return "", "", err
	}
	return key, doc, nil
}
