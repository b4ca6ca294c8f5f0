package store

import (
	"context"
	"fmt"

	"github.com/roach88/mdstats/internal/ir"
)

// FieldID is the document identity field.
const FieldID = "_id"

// Insert writes documents into a collection inside a single transaction and
// returns how many were written.
// Uses ON CONFLICT(collection, id) DO UPDATE: a document whose id already
// exists replaces the stored body but keeps its original position.
//
// Bodies are serialized to canonical JSON per RFC 8785.
func (s *Store) Insert(ctx context.Context, collection string, docs ...ir.IRObject) (int, error) {
	if collection == "" {
		return 0, fmt.Errorf("insert: empty collection name")
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: begin: %w", collection, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, body)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body
	`)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: prepare: %w", collection, err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		id, err := s.documentID(doc)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: document %d: %w", collection, i, err)
		}
		body, err := ir.MarshalCanonical(doc)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: document %d: %w", collection, i, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, id, string(body)); err != nil {
			return 0, fmt.Errorf("insert into %s: document %d: %w", collection, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert into %s: commit: %w", collection, err)
	}
	return len(docs), nil
}

// documentID derives the row id: a string _id is used as is, any other
// _id value by its canonical JSON, and a missing or null _id gets a fresh id.
func (s *Store) documentID(doc ir.IRObject) (string, error) {
	v, ok := doc[FieldID]
	if !ok || ir.IsNull(v) {
		return s.newID(), nil
	}
	if str, ok := v.(ir.IRString); ok {
		return string(str), nil
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", FieldID, err)
	}
	return string(b), nil
}
