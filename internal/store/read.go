package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// Find streams the documents of collection that match filter, in insertion
// order. Fields named in exclude are removed from every yielded document.
//
// The rows are closed when iteration ends, including an early break.
// A nil filter matches every document.
func (s *Store) Find(ctx context.Context, collection string, filter queryir.Node, exclude []string) iter.Seq2[ir.IRObject, error] {
	return func(yield func(ir.IRObject, error) bool) {
		query, params, err := s.compiler.CompileFind(collection, filter, exclude)
		if err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, params...)
		if err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id, body string
			if err := rows.Scan(&id, &body); err != nil {
				yield(nil, fmt.Errorf("find in %s: scan: %w", collection, err))
				return
			}
			doc, err := decodeDocument([]byte(body))
			if err != nil {
				yield(nil, fmt.Errorf("find in %s: document %s: %w", collection, id, err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
		}
	}
}

// Values returns the value of field for every document in collection that
// matches filter and has the field, in insertion order.
// No limit is applied: every matching document contributes.
//
// Satisfies reference.Lookup.
func (s *Store) Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error) {
	query, params, err := s.compiler.CompileValues(collection, filter, field)
	if err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}
	defer rows.Close()

	values := []ir.IRValue{}
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("values of %s in %s: scan: %w", field, collection, err)
		}
		if !raw.Valid {
			continue
		}
		v, err := ir.UnmarshalIRValue([]byte(raw.String))
		if err != nil {
			return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}
	return values, nil
}
