package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/queryir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustInsert inserts docs into collection or fails the test.
func mustInsert(t *testing.T, s *Store, collection string, docs ...ir.IRObject) {
	t.Helper()
	if _, err := s.Insert(context.Background(), collection, docs...); err != nil {
		t.Fatalf("Insert(%s) failed: %v", collection, err)
	}
}

// parseFilter parses a JSON query fragment; "" is the nil filter.
func parseFilter(t *testing.T, fragment string) queryir.Node {
	t.Helper()
	if fragment == "" {
		return nil
	}
	node, err := querybuild.ParseFragment(fragment)
	if err != nil {
		t.Fatalf("ParseFragment(%s) failed: %v", fragment, err)
	}
	return node
}

// findAll drains Find or fails the test.
func findAll(t *testing.T, s *Store, collection string, filter queryir.Node, exclude []string) []ir.IRObject {
	t.Helper()
	var docs []ir.IRObject
	for doc, err := range s.Find(context.Background(), collection, filter, exclude) {
		if err != nil {
			t.Fatalf("Find(%s) failed: %v", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs
}

// findIDs runs Find and returns the _id of every yielded document.
func findIDs(t *testing.T, s *Store, collection, fragment string) []string {
	t.Helper()
	docs := findAll(t, s, collection, parseFilter(t, fragment), nil)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc[FieldID].(ir.IRString)
		ids = append(ids, string(id))
	}
	return ids
}

// project builds a minimal project document.
func project(id string, pairs ...ir.IRPair) ir.IRObject {
	doc := ir.NewIRObjectFromPairs(pairs...)
	doc[FieldID] = ir.IRString(id)
	return doc
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
