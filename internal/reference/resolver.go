package reference

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// DefaultMaxConcurrentLookups bounds in-flight reference lookups per Resolve.
const DefaultMaxConcurrentLookups = 8

// Lookup reads identifier values from a reference collection.
//
// Values returns the value of field for every document in collection that
// matches filter, in the collection's natural order, with no implicit limit.
// Documents where field is missing are skipped.
type Lookup interface {
	Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error)
}

// Resolver rewrites reference-scoped leaves into membership predicates.
// A Resolver holds no per-request state and is safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	lookup  Lookup
	limit   int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxConcurrentLookups bounds how many lookups one Resolve call may run
// at once. Values below 1 are ignored.
func WithMaxConcurrentLookups(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.limit = n
		}
	}
}

// NewResolver creates a Resolver over catalog, reading reference
// collections through lookup.
func NewResolver(catalog *Catalog, lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		catalog: catalog,
		lookup:  lookup,
		limit:   DefaultMaxConcurrentLookups,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// target is one reference leaf awaiting its lookup result.
type target struct {
	leaf  queryir.Leaf
	field Field
	spec  Spec
}

// Resolve returns a new tree in which every references.<name>.<inner> leaf
// is replaced by a membership predicate on the spec's ProjectIDsField.
//
// Resolution runs in three phases:
//  1. Every leaf is parsed and checked against the catalog. Unknown names
//     fail here, before any lookup is issued.
//  2. Lookups run concurrently, bounded by the configured limit. The first
//     failure cancels the rest.
//  3. The tree is rebuilt with results substituted in leaf order.
//
// A tree without reference leaves is returned as is. The input is never
// modified.
func (r *Resolver) Resolve(ctx context.Context, node queryir.Node) (queryir.Node, error) {
	targets, err := r.collect(node)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return node, nil
	}

	results := make([][]ir.IRValue, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, t := range targets {
		g.Go(func() error {
			ids, err := r.lookupIDs(gctx, t)
			if err != nil {
				return err
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	next := 0
	return queryir.Rewrite(node, func(leaf queryir.Leaf) (queryir.Node, error) {
		if _, ok, _ := ParseField(leaf.Field); !ok {
			return leaf, nil
		}
		t := targets[next]
		ids := results[next]
		next++
		return queryir.In(t.spec.ProjectIDsField, ids), nil
	})
}

// collect parses every leaf and returns the reference leaves in tree order.
func (r *Resolver) collect(node queryir.Node) ([]target, error) {
	var targets []target
	for _, leaf := range queryir.Leaves(node) {
		f, ok, err := ParseField(leaf.Field)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		spec, known := r.catalog.Lookup(f.Name)
		if !known {
			return nil, &UnknownReferenceError{Name: f.Name, Field: leaf.Field}
		}
		targets = append(targets, target{leaf: leaf, field: f, spec: spec})
	}
	return targets, nil
}

func (r *Resolver) lookupIDs(ctx context.Context, t target) ([]ir.IRValue, error) {
	filter := queryir.Leaf{Field: t.field.Inner, Predicate: t.leaf.Predicate, Source: t.leaf.Source}
	values, err := r.lookup.Values(ctx, t.spec.Collection, filter, t.spec.IDField)
	if err != nil {
		return nil, fmt.Errorf("lookup %s in %s: %w", t.field, t.spec.Collection, err)
	}

	ids := make([]ir.IRValue, 0, len(values))
	for _, v := range values {
		if ir.IsNull(v) {
			continue
		}
		ids = append(ids, v)
	}
	return ids, nil
}

// Count returns how many leaves of node are reference-scoped. Malformed
// reference fields are counted too; Resolve rejects them.
func Count(node queryir.Node) int {
	n := 0
	for _, leaf := range queryir.Leaves(node) {
		if _, ok, err := ParseField(leaf.Field); ok || err != nil {
			n++
		}
	}
	return n
}
