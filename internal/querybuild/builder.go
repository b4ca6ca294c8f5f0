package querybuild

import (
	"context"
	"fmt"

	"github.com/roach88/mdstats/internal/queryir"
)

// Resolver rewrites reference-scoped leaves; see reference.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, node queryir.Node) (queryir.Node, error)
}

// Builder combines client fragments and a base predicate into one filter.
type Builder struct {
	resolver Resolver
}

// NewBuilder creates a Builder that resolves fragments through resolver.
func NewBuilder(resolver Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// Build parses every fragment, resolves the parsed trees, and returns
//
//	And{base, fragment1, fragment2, ...}
//
// Every fragment is parsed before anything is resolved, so one malformed
// fragment fails the whole request with a *ParseError and no lookups run.
// Fragments are resolved together in a single pass; since resolution only
// rewrites leaves, this is the same as resolving each fragment on its own
// while letting all lookups share one concurrency budget.
//
// base is never resolved. Empty fragments ({}) and a nil base contribute
// nothing. With nothing to combine Build returns nil, meaning no constraint.
// The combined tree is checked with queryir.Validate; a structural problem
// in base or in the resolver's output is a *queryir.ValidationError.
func (b *Builder) Build(ctx context.Context, fragments []string, base queryir.Node) (queryir.Node, error) {
	parsed := make([]queryir.Node, 0, len(fragments))
	for _, f := range fragments {
		n, err := ParseFragment(f)
		if err != nil {
			return nil, err
		}
		if n != nil {
			parsed = append(parsed, n)
		}
	}

	var children []queryir.Node
	if base != nil {
		children = append(children, base)
	}

	if len(parsed) > 0 {
		resolved, err := b.resolver.Resolve(ctx, queryir.And{Children: parsed})
		if err != nil {
			return nil, err
		}
		if and, ok := resolved.(queryir.And); ok {
			children = append(children, and.Children...)
		} else {
			children = append(children, resolved)
		}
	}

	if len(children) == 0 {
		return nil, nil
	}
	tree := queryir.And{Children: children}
	if err := queryir.Validate(tree); err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	return tree, nil
}
