// Package queryir provides the query intermediate representation (IR) for
// mdstats filters.
//
// Client fragments are parsed into a Node tree, rewritten by the reference
// resolver, combined with the base predicate, and finally compiled by a
// backend:
//
//	[fragment JSON] → [queryir.Node] → [reference rewrite] → [SQLite backend]
//	                                                        → [MongoDB backend]
//
// NODE TYPES:
//
// Node is a sealed interface using the marker method pattern. Only And, Or
// and Leaf implement it, so backends can switch exhaustively:
//
//	switch n := node.(type) {
//	case queryir.And:
//	    // every child must hold
//	case queryir.Or:
//	    // at least one child must hold
//	case queryir.Leaf:
//	    // field compared against an opaque predicate value
//	}
//
// A Leaf predicate is an ir.IRValue in filter-document form: a scalar for
// equality, or an operator object such as {"$in": [...]}. queryir does not
// interpret predicates; backends decide which operators they support.
//
// IMMUTABILITY:
//
// Trees are values. Rewrite and the resolver build new trees and never
// mutate their input, so "nothing changed" is checked with Equal.
package queryir
