package queryir

import (
	"encoding/json"

	"github.com/roach88/mdstats/internal/ir"
)

// Node represents a filter expression in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Node types:
//   - And: every child must match
//   - Or: at least one child must match
//   - Leaf: a single field predicate
//
// A nil Node means "no constraint" wherever a filter is optional.
type Node interface {
	queryNode() // Marker method - seals interface to this package
}

// And represents a conjunction of child nodes.
//
// Semantics:
//
//	<child1> AND <child2> AND ... AND <childN>
//
// A well-formed And has at least one child (see Validate).
//
// Renders to:
//
//	{"$and": [<child1>, <child2>, ...]}
type And struct {
	Children []Node
}

func (And) queryNode() {}

// Or represents a disjunction of child nodes.
//
// Semantics:
//
//	<child1> OR <child2> OR ... OR <childN>
//
// A well-formed Or has at least one child (see Validate).
//
// Renders to:
//
//	{"$or": [<child1>, <child2>, ...]}
type Or struct {
	Children []Node
}

func (Or) queryNode() {}

// Leaf represents a predicate on a single (possibly dotted) field.
//
// Example:
//
//	Leaf{Field: "metadata.LENGTH", Predicate: ir.IRObject{"$gte": ir.IRInt(100)}}
//
// Renders to:
//
//	{"metadata.LENGTH": {"$gte": 100}}
//
// Predicate is opaque at this layer. Backends interpret it.
//
// Source, when set, is the predicate's JSON text as the client wrote it.
// IR objects do not keep key order; backends where embedded-document
// equality depends on it read Source instead. Render, Equal and Validate
// ignore it.
type Leaf struct {
	Field     string
	Predicate ir.IRValue
	Source    json.RawMessage
}

func (Leaf) queryNode() {}

// In builds the membership predicate "field is one of ids".
// An empty ids slice yields a predicate that matches nothing.
func In(field string, ids []ir.IRValue) Leaf {
	values := make(ir.IRArray, len(ids))
	copy(values, ids)
	return Leaf{
		Field:     field,
		Predicate: ir.IRObject{"$in": values},
	}
}

// Conjoin combines nodes into a single conjunction.
// Nil nodes are dropped. Zero remaining nodes yields nil, one yields that
// node unchanged, more yields an And in argument order.
func Conjoin(nodes ...Node) Node {
	kept := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Children: kept}
	}
}

// Equal reports whether two trees are structurally identical: same node
// kinds, same child order, same fields, and equal predicate values.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case And:
		y, ok := b.(And)
		return ok && equalChildren(x.Children, y.Children)
	case Or:
		y, ok := b.(Or)
		return ok && equalChildren(x.Children, y.Children)
	case Leaf:
		y, ok := b.(Leaf)
		return ok && x.Field == y.Field && ir.Equal(x.Predicate, y.Predicate)
	default:
		return false
	}
}

func equalChildren(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Leaves returns every Leaf of the tree in depth-first, left-to-right order.
func Leaves(n Node) []Leaf {
	var out []Leaf
	var walk func(Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case And:
			for _, c := range node.Children {
				walk(c)
			}
		case Or:
			for _, c := range node.Children {
				walk(c)
			}
		case Leaf:
			out = append(out, node)
		}
	}
	walk(n)
	return out
}

// Rewrite returns a new tree in which every Leaf has been replaced by
// fn(leaf). Leaves are visited in the same order as Leaves. And/Or nodes
// keep their kind and child order; the input tree is never modified.
func Rewrite(n Node, fn func(Leaf) (Node, error)) (Node, error) {
	switch node := n.(type) {
	case nil:
		return nil, nil
	case And:
		children, err := rewriteChildren(node.Children, fn)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case Or:
		children, err := rewriteChildren(node.Children, fn)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case Leaf:
		return fn(node)
	default:
		return nil, &UnknownNodeError{Node: n}
	}
}

func rewriteChildren(children []Node, fn func(Leaf) (Node, error)) ([]Node, error) {
	out := make([]Node, len(children))
	for i, c := range children {
		r, err := Rewrite(c, fn)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
