package queryir

import (
	"github.com/roach88/mdstats/internal/ir"
)

// Render converts a tree back into filter-document form.
//
//	And  → {"$and": [...]}
//	Or   → {"$or": [...]}
//	Leaf → {field: predicate}
//	nil  → {}
//
// Render(Parse(x)) is not byte-identical to x in general: a multi-key
// object comes back as an explicit $and.
func Render(n Node) (ir.IRObject, error) {
	switch node := n.(type) {
	case nil:
		return ir.IRObject{}, nil
	case And:
		children, err := renderChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"$and": children}, nil
	case Or:
		children, err := renderChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"$or": children}, nil
	case Leaf:
		pred := node.Predicate
		if pred == nil {
			pred = ir.IRNull{}
		}
		return ir.IRObject{node.Field: pred}, nil
	default:
		return nil, &UnknownNodeError{Node: n}
	}
}

func renderChildren(children []Node) (ir.IRArray, error) {
	out := make(ir.IRArray, len(children))
	for i, c := range children {
		obj, err := Render(c)
		if err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}
