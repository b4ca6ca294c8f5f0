package queryir

import (
	"fmt"
	"strings"
)

// UnknownNodeError is returned when a traversal meets a Node implementation
// it cannot handle (only possible through a nil interface typed as Node).
type UnknownNodeError struct {
	Node Node
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown query node type: %T", e.Node)
}

// ValidationError lists every structural problem found in a tree.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query tree: " + strings.Join(e.Problems, "; ")
}

// Validate checks the structural invariants of a tree:
//  1. And and Or have at least one child
//  2. No child is nil
//  3. Leaf fields are non-empty
//  4. Leaf predicates are non-nil (use ir.IRNull{} for a null comparison)
//
// A nil root is valid and means "no constraint".
// Validate is a pure function with no side effects.
func Validate(n Node) error {
	if n == nil {
		return nil
	}
	v := &validator{}
	v.validateNode(n, "$")
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// validateNode recursively validates a node; path locates it for messages.
func (v *validator) validateNode(n Node, path string) {
	switch node := n.(type) {
	case nil:
		v.addProblem("%s: nil node", path)
	case And:
		v.validateChildren("$and", node.Children, path)
	case Or:
		v.validateChildren("$or", node.Children, path)
	case Leaf:
		if node.Field == "" {
			v.addProblem("%s: leaf with empty field", path)
		}
		if node.Predicate == nil {
			v.addProblem("%s: leaf %q has no predicate", path, node.Field)
		}
	default:
		v.addProblem("%s: unknown node type %T", path, n)
	}
}

func (v *validator) validateChildren(op string, children []Node, path string) {
	if len(children) == 0 {
		v.addProblem("%s: %s with no children", path, op)
		return
	}
	for i, c := range children {
		v.validateNode(c, fmt.Sprintf("%s.%s[%d]", path, op, i))
	}
}
