package queryir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdstats/internal/ir"
)

func TestNode_SealedInterface(t *testing.T) {
	// All node types satisfy Node
	var _ Node = And{}
	var _ Node = Or{}
	var _ Node = Leaf{}
}

func TestIn_MembershipPredicate(t *testing.T) {
	ids := []ir.IRValue{ir.IRString("P1"), ir.IRString("P2")}
	leaf := In("metadata.REFERENCES", ids)

	assert.Equal(t, "metadata.REFERENCES", leaf.Field)
	assert.Equal(t, ir.IRObject{"$in": ir.IRArray{ir.IRString("P1"), ir.IRString("P2")}}, leaf.Predicate)

	// The leaf owns its id slice
	ids[0] = ir.IRString("changed")
	assert.Equal(t, ir.IRString("P1"), leaf.Predicate.(ir.IRObject)["$in"].(ir.IRArray)[0])
}

func TestIn_EmptyIDs(t *testing.T) {
	leaf := In("metadata.LIGANDS", nil)

	in := leaf.Predicate.(ir.IRObject)["$in"]
	require.NotNil(t, in)
	assert.Equal(t, ir.IRArray{}, in)

	out, err := ir.MarshalCanonical(leaf.Predicate)
	require.NoError(t, err)
	assert.Equal(t, `{"$in":[]}`, string(out))
}

func TestConjoin(t *testing.T) {
	a := Leaf{Field: "published", Predicate: ir.IRBool(true)}
	b := Leaf{Field: "metadata.COLLECTIONS", Predicate: ir.IRString("sars")}

	tests := []struct {
		name  string
		nodes []Node
		want  Node
	}{
		{name: "none", nodes: nil, want: nil},
		{name: "only nils", nodes: []Node{nil, nil}, want: nil},
		{name: "single", nodes: []Node{a}, want: a},
		{name: "single with nil", nodes: []Node{nil, b}, want: b},
		{name: "two", nodes: []Node{a, b}, want: And{Children: []Node{a, b}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Equal(tt.want, Conjoin(tt.nodes...)))
		})
	}
}

func TestEqual(t *testing.T) {
	leaf := func(field string, v ir.IRValue) Leaf { return Leaf{Field: field, Predicate: v} }

	tests := []struct {
		name string
		a, b Node
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs leaf", nil, leaf("x", ir.IRInt(1)), false},
		{"same leaf", leaf("x", ir.IRInt(1)), leaf("x", ir.IRInt(1)), true},
		{"int equals float", leaf("x", ir.IRInt(1)), leaf("x", ir.IRFloat(1)), true},
		{"different field", leaf("x", ir.IRInt(1)), leaf("y", ir.IRInt(1)), false},
		{"different value", leaf("x", ir.IRInt(1)), leaf("x", ir.IRInt(2)), false},
		{
			"and vs or",
			And{Children: []Node{leaf("x", ir.IRInt(1))}},
			Or{Children: []Node{leaf("x", ir.IRInt(1))}},
			false,
		},
		{
			"child order matters",
			And{Children: []Node{leaf("x", ir.IRInt(1)), leaf("y", ir.IRInt(2))}},
			And{Children: []Node{leaf("y", ir.IRInt(2)), leaf("x", ir.IRInt(1))}},
			false,
		},
		{
			"nested equal",
			Or{Children: []Node{And{Children: []Node{leaf("a", ir.IRObject{"$gt": ir.IRInt(3)})}}}},
			Or{Children: []Node{And{Children: []Node{leaf("a", ir.IRObject{"$gt": ir.IRInt(3)})}}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "Equal must be symmetric")
		})
	}
}

func TestLeaves_DepthFirstOrder(t *testing.T) {
	tree := And{Children: []Node{
		Leaf{Field: "a", Predicate: ir.IRInt(1)},
		Or{Children: []Node{
			Leaf{Field: "b", Predicate: ir.IRInt(2)},
			And{Children: []Node{Leaf{Field: "c", Predicate: ir.IRInt(3)}}},
		}},
		Leaf{Field: "d", Predicate: ir.IRInt(4)},
	}}

	var fields []string
	for _, l := range Leaves(tree) {
		fields = append(fields, l.Field)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, fields)
	assert.Empty(t, Leaves(nil))
}

func TestRewrite_Identity(t *testing.T) {
	tree := Or{Children: []Node{
		And{Children: []Node{
			Leaf{Field: "a", Predicate: ir.IRInt(1)},
			Leaf{Field: "b", Predicate: ir.IRString("x")},
		}},
		Leaf{Field: "c", Predicate: ir.IRNull{}},
	}}

	out, err := Rewrite(tree, func(l Leaf) (Node, error) { return l, nil })
	require.NoError(t, err)
	assert.True(t, Equal(tree, out))
}

func TestRewrite_DoesNotMutateInput(t *testing.T) {
	children := []Node{
		Leaf{Field: "a", Predicate: ir.IRInt(1)},
		Leaf{Field: "b", Predicate: ir.IRInt(2)},
	}
	tree := And{Children: children}

	out, err := Rewrite(tree, func(l Leaf) (Node, error) {
		if l.Field == "a" {
			return Leaf{Field: "z", Predicate: ir.IRInt(9)}, nil
		}
		return l, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "a", children[0].(Leaf).Field, "input slice untouched")
	got := out.(And)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "z", got.Children[0].(Leaf).Field)
	assert.Equal(t, "b", got.Children[1].(Leaf).Field)
}

func TestRewrite_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	tree := Or{Children: []Node{Leaf{Field: "a", Predicate: ir.IRInt(1)}}}

	_, err := Rewrite(tree, func(Leaf) (Node, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRewrite_NilTree(t *testing.T) {
	out, err := Rewrite(nil, func(l Leaf) (Node, error) { return l, nil })
	require.NoError(t, err)
	assert.Nil(t, out)
}
