package reference

import (
	"slices"
	"strings"
)

// Field is a parsed reference-scoped field path.
//
//	references.proteins.metadata.organism
//	           ^name    ^inner
type Field struct {
	Name  string
	Inner string
}

// ParseField splits a filter field into its reference name and inner field.
// ok is false for ordinary project fields. A field that starts with Header
// but lacks a name or an inner part, or whose inner part has an empty
// segment, returns a *MalformedFieldError.
func ParseField(field string) (f Field, ok bool, err error) {
	rest, found := strings.CutPrefix(field, Header)
	if !found {
		return Field{}, false, nil
	}
	name, inner, _ := strings.Cut(rest, ".")
	if name == "" || inner == "" || slices.Contains(strings.Split(inner, "."), "") {
		return Field{}, false, &MalformedFieldError{Field: field}
	}
	return Field{Name: name, Inner: inner}, true, nil
}

// String reassembles the full field path.
func (f Field) String() string {
	return Header + f.Name + "." + f.Inner
}
