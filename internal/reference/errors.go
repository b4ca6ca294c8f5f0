package reference

import "fmt"

// UnknownReferenceError is returned when a filter names a reference that is
// not in the catalog.
type UnknownReferenceError struct {
	Name  string
	Field string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference %q in field %q", e.Name, e.Field)
}

// MalformedFieldError is returned for a reference-scoped field that does
// not have the form references.<name>.<inner>.
type MalformedFieldError struct {
	Field string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed reference field %q: expected %s<name>.<field>", e.Field, Header)
}
