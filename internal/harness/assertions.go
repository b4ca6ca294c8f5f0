package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Filter   ir.IRObject   // Resolved filter for debugging context
	Lookups  []LookupEvent // Recorded lookups for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Filter != nil {
		if data, err := ir.MarshalCanonical(e.Filter); err == nil {
			fmt.Fprintf(&buf, "\nFilter: %s\n", data)
		}
	}
	if len(e.Lookups) > 0 {
		fmt.Fprintf(&buf, "\nLookups:\n")
		for i, l := range e.Lookups {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s (%d values)\n", i+1, l.Collection, l.Filter, l.Field, l.Values)
		}
	}

	return buf.String()
}

// assertFilterContains checks that the resolved filter has a leaf on the
// assertion's field, with an equal predicate when one is given.
func assertFilterContains(result *Result, assertion Assertion) error {
	var want ir.IRValue
	if assertion.Predicate != nil {
		v, err := ir.FromGo(assertion.Predicate)
		if err != nil {
			return fmt.Errorf("filter_contains %s: invalid predicate: %w", assertion.Field, err)
		}
		want = v
	}

	for _, leaf := range queryir.Leaves(result.tree) {
		if leaf.Field != assertion.Field {
			continue
		}
		if want == nil || ir.Equal(leaf.Predicate, want) {
			return nil
		}
	}

	expected := "leaf on " + assertion.Field
	if want != nil {
		expected += " with predicate " + describe(want)
	}
	return &AssertionError{
		Type:     AssertFilterContains,
		Expected: expected,
		Actual:   "not found in filter",
		Filter:   result.Filter,
	}
}

// assertMembership checks that a leaf on the assertion's field is exactly
// {"$in": ids}, ids in order.
func assertMembership(result *Result, assertion Assertion) error {
	ids := make([]ir.IRValue, len(assertion.IDs))
	for i, raw := range assertion.IDs {
		v, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("membership %s: invalid id[%d]: %w", assertion.Field, i, err)
		}
		ids[i] = v
	}
	want := queryir.In(assertion.Field, ids)

	var found []string
	for _, leaf := range queryir.Leaves(result.tree) {
		if leaf.Field != assertion.Field {
			continue
		}
		if queryir.Equal(leaf, want) {
			return nil
		}
		found = append(found, describe(leaf.Predicate))
	}

	actual := "no leaf on " + assertion.Field
	if len(found) > 0 {
		actual = strings.Join(found, ", ")
	}
	return &AssertionError{
		Type:     AssertMembership,
		Expected: describe(want.Predicate),
		Actual:   actual,
		Filter:   result.Filter,
	}
}

// assertLookupCount checks the number of recorded lookups, optionally on
// one collection.
func assertLookupCount(result *Result, assertion Assertion) error {
	count := 0
	for _, l := range result.Lookups {
		if assertion.Collection == "" || l.Collection == assertion.Collection {
			count++
		}
	}

	if count != assertion.Count {
		target := "lookups"
		if assertion.Collection != "" {
			target = "lookups on " + assertion.Collection
		}
		return &AssertionError{
			Type:     AssertLookupCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, target),
			Actual:   fmt.Sprintf("%d %s", count, target),
			Lookups:  result.Lookups,
		}
	}
	return nil
}

// describe renders v as canonical JSON for messages.
func describe(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Filter assertions fail when the queries were rejected.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFilterContains, AssertMembership:
			if result.Filter == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a resolved filter, got %s error", i, assertion.Type, result.ErrorClass)
			} else if assertion.Type == AssertFilterContains {
				err = assertFilterContains(result, assertion)
			} else {
				err = assertMembership(result, assertion)
			}
		case AssertLookupCount:
			err = assertLookupCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
