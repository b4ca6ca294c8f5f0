package harness

import (
	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/metrics"
	"github.com/roach88/mdstats/internal/queryir"
)

// LookupEvent records one reference lookup made while resolving a
// scenario's queries.
type LookupEvent struct {
	Collection string `json:"collection"`
	Filter     string `json:"filter"` // canonical JSON of the lookup filter
	Field      string `json:"field"`
	Values     int    `json:"values"` // number of values returned
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and every assertion match.
	Pass bool `json:"pass"`

	// Filter is the resolved projects filter in document form.
	// Nil when the queries were rejected.
	Filter ir.IRObject `json:"filter,omitempty"`
	tree   queryir.Node

	// Summary is set when the summary was computed.
	Summary *metrics.Summary `json:"summary,omitempty"`

	// ErrorClass names the kind of query error (see ErrorClass*), empty on
	// success.
	ErrorClass   string `json:"error_class,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Lookups are the reference lookups of the summary pass, sorted by
	// collection, field and filter. Resolution runs lookups concurrently,
	// so arrival order is not recorded.
	Lookups []LookupEvent `json:"lookups"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Lookups: []LookupEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
