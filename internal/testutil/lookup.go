package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// LookupCall records one Values call. Filter is the canonical JSON of the
// rendered filter, e.g. {"name":"BRCA1"}.
type LookupCall struct {
	Collection string
	Filter     string
	Field      string
}

// StubLookup is a scripted reference lookup.
//
// Responses are keyed by (collection, canonical filter JSON, field).
// Unscripted calls return no values. Every call is recorded, and the
// highest number of concurrently running calls is tracked so tests can
// check concurrency limits.
//
// Thread-safety: StubLookup is safe for concurrent use via internal mutex.
type StubLookup struct {
	// Delay holds each call for this long, or until ctx is done.
	Delay time.Duration

	mu          sync.Mutex
	responses   map[LookupCall][]ir.IRValue
	errs        map[LookupCall]error
	calls       []LookupCall
	inFlight    int
	maxInFlight int
}

// NewStubLookup creates an empty StubLookup.
func NewStubLookup() *StubLookup {
	return &StubLookup{
		responses: make(map[LookupCall][]ir.IRValue),
		errs:      make(map[LookupCall]error),
	}
}

// On scripts the values returned for a call.
func (s *StubLookup) On(collection, filter, field string, values ...ir.IRValue) *StubLookup {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[LookupCall{Collection: collection, Filter: filter, Field: field}] = values
	return s
}

// Fail scripts an error for a call. The error is returned immediately,
// without waiting for Delay.
func (s *StubLookup) Fail(collection, filter, field string, err error) *StubLookup {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[LookupCall{Collection: collection, Filter: filter, Field: field}] = err
	return s
}

// Values implements reference.Lookup.
func (s *StubLookup) Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error) {
	rendered, err := queryir.Render(filter)
	if err != nil {
		return nil, err
	}
	canonical, err := ir.MarshalCanonical(rendered)
	if err != nil {
		return nil, err
	}
	call := LookupCall{Collection: collection, Filter: string(canonical), Field: field}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	failure := s.errs[call]
	values := s.responses[call]
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if failure != nil {
		return nil, failure
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return slices.Clone(values), nil
}

// Calls returns every recorded call, sorted for stable assertions.
func (s *StubLookup) Calls() []LookupCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.calls)
	slices.SortFunc(out, func(a, b LookupCall) int {
		if c := strings.Compare(a.Collection, b.Collection); c != 0 {
			return c
		}
		if c := strings.Compare(a.Filter, b.Filter); c != 0 {
			return c
		}
		return strings.Compare(a.Field, b.Field)
	})
	return out
}

// MaxInFlight returns the highest number of calls that ran at once.
func (s *StubLookup) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}
