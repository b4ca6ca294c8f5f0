package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/mdstats/internal/basefilter"
	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/queryir"
	"github.com/roach88/mdstats/internal/querysql"
	"github.com/roach88/mdstats/internal/reference"
	"github.com/roach88/mdstats/internal/store"
	"github.com/roach88/mdstats/internal/summary"
	"github.com/roach88/mdstats/internal/testutil"
)

// recordingBackend is a summary backend over a store that records every
// reference lookup.
type recordingBackend struct {
	*store.Store

	mu      sync.Mutex
	lookups []LookupEvent
}

func (b *recordingBackend) Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error) {
	values, err := b.Store.Values(ctx, collection, filter, field)
	if err != nil {
		return nil, err
	}

	rendered, err := queryir.Render(filter)
	if err != nil {
		return nil, err
	}
	filterJSON, err := ir.MarshalCanonical(rendered)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = append(b.lookups, LookupEvent{
		Collection: collection,
		Filter:     string(filterJSON),
		Field:      field,
		Values:     len(values),
	})
	return values, nil
}

// reset forgets recorded lookups.
func (b *recordingBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = nil
}

// recorded returns the lookups sorted by collection, field and filter.
func (b *recordingBackend) recorded() []LookupEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LookupEvent, len(b.lookups))
	copy(out, b.lookups)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Filter < out[j].Filter
	})
	return out
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Request ids and the clock are fixed, so repeated runs log identically.
//
// Execution flow:
// 1. Create fresh in-memory database and load collections
// 2. Build the summary service
// 3. Build and render the filter
// 4. Compute the summary, recording lookups
// 5. Check expect and assertions
//
// A query error is an outcome, not a failure of Run; Run returns an error
// only when the scenario cannot be executed at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := loadCollections(ctx, st, scenario.Collections); err != nil {
		return nil, err
	}

	catalog, err := scenarioCatalog(scenario.References)
	if err != nil {
		return nil, fmt.Errorf("invalid references: %w", err)
	}

	backend := &recordingBackend{Store: st}
	clock := testutil.NewStepClock(time.Time{}, time.Millisecond)
	svc, err := summary.New(summary.Options{
		Catalog:    catalog,
		Backend:    backend,
		BaseFilter: baseFilter(scenario),
		Projects:   summary.ProjectsCollection,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		IDs:        testutil.NewFixedIDGenerator(scenario.Name),
		Now:        clock.Now,
	})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	req := summary.Request{Queries: scenario.Queries, Host: scenario.Host}

	if err := execute(ctx, svc, backend, req, result); err != nil {
		return nil, err
	}
	result.Lookups = backend.recorded()

	checkExpect(result, scenario.Expect)
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute builds the filter and the summary into result. Query errors are
// recorded on result; other errors are returned.
func execute(ctx context.Context, svc *summary.Service, backend *recordingBackend, req summary.Request, result *Result) error {
	filter, err := svc.Filter(ctx, req)
	if err != nil {
		return recordQueryError(result, err)
	}
	rendered, err := queryir.Render(filter)
	if err != nil {
		return err
	}
	result.Filter = rendered
	result.tree = filter

	// Summarize resolves again; keep only its lookups.
	backend.reset()
	sum, err := svc.Summarize(ctx, req)
	if err != nil {
		return recordQueryError(result, err)
	}
	result.Summary = &sum
	return nil
}

func recordQueryError(result *Result, err error) error {
	class := ErrorClass(err)
	if class == "" {
		return err
	}
	result.ErrorClass = class
	result.ErrorMessage = err.Error()
	return nil
}

// ErrorClass names the kind of query error err is, or "" when err is not
// caused by the query.
func ErrorClass(err error) string {
	var (
		parseErr       *querybuild.ParseError
		unknownErr     *reference.UnknownReferenceError
		malformedErr   *reference.MalformedFieldError
		unsupportedErr *querysql.UnsupportedOperatorError
		fieldErr       *querysql.InvalidFieldError
	)
	switch {
	case errors.As(err, &parseErr):
		return ErrorClassParse
	case errors.As(err, &unknownErr):
		return ErrorClassUnknownRef
	case errors.As(err, &malformedErr):
		return ErrorClassMalformed
	case errors.As(err, &unsupportedErr):
		return ErrorClassUnsupported
	case errors.As(err, &fieldErr):
		return ErrorClassInvalidField
	default:
		return ""
	}
}

// loadCollections inserts every collection in name order.
func loadCollections(ctx context.Context, st *store.Store, collections map[string][]map[string]any) error {
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		docs := make([]ir.IRObject, 0, len(collections[name]))
		for i, raw := range collections[name] {
			v, err := ir.FromGo(raw)
			if err != nil {
				return fmt.Errorf("collection %s[%d]: %w", name, i, err)
			}
			docs = append(docs, v.(ir.IRObject))
		}
		if _, err := st.Insert(ctx, name, docs...); err != nil {
			return fmt.Errorf("load collection %s: %w", name, err)
		}
	}
	return nil
}

func scenarioCatalog(refs []ReferenceSpec) (*reference.Catalog, error) {
	if len(refs) == 0 {
		return reference.NewCatalog(reference.DefaultSpecs()...)
	}
	specs := make([]reference.Spec, len(refs))
	for i, r := range refs {
		specs[i] = reference.Spec{
			Name:            r.Name,
			Collection:      r.Collection,
			IDField:         r.IDField,
			ProjectIDsField: r.ProjectIDsField,
		}
	}
	return reference.NewCatalog(specs...)
}

func baseFilter(s *Scenario) basefilter.Provider {
	hosts := make(map[string]string, len(s.Hosts))
	for host, collection := range s.Hosts {
		hosts[strings.ToLower(host)] = collection
	}
	return basefilter.Provider{Environment: s.Environment, Hosts: hosts}
}

// checkExpect compares the outcome against the expect clause.
func checkExpect(result *Result, expect ExpectClause) {
	if expect.Error != "" {
		switch {
		case result.ErrorClass == "":
			result.AddError(fmt.Sprintf("expected %s error, got a summary", expect.Error))
		case result.ErrorClass != expect.Error:
			result.AddError(fmt.Sprintf("expected %s error, got %s: %s", expect.Error, result.ErrorClass, result.ErrorMessage))
		}
		return
	}

	if result.Summary == nil {
		result.AddError(fmt.Sprintf("expected a summary, got %s error: %s", result.ErrorClass, result.ErrorMessage))
		return
	}

	actual := result.Summary.IRObject()
	keys := make([]string, 0, len(expect.Summary))
	for k := range expect.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := ir.FromGo(expect.Summary[key])
		if err != nil {
			result.AddError(fmt.Sprintf("expect.summary.%s: %v", key, err))
			continue
		}
		wantNum, ok := ir.AsNumber(want)
		if !ok {
			result.AddError(fmt.Sprintf("expect.summary.%s: want a number, got %s", key, ir.TypeName(want)))
			continue
		}
		gotNum, _ := ir.AsNumber(actual[key])
		if wantNum != gotNum {
			result.AddError(fmt.Sprintf("summary.%s = %v, expected %v", key, gotNum, wantNum))
		}
	}
}
