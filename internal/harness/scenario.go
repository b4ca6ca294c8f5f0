package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mdstats/internal/metrics"
)

// Scenario defines a summary test scenario.
// A scenario seeds collections, runs one summary request, and checks the
// resolved filter, the summary or the query error, and the lookups made.
type Scenario struct {
	// Name uniquely identifies this scenario.
	// Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Environment is the deployment environment of the request.
	// "production" restricts results to published projects.
	Environment string `yaml:"environment,omitempty"`

	// Host is the request host.
	Host string `yaml:"host,omitempty"`

	// Hosts maps request hosts to the project collection they serve.
	Hosts map[string]string `yaml:"hosts,omitempty"`

	// References replaces the default reference catalog when non-empty.
	References []ReferenceSpec `yaml:"references,omitempty"`

	// Collections are the documents to load, keyed by collection name.
	// Projects go in "projects".
	Collections map[string][]map[string]any `yaml:"collections"`

	// Queries are the JSON query fragments of the request.
	Queries []string `yaml:"queries,omitempty"`

	// Expect is the expected outcome: a summary or a query error.
	Expect ExpectClause `yaml:"expect"`

	// Assertions validate the resolved filter and the lookups.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ReferenceSpec declares one reference collection.
type ReferenceSpec struct {
	Name            string `yaml:"name"`
	Collection      string `yaml:"collection"`
	IDField         string `yaml:"id_field"`
	ProjectIDsField string `yaml:"project_ids_field"`
}

// ExpectClause specifies the expected outcome. Exactly one field is set.
type ExpectClause struct {
	// Summary contains expected summary totals.
	// This is a subset match - only specified fields are validated.
	Summary map[string]any `yaml:"summary,omitempty"`

	// Error is the expected query error class (see ErrorClass*).
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the resolved filter or the recorded lookups.
type Assertion struct {
	// Type specifies the assertion type:
	// - "filter_contains": a leaf on Field exists, with Predicate if given
	// - "membership": a leaf on Field is {"$in": IDs}, in order
	// - "lookup_count": exactly Count lookups, on Collection if given
	Type string `yaml:"type"`

	// Field is the leaf field (filter_contains, membership).
	Field string `yaml:"field,omitempty"`

	// Predicate is the expected leaf predicate (filter_contains).
	Predicate any `yaml:"predicate,omitempty"`

	// IDs are the expected membership ids (membership).
	IDs []any `yaml:"ids,omitempty"`

	// Collection restricts lookup_count to one collection.
	Collection string `yaml:"collection,omitempty"`

	// Count is the expected number of lookups (lookup_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFilterContains = "filter_contains"
	AssertMembership     = "membership"
	AssertLookupCount    = "lookup_count"
)

// Query error classes.
const (
	ErrorClassParse        = "parse"
	ErrorClassUnknownRef   = "unknown_reference"
	ErrorClassMalformed    = "malformed_field"
	ErrorClassUnsupported  = "unsupported_operator"
	ErrorClassInvalidField = "invalid_field"
)

var errorClasses = []string{ErrorClassParse, ErrorClassUnknownRef, ErrorClassMalformed, ErrorClassUnsupported, ErrorClassInvalidField}

// summaryFields are the keys an expect.summary may name.
var summaryFields = func() map[string]bool {
	fields := make(map[string]bool)
	for k := range (metrics.Summary{}).IRObject() {
		fields[k] = true
	}
	return fields
}()

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if err := validateExpect(&s.Expect); err != nil {
		return err
	}

	for i, ref := range s.References {
		if ref.Name == "" || ref.Collection == "" || ref.IDField == "" || ref.ProjectIDsField == "" {
			return fmt.Errorf("references[%d]: name, collection, id_field and project_ids_field are required", i)
		}
	}

	for name := range s.Collections {
		if name == "" {
			return fmt.Errorf("collections: empty collection name")
		}
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateExpect(e *ExpectClause) error {
	switch {
	case e.Summary == nil && e.Error == "":
		return fmt.Errorf("expect: one of summary or error is required")
	case e.Summary != nil && e.Error != "":
		return fmt.Errorf("expect: summary and error are mutually exclusive")
	}

	if e.Error != "" && !isErrorClass(e.Error) {
		return fmt.Errorf("expect.error: unknown error class %q (want one of %s)", e.Error, strings.Join(errorClasses, ", "))
	}
	for key := range e.Summary {
		if !summaryFields[key] {
			return fmt.Errorf("expect.summary: unknown field %q", key)
		}
	}
	return nil
}

func isErrorClass(class string) bool {
	for _, c := range errorClasses {
		if c == class {
			return true
		}
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFilterContains:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for filter_contains", index)
		}
	case AssertMembership:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for membership", index)
		}
	case AssertLookupCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for lookup_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
