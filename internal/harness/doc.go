// Package harness runs summary scenarios end to end.
//
// Each scenario loads its collections into a fresh in-memory store, builds
// a summary service over it the way the CLI and server do, and runs one
// request. Reference lookups go through a recording backend so scenarios
// can assert on them.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	environment: production
//	host: mdposit.example.org
//	hosts:
//	  mdposit.example.org: mdposit
//	collections:
//	  references:
//	    - { _id: r1, name: BRCA1, uniprot: P1 }
//	  projects:
//	    - { _id: A, metadata: { REFERENCES: [P1], LENGTH: 10 } }
//	queries:
//	  - '{"references.proteins.name": "BRCA1"}'
//	expect:
//	  summary: { projectsCount: 1, totalTime: 10 }
//	assertions:
//	  - type: membership
//	    field: metadata.REFERENCES
//	    ids: [P1]
//	  - type: lookup_count
//	    count: 1
//
// expect holds either summary (a subset of the totals) or error, one of
// parse, unknown_reference, malformed_field or unsupported_operator.
//
// # Assertion Types
//
//   - filter_contains: the resolved filter has a leaf on field, with predicate if given
//   - membership: a leaf on field is exactly {"$in": ids}
//   - lookup_count: the summary made count reference lookups, on collection if given
//
// # Golden Files
//
// RunWithGolden compares the resolved filter, the summary or error class,
// and the sorted lookups against testdata/golden/<name>.golden, written as
// canonical JSON. Request ids and the clock are fixed per scenario.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/reference_query.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
