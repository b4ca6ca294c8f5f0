package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/metrics"
)

// minimalScenario returns a scenario with one protein and two projects.
func minimalScenario(queries ...string) *Scenario {
	return &Scenario{
		Name:        "minimal",
		Description: "minimal scenario",
		Collections: map[string][]map[string]any{
			"references": {
				{"_id": "r1", "name": "BRCA1", "uniprot": "P1"},
			},
			"projects": {
				{"_id": "A", "published": true, "metadata": map[string]any{"REFERENCES": []any{"P1"}, "LENGTH": 10, "SNAPSHOTS": 100}},
				{"_id": "B", "published": false, "metadata": map[string]any{"REFERENCES": []any{"P2"}, "LENGTH": 4}},
			},
		},
		Queries: queries,
		Expect:  ExpectClause{Summary: map[string]any{}},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := minimalScenario()
	scenario.Expect.Summary = map[string]any{"projectsCount": 2, "mdCount": 2, "totalTime": 14}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, ir.IRObject{}, result.Filter)
	require.NotNil(t, result.Summary)
	assert.Equal(t, metrics.Summary{ProjectsCount: 2, MDCount: 2, TotalTime: 14, TotalFrames: 100}, *result.Summary)
	assert.Empty(t, result.Lookups)
}

func TestRun_RecordsLookups(t *testing.T) {
	scenario := minimalScenario(`{"references.proteins.name": "BRCA1"}`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []LookupEvent{
		{Collection: "references", Filter: `{"name":"BRCA1"}`, Field: "uniprot", Values: 1},
	}, result.Lookups, "only the summary pass is recorded")
	assert.Equal(t, int64(1), result.Summary.ProjectsCount)
}

func TestRun_LookupsSorted(t *testing.T) {
	scenario := minimalScenario(`{"$or": [
		{"references.proteins.name": "TP53"},
		{"references.ligands.name": "aspirin"},
		{"references.proteins.name": "BRCA1"}
	]}`)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Len(t, result.Lookups, 3)
	assert.Equal(t, "ligands", result.Lookups[0].Collection)
	assert.Equal(t, `{"name":"BRCA1"}`, result.Lookups[1].Filter)
	assert.Equal(t, `{"name":"TP53"}`, result.Lookups[2].Filter)
}

func TestRun_WithExpectMismatch(t *testing.T) {
	scenario := minimalScenario()
	scenario.Expect.Summary = map[string]any{"projectsCount": 3, "totalTime": 14}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "summary.projectsCount = 2, expected 3")
}

func TestRun_WithErrorExpect(t *testing.T) {
	tests := []struct {
		name  string
		query string
		class string
	}{
		{"parse", `{"a": `, ErrorClassParse},
		{"unknown reference", `{"references.viruses.name": "x"}`, ErrorClassUnknownRef},
		{"malformed field", `{"references.proteins": "x"}`, ErrorClassMalformed},
		{"unsupported operator", `{"name": {"$regex": "x"}}`, ErrorClassUnsupported},
		{"invalid field", `{"a\"b": 1}`, ErrorClassInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := minimalScenario(tt.query)
			scenario.Expect = ExpectClause{Error: tt.class}

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err, "query errors are outcomes, not run failures")

			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, tt.class, result.ErrorClass)
			assert.NotEmpty(t, result.ErrorMessage)
			assert.Nil(t, result.Summary)
		})
	}
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := minimalScenario(`{"references.viruses.name": "x"}`)
	scenario.Expect = ExpectClause{Summary: map[string]any{"projectsCount": 0}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected a summary, got unknown_reference error")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := minimalScenario()
	scenario.Expect = ExpectClause{Error: ErrorClassParse}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected parse error, got a summary")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := minimalScenario(`{"references.proteins.name": "BRCA1"}`, `{"published": true}`)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Filter, second.Filter)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Lookups, second.Lookups)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := minimalScenario()
	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	scenario.Collections = map[string][]map[string]any{}
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, int64(2), first.Summary.ProjectsCount)
	assert.Equal(t, int64(0), second.Summary.ProjectsCount)
}

func TestRun_CustomCatalog(t *testing.T) {
	scenario := &Scenario{
		Name:        "custom_catalog",
		Description: "genes replace the default catalog",
		References: []ReferenceSpec{
			{Name: "genes", Collection: "genes", IDField: "ensembl", ProjectIDsField: "metadata.GENES"},
		},
		Collections: map[string][]map[string]any{
			"genes":    {{"_id": "g1", "symbol": "BRCA1", "ensembl": "ENSG1"}},
			"projects": {{"_id": "A", "metadata": map[string]any{"GENES": []any{"ENSG1"}, "LENGTH": 2.5}}},
		},
		Queries: []string{`{"references.genes.symbol": "BRCA1"}`},
		Expect:  ExpectClause{Summary: map[string]any{"projectsCount": 1, "totalTime": 2.5}},
		Assertions: []Assertion{
			{Type: AssertMembership, Field: "metadata.GENES", IDs: []any{"ENSG1"}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The default proteins reference is gone.
	scenario.Queries = []string{`{"references.proteins.name": "BRCA1"}`}
	scenario.Expect = ExpectClause{Error: ErrorClassUnknownRef}
	scenario.Assertions = nil
	result, err = Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidCatalog(t *testing.T) {
	scenario := minimalScenario()
	scenario.References = []ReferenceSpec{
		{Name: "a.b", Collection: "c", IDField: "id", ProjectIDsField: "ids"},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid references")
}

func TestRun_HostRestriction(t *testing.T) {
	scenario := minimalScenario()
	scenario.Collections["projects"] = []map[string]any{
		{"_id": "A", "metadata": map[string]any{"COLLECTIONS": []any{"mdposit"}}},
		{"_id": "B", "metadata": map[string]any{"COLLECTIONS": []any{"other"}}},
	}
	scenario.Hosts = map[string]string{"MDposit.Example.org": "mdposit"}
	scenario.Host = "mdposit.example.org:443"
	scenario.Expect.Summary = map[string]any{"projectsCount": 1}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)

	result.AddError("test error")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"test error"}, result.Errors)
}

func TestErrorClass_NotAQueryError(t *testing.T) {
	assert.Equal(t, "", ErrorClass(context.Canceled))
	assert.Equal(t, "", ErrorClass(nil))
}
