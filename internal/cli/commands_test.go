package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mdstats/internal/metrics"
)

const referencesFixture = `[
  {"_id": "r1", "name": "BRCA1", "uniprot": "P1"},
  {"_id": "r2", "name": "TP53", "uniprot": "P2"}
]`

// A is legacy and published; B is multi-run, unpublished, framestep 0.5.
const projectsFixture = `{"_id": "A", "published": true, "metadata": {"REFERENCES": ["P1"], "LENGTH": 10, "SNAPSHOTS": 100}, "files": ["a", "b"], "analyses": ["rmsd"]}
{"_id": "B", "published": false, "metadata": {"REFERENCES": ["P2"], "FRAMESTEP": 0.5}, "mds": [{"frames": 20, "files": ["x"], "analyses": []}, {"frames": 10, "files": [], "analyses": ["rg"]}]}
`

// runCommand executes the root command with args and returns stdout,
// stderr and the error.
func runCommand(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// loadedDB creates a database with the reference and project fixtures
// loaded through the load command.
func loadedDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "mdstats.db")

	refs := writeFile(t, dir, "references.json", referencesFixture)
	projects := writeFile(t, dir, "projects.ndjson", projectsFixture)

	_, _, err := runCommand(t, context.Background(), "--db", db, "load", "--collection", "references", refs)
	require.NoError(t, err)
	_, _, err = runCommand(t, context.Background(), "--db", db, "load", "--collection", "projects", projects)
	require.NoError(t, err)
	return db
}

func TestLoadCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mdstats.db")
	refs := writeFile(t, dir, "references.json", referencesFixture)

	stdout, _, err := runCommand(t, context.Background(), "--db", db, "load", "--collection", "references", refs)
	require.NoError(t, err)
	assert.Equal(t, "Loaded 2 documents into references\n", stdout)

	// Loading again replaces by _id.
	stdout, _, err = runCommand(t, context.Background(), "--db", db, "--format", "json", "load", "--collection", "references", refs)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, LoadResult{Collection: "references", Documents: 2}, resp.Data)
}

func TestLoadCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mdstats.db")

	tests := []struct {
		name string
		file string
		code string
	}{
		{"missing file", filepath.Join(dir, "missing.json"), ErrCodeInput},
		{"malformed json", writeFile(t, dir, "bad.json", `[{"_id": "A"`), ErrCodeInput},
		{"non-object document", writeFile(t, dir, "scalar.ndjson", "1\n"), ErrCodeInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := runCommand(t, context.Background(), "--db", db, "load", "--collection", "projects", tt.file)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, "Error ["+tt.code+"]")
		})
	}
}

func TestLoadCommand_RequiresCollection(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "references.json", referencesFixture)

	_, _, err := runCommand(t, context.Background(), "--db", filepath.Join(dir, "mdstats.db"), "load", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection")
}

func TestSummaryCommand_Text(t *testing.T) {
	db := loadedDB(t)

	stdout, _, err := runCommand(t, context.Background(), "--db", db, "summary")
	require.NoError(t, err)
	assert.Equal(t,
		"projectsCount: 2\n"+
			"mdCount:       3\n"+
			"totalTime:     25\n"+
			"totalFrames:   130\n"+
			"totalFiles:    3\n"+
			"totalAnalyses: 2\n",
		stdout)
}

func TestSummaryCommand_JSON(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name string
		args []string
		want metrics.Summary
	}{
		{
			name: "everything",
			want: metrics.Summary{ProjectsCount: 2, MDCount: 3, TotalTime: 25, TotalFrames: 130, TotalFiles: 3, TotalAnalyses: 2},
		},
		{
			name: "reference query",
			args: []string{"--query", `{"references.proteins.name": "BRCA1"}`},
			want: metrics.Summary{ProjectsCount: 1, MDCount: 1, TotalTime: 10, TotalFrames: 100, TotalFiles: 2, TotalAnalyses: 1},
		},
		{
			name: "production hides unpublished",
			args: []string{"--env", "production"},
			want: metrics.Summary{ProjectsCount: 1, MDCount: 1, TotalTime: 10, TotalFrames: 100, TotalFiles: 2, TotalAnalyses: 1},
		},
		{
			name: "repeated queries are conjoined",
			args: []string{"-q", `{"references.proteins.name": "TP53"}`, "-q", `{"published": true}`},
			want: metrics.Summary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db, "--format", "json", "summary"}, tt.args...)

			stdout, _, err := runCommand(t, context.Background(), args...)
			require.NoError(t, err)

			var resp struct {
				Status string          `json:"status"`
				Data   metrics.Summary `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
			assert.Equal(t, "ok", resp.Status)
			assert.Equal(t, tt.want, resp.Data)
		})
	}
}

func TestSummaryCommand_QueryErrors(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"malformed fragment", `{bad`, ErrCodeParse},
		{"unknown reference", `{"references.viruses.name": "x"}`, ErrCodeUnknownRef},
		{"missing inner field", `{"references.proteins": "x"}`, ErrCodeMalformedRef},
		{"unsupported operator", `{"name": {"$regex": "^a"}}`, ErrCodeUnsupported},
		{"unaddressable field", `{"a\"b": 1}`, ErrCodeInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := runCommand(t, context.Background(), "--db", db, "--format", "json", "summary", "--query", tt.query)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestSummaryCommand_ParseErrorMessage(t *testing.T) {
	db := loadedDB(t)

	stdout, _, err := runCommand(t, context.Background(), "--db", db, "summary", "--query", `{bad`)
	require.Error(t, err)
	assert.Contains(t, stdout, "Error [E201]: summary failed: Wrong query syntax: {bad")
}

func TestResolveCommand(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "no fragments",
			want: "{}\n",
		},
		{
			name: "reference leaf becomes membership",
			args: []string{"--query", `{"references.proteins.name": "BRCA1"}`},
			want: `{"$and":[{"metadata.REFERENCES":{"$in":["P1"]}}]}` + "\n",
		},
		{
			name: "unmatched reference resolves to empty membership",
			args: []string{"--query", `{"references.proteins.name": "nothing"}`},
			want: `{"$and":[{"metadata.REFERENCES":{"$in":[]}}]}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db, "resolve"}, tt.args...)
			stdout, _, err := runCommand(t, context.Background(), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestResolveCommand_JSON(t *testing.T) {
	db := loadedDB(t)

	stdout, _, err := runCommand(t, context.Background(), "--db", db, "--format", "json", "--env", "prod", "resolve")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"$and":[{"published":true}]}}`, stdout)
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing config file", []string{"--config", filepath.Join(dir, "missing.yaml"), "summary"}},
		{"invalid config", []string{"--config", writeFile(t, dir, "bad.yaml", "store:\n  driver: postgres\n"), "summary"}},
		{"mongo without uri", []string{"--config", writeFile(t, dir, "mongo.yaml", "store:\n  driver: mongo\n"), "summary"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := runCommand(t, context.Background(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, "Error [E101]")
		})
	}
}

func TestConfigFile(t *testing.T) {
	db := loadedDB(t)
	dir := t.TempDir()

	t.Setenv("MDSTATS_TEST_DB", db)
	cfg := writeFile(t, dir, "mdstats.yaml", "environment: production\nstore:\n  path: ${MDSTATS_TEST_DB}\n")

	stdout, _, err := runCommand(t, context.Background(), "--config", cfg, "--config.expand-env", "--format", "json", "summary")
	require.NoError(t, err)

	var resp struct {
		Data metrics.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, int64(1), resp.Data.ProjectsCount)
}

func TestServeCommand_Shutdown(t *testing.T) {
	db := loadedDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := runCommand(t, ctx, "--db", db, "serve", "--listen", "127.0.0.1:0")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after context cancellation")
	}
}

func TestServeCommand_BadListenAddress(t *testing.T) {
	db := loadedDB(t)

	stdout, _, err := runCommand(t, context.Background(), "--db", db, "serve", "--listen", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E001]")
}
