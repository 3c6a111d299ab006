package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/engine"
	"github.com/roach88/genmerge/internal/store"
)

const orderModel = `
project: "demo"
machine: m: {
	variables: ["x"]
	extensions: [{id: "ext1"}, {id: "ext2"}]
}
request: [
	{parent: "components:m", feature: "variables", generator: "ext2", value: {kind: "variable", name: "b"}},
	{parent: "components:m", feature: "variables", generator: "ext1", value: {kind: "variable", name: "a"}},
	{parent: "components:m", feature: "variables", value: {kind: "variable", name: "x"}},
]
`

// writeCUE writes a CUE file under dir and returns its path.
func writeCUE(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newApplyOptions(format, dbPath string, runIDs ...string) *ApplyOptions {
	return &ApplyOptions{
		RootOptions: &RootOptions{Format: format},
		Database:    dbPath,
		Tie:         "after",
		MaxRequests: engine.DefaultMaxRequests,
		RunIDs:      engine.NewFixedGenerator(runIDs...),
	}
}

// applyForTest runs apply with opts and returns what it wrote to stdout.
func applyForTest(t *testing.T, opts *ApplyOptions, modelPath string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	err := runApply(opts, modelPath, cmd)
	return buf.String(), err
}

// seedRun applies orderModel into dbPath under runID.
func seedRun(t *testing.T, dbPath, runID string) {
	t.Helper()
	modelPath := writeCUE(t, t.TempDir(), "model.cue", orderModel)
	_, err := applyForTest(t, newApplyOptions("text", dbPath, runID), modelPath)
	require.NoError(t, err)
}

func TestApplyMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"model.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestApplyText(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)
	dbPath := filepath.Join(dir, "merge.db")

	out, err := applyForTest(t, newApplyOptions("text", dbPath, "run-1"), modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run run-1: 3 request(s)")
	assert.Contains(t, out, "accepted: 2, suppressed: 1, removed: 0, not found: 0")
	assert.Contains(t, out, "after: ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	log, err := st.LoadRunLog(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, log.IsComplete)
	require.Len(t, log.Changes, 3)
	assert.Equal(t, "b", log.Changes[0].Request.Value.Element.Name)
}

func TestApplyVerbosePrintsTree(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)

	opts := newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1")
	opts.Verbose = true
	out, err := applyForTest(t, opts, modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "machine m")
	assert.Contains(t, out, `variable a {generated_by="ext1" local_generated=true}`)
}

func TestApplyJSON(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)

	out, err := applyForTest(t, newApplyOptions("json", filepath.Join(dir, "merge.db"), "run-1"), modelPath)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   ApplyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, "after", resp.Data.TieBreak)
	assert.Equal(t, int64(3), resp.Data.Requests)
	assert.Equal(t, 2, resp.Data.Accepted)
	assert.Equal(t, 1, resp.Data.Suppressed)
	assert.NotEqual(t, resp.Data.BeforeHash, resp.Data.AfterHash)
}

func TestApplyRequestsFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", `machine: m: variables: ["x"]`)
	reqPath := writeCUE(t, dir, "req/requests.cue", `
request: [{parent: "components:m", feature: "variables", remove: true, value: {kind: "variable", name: "x"}}]
`)

	opts := newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1")
	opts.Requests = reqPath
	out, err := applyForTest(t, opts, modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "removed: 1")
}

func TestApplyRequestsFileWithoutList(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", `machine: m: variables: ["x"]`)
	reqPath := writeCUE(t, dir, "req/requests.cue", `other: 1`)

	opts := newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1")
	opts.Requests = reqPath
	out, err := applyForTest(t, opts, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E105")
}

func TestApplyModelNotFound(t *testing.T) {
	dir := t.TempDir()
	out, err := applyForTest(t, newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1"), filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestApplyInvalidRequest(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", `
machine: m: variables: ["x"]
request: [{parent: "components:missing", feature: "variables", value: {kind: "variable", name: "y"}}]
`)
	dbPath := filepath.Join(dir, "merge.db")

	out, err := applyForTest(t, newApplyOptions("text", dbPath, "run-1"), modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E211")

	// Nothing is recorded for a rejected request list.
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyInvalidTieBreak(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)

	opts := newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1")
	opts.Tie = "sideways"
	_, err := applyForTest(t, opts, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApplyUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)

	opts := newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1")
	opts.Target = "components:nope"
	out, err := applyForTest(t, opts, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "target:")
}

func TestApplyQuotaExceeded(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", orderModel)
	dbPath := filepath.Join(dir, "merge.db")

	opts := newApplyOptions("json", dbPath, "run-1")
	opts.MaxRequests = 1
	out, err := applyForTest(t, opts, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.Error.Code)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	incomplete, err := st.FindIncompleteRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, incomplete)
}

func TestApplyCycleFailsRun(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeCUE(t, dir, "model.cue", `
context: c0: extends: "c1"
context: c1: extends: "c0"
request: [{parent: "components:c0", feature: "axioms", value: {kind: "axiom", name: "a1", predicate: "n > 0"}}]
`)

	out, err := applyForTest(t, newApplyOptions("text", filepath.Join(dir, "merge.db"), "run-1"), modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Run run-1 failed")
	assert.Contains(t, out, "CYCLIC_MODEL")
	assert.Contains(t, out, "hint:")
}

func TestSummarizeRunCountsStatuses(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "merge.db")
	seedRun(t, dbPath, "run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	log, err := st.LoadRunLog(context.Background(), "run-1")
	require.NoError(t, err)

	result := summarizeRun(log.Run, log.Changes)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 1, result.Suppressed)
	assert.Equal(t, log.AfterHash, result.AfterHash)
}
