package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/harness"
)

const passingScenario = `
name: order_pass
description: "Generated variable goes before the existing one"
model: |
  machine: m: {
      variables: ["x"]
      extensions: [{id: "ext1"}]
  }
steps:
  - parent: "components:m"
    feature: variables
    generator: ext1
    value: {kind: variable, name: a}
    expect: accepted
assertions:
  - type: order
    parent: "components:m"
    feature: variables
    names: [a, x]
`

const failingScenario = `
name: order_fail
description: "Wrong expected order"
model: |
  machine: m: variables: ["x"]
steps:
  - parent: "components:m"
    feature: variables
    value: {kind: variable, name: x}
assertions:
  - type: accepted
    step: 1
`

func testForTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := testForTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := testForTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := testForTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassing(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "order.yaml", passingScenario)

	out, err := testForTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ order_pass")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFailing(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "order.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := testForTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ order_fail")
	assert.Contains(t, out, "assertions[0]")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "order.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := testForTest(t, "text", dir, "--filter", "order*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "order_fail")
}

func TestTestCommandUpdateGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "order.yaml", passingScenario)

	out, err := testForTest(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ order_pass (golden updated)")

	data, err := os.ReadFile(harness.GoldenPath(path))
	require.NoError(t, err)
	assert.Contains(t, string(data), "#1 add a to components:m.variables: accepted (index 0)")

	// A changed golden file now fails the scenario.
	require.NoError(t, os.WriteFile(harness.GoldenPath(path), []byte("stale\n"), 0644))
	out, err = testForTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := testForTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "order_fail", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
}
