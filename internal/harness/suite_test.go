package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuite_AllScenariosPass(t *testing.T) {
	result, err := RunSuite(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.NotZero(t, result.TotalScenarios)
	assert.Equal(t, result.TotalScenarios, result.Passed, "failures: %+v", result.Failures)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunSuite_NoScenarioFiles(t *testing.T) {
	_, err := RunSuite(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files match")
}

func TestRunSuite_ReportsFailures(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	// Lexical order decides reporting order: bad_parse, exec_fail, failing, passing
	write("bad_parse.yaml", "name: broken\nsteps: [")

	write("exec_fail.yaml", `
name: exec_fail
description: await without an armed timer
targets:
  - name: f
    kind: identity
advices:
  - id: note
    kind: tag
steps:
  - await_ttl: {}
assertions:
  - type: trace_count
    event: call
    count: 0
`)

	write("failing.yaml", `
name: failing
description: assertion cannot hold
targets:
  - name: f
    kind: identity
advices:
  - id: note
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: advice
    count: 5
`)

	write("passing.yaml", `
name: passing
description: trivial pass
targets:
  - name: f
    kind: identity
advices:
  - id: note
    kind: tag
steps:
  - call:
      target: f
      args: [1]
      expect:
        results: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	result, err := RunSuite(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Failures, 3)

	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "bad_parse.yaml", result.Failures[0].Scenario)

	assert.Contains(t, result.Failures[1].Error, "scenario execution failed")
	assert.Equal(t, "exec_fail", result.Failures[1].Scenario)

	assert.Contains(t, result.Failures[2].Error, "scenario assertions failed")
	assert.Equal(t, "failing", result.Failures[2].Scenario)
}
