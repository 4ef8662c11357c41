package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes scenario YAML to a temp file and returns its path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
targets:
  - name: f
    kind: identity
advices:
  - id: double
    kind: double
steps:
  - weave:
      target: f
      advices: [double]
      depth: 2
  - call:
      target: f
      args: [5]
      expect:
        results: [10]
assertions:
  - type: trace_contains
    event: advice
    advice: double
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Len(t, scenario.Targets, 1)
	assert.Equal(t, TargetIdentity, scenario.Targets[0].Kind)
	assert.Len(t, scenario.Advices, 1)
	assert.Len(t, scenario.Steps, 2)
	assert.Len(t, scenario.Assertions, 1)

	require.NotNil(t, scenario.Steps[0].Weave)
	assert.Equal(t, "f", scenario.Steps[0].Weave.Target)
	assert.Equal(t, []string{"double"}, scenario.Steps[0].Weave.Advices)
	require.NotNil(t, scenario.Steps[0].Weave.Depth)
	assert.Equal(t, 2, *scenario.Steps[0].Weave.Depth)

	require.NotNil(t, scenario.Steps[1].Call)
	assert.Equal(t, []int{5}, scenario.Steps[1].Call.Args)
	require.NotNil(t, scenario.Steps[1].Call.Expect)
	assert.Equal(t, []int{10}, scenario.Steps[1].Call.Expect.Results)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	// "step:" instead of "steps:" must fail the strict decode
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
step:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingName(t *testing.T) {
	path := writeScenario(t, `
description: "Missing name"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_MissingDescription(t *testing.T) {
	path := writeScenario(t, `
name: test
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description is required")
}

func TestLoadScenario_EmptyTargets(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets: []
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets list is required")
}

func TestLoadScenario_EmptyAdvices(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices: []
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advices list is required")
}

func TestLoadScenario_EmptySteps(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps: []
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps list is required")
}

func TestLoadScenario_EmptyAssertions(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions: []
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions list is required")
}

func TestLoadScenario_UnknownTargetKind(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: multiplier
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target kind "multiplier"`)
}

func TestLoadScenario_DuplicateTargetName(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
  - name: f
    kind: counter
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate target name "f"`)
}

func TestLoadScenario_UnknownAdviceKind(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: memoize
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown advice kind "memoize"`)
}

func TestLoadScenario_DuplicateAdviceID(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
  - id: a1
    kind: double
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate advice id "a1"`)
}

func TestLoadScenario_StepWithNoVerb(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - {}
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestLoadScenario_StepWithTwoVerbs(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - weave:
      target: f
    unweave:
      target: f
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestLoadScenario_StepUnknownTarget(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: g
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "g"`)
}

func TestLoadScenario_StepUnknownAdviceID(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - weave:
      target: f
      advices: [ghost]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown advice id "ghost"`)
}

func TestLoadScenario_CallArityMismatch(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: sum
    kind: add
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: sum
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `target "sum" takes 2 args, got 1`)
}

func TestLoadScenario_NegativeDepth(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - weave:
      target: f
      depth: -1
assertions:
  - type: trace_count
    event: call
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth must be non-negative")
}

func TestLoadScenario_UnknownAssertionType(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_matches
    event: call
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown assertion type "trace_matches"`)
}

func TestLoadScenario_TraceContainsRequiresEvent(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_contains
    target: f
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event is required for trace_contains")
}

func TestLoadScenario_TraceOrderRequiresAdvices(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_order
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advices list is required for trace_order")
}

func TestLoadScenario_TraceCountNegative(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: trace_count
    event: call
    count: -1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count must be non-negative")
}

func TestLoadScenario_FinalAdvicesRequiresTarget(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: final_advices
    ids: [a1]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target is required for final_advices")
}

func TestLoadScenario_AssertionUnknownTarget(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - id: a1
    kind: tag
steps:
  - call:
      target: f
      args: [1]
assertions:
  - type: final_advices
    target: ghost
    ids: []
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "ghost"`)
}

func TestResolveAdviceIDs_SequentialAssignment(t *testing.T) {
	scenario := &Scenario{
		Advices: []AdviceSpec{
			{Kind: AdviceTag},
			{ID: "custom", Kind: AdviceDouble},
			{Kind: AdviceTag},
		},
	}

	resolveAdviceIDs(scenario)

	assert.Equal(t, "adv-0001", scenario.Advices[0].ID)
	assert.Equal(t, "custom", scenario.Advices[1].ID)
	assert.Equal(t, "adv-0002", scenario.Advices[2].ID)
}

func TestLoadScenario_GeneratedIDsAreReferenceable(t *testing.T) {
	// An advice with no id resolves to adv-0001 before step validation,
	// so steps may reference the generated id
	path := writeScenario(t, `
name: test
description: "Test"
targets:
  - name: f
    kind: identity
advices:
  - kind: tag
steps:
  - weave:
      target: f
      advices: [adv-0001]
assertions:
  - type: final_advices
    target: f
    ids: [adv-0001]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "adv-0001", scenario.Advices[0].ID)
}
