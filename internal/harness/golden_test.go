package harness

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios_Golden runs every scenario file against its golden trace.
// Regenerate fixtures with: go test ./internal/harness -update
func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	seen := make(map[string]bool)
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			seen[scenario.Name] = true

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			require.True(t, result.Pass, "scenario errors: %v", result.Errors)
		})
	}

	// An orphaned fixture means a scenario was renamed without its golden
	fixtures, err := filepath.Glob(filepath.Join("testdata", "golden", "*.golden"))
	require.NoError(t, err)
	for _, fixture := range fixtures {
		name := strings.TrimSuffix(filepath.Base(fixture), ".golden")
		assert.True(t, seen[name], "stale golden fixture: %s", fixture)
	}
}

func TestRunWithGolden_PropagatesRunErrors(t *testing.T) {
	scenario := &Scenario{
		Name:        "never_compared",
		Description: "run errors surface before any golden comparison",
		Targets:     []TargetSpec{{Name: "f", Kind: TargetIdentity}},
		Advices:     []AdviceSpec{{ID: "note", Kind: AdviceTag}},
		Steps:       []Step{{AwaitTTL: &TTLStep{}}},
	}

	_, err := RunWithGolden(t, scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no armed expiry timer")
}

func TestTraceSnapshot_OmitsEmptyFields(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "shape",
		Trace: []TraceEvent{
			{Type: EventTTLFired, Seq: 1},
		},
	}

	data, err := json.Marshal(&snapshot)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"scenario_name":"shape"`)
	assert.Contains(t, s, `"type":"ttl_fired"`)
	assert.Contains(t, s, `"seq":1`)
	assert.NotContains(t, s, "target")
	assert.NotContains(t, s, "args")
	assert.NotContains(t, s, "results")
	assert.NotContains(t, s, "error")
	assert.NotContains(t, s, "matched")
}

func TestTraceSnapshot_RendersPopulatedFields(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "shape",
		Trace: []TraceEvent{
			{Type: EventCall, Target: "sum", Args: []int{2, 3}, Seq: 1},
			{Type: EventResult, Results: []int{0}, Error: "transient failure", Seq: 2},
		},
	}

	data, err := json.Marshal(&snapshot)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"target":"sum"`)
	assert.Contains(t, s, `"args":[2,3]`)
	assert.Contains(t, s, `"results":[0]`)
	assert.Contains(t, s, `"error":"transient failure"`)
}

// replayScenario builds a fresh copy of a scenario that touches every
// state-bearing piece of the harness: a stateful target, a weave, toggles,
// and an unweave.
func replayScenario() *Scenario {
	return &Scenario{
		Name:        "replay",
		Description: "deterministic replay probe",
		Targets: []TargetSpec{
			{Name: "f", Kind: TargetIdentity},
			{Name: "c", Kind: TargetCounter},
		},
		Advices: []AdviceSpec{
			{ID: "double", Kind: AdviceDouble},
			{Kind: AdviceTag},
		},
		Steps: []Step{
			{Weave: &WeaveStep{Target: "f"}},
			{Call: &CallStep{Target: "f", Args: []int{5}}},
			{Call: &CallStep{Target: "c"}},
			{SetEnabled: &SetEnabledStep{Target: "f", Advices: []string{"double"}, Enabled: false}},
			{Call: &CallStep{Target: "f", Args: []int{5}}},
			{Unweave: &UnweaveStep{Target: "f"}},
			{Call: &CallStep{Target: "f", Args: []int{5}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Event: EventCall, Count: 4},
		},
	}
}

func TestRun_DeterministicReplay(t *testing.T) {
	first, err := Run(replayScenario())
	require.NoError(t, err)
	require.True(t, first.Pass, "errors: %v", first.Errors)

	second, err := Run(replayScenario())
	require.NoError(t, err)

	// Fresh engine, fresh targets, fresh clock: byte-identical traces
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_SequenceStrictlyIncreasing(t *testing.T) {
	result, err := Run(replayScenario())
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)

	assert.Equal(t, int64(1), result.Trace[0].Seq)
	for i := 1; i < len(result.Trace); i++ {
		assert.Greater(t, result.Trace[i].Seq, result.Trace[i-1].Seq,
			"trace[%d] out of order", i)
	}
}
