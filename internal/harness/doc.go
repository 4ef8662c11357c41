// Package harness provides conformance testing for the weaving engine.
//
// The harness builds target functions and advices from YAML declarations,
// drives a fresh engine through weave, call, and lifecycle steps, and
// validates the resulting trace and final chain state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	targets:
//	  - name: f
//	    kind: identity
//	advices:
//	  - id: double
//	    kind: double
//	steps:
//	  - weave: { target: f, advices: [double] }
//	  - call:
//	      target: f
//	      args: [5]
//	      expect: { results: [10] }
//	  - unweave: { target: f }
//	assertions:
//	  - type: trace_contains
//	    event: advice
//	    advice: double
//	  - type: final_advices
//	    target: f
//	    ids: []
//
// # Target Kinds
//
// Targets are real functions, built fresh per run:
//
//   - identity: func(x int) int returning x
//   - add: func(a, b int) int returning a+b
//   - counter: func() int returning 1, 2, 3, ... per call
//   - fail: func(x int) (int, error) erroring on its first call only
//
// # Advice Kinds
//
// Every advice handler records a trace event on entry, then applies its
// kind's behavior:
//
//   - tag: proceeds unchanged
//   - double: proceeds, then doubles the first result
//   - increment: adds value to the first argument before proceeding
//   - skip: returns value without proceeding to the callee
//   - retry_once: proceeds a second time if the first proceed errored
//   - stash: round-trips the first argument through the execution's
//     value store and restores it as the first result
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies a matching event appears in the trace
//   - trace_order: Verifies advice events appear in specified order
//   - trace_count: Verifies matching events appear exactly N times
//   - final_advices: Verifies a target's chain holds exactly these ids
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic logical clock
// (testutil.DeterministicClock) stamping every trace event, and omitted
// advice ids resolve to deterministic sequential ids
// (testutil.SequentialIDGenerator). This ensures identical traces across
// runs for golden file comparison.
//
// # Usage
//
// Load a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/double.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Execute it:
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
