package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loom/internal/testutil"
)

// Scenario defines a conformance test scenario.
// Scenarios declare a set of target functions and advices, drive an engine
// through a sequence of weave, call, and lifecycle steps, and assert on the
// resulting trace and final chain state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	// It is also the golden fixture name for trace comparison.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Targets declares the functions the scenario weaves and calls.
	// Each target is built fresh per run, so stateful kinds (counter, fail)
	// start from a clean slate.
	Targets []TargetSpec `yaml:"targets"`

	// Advices declares the advices available to weave steps.
	// Advices with no explicit id receive deterministic sequential ids
	// (adv-0001, adv-0002, ...) in declaration order.
	Advices []AdviceSpec `yaml:"advices"`

	// Steps contains the main test flow.
	// Each step holds exactly one verb: weave, unweave, call, set_enabled,
	// cancel_ttl, or await_ttl.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and chain state.
	// Supported types: trace_contains, trace_order, trace_count, final_advices
	Assertions []Assertion `yaml:"assertions"`
}

// TargetSpec declares a named target function.
type TargetSpec struct {
	// Name is the handle steps use to refer to this target.
	Name string `yaml:"name"`

	// Kind selects the target's behavior:
	//   - "identity": func(x int) int returning x
	//   - "add":      func(a, b int) int returning a+b
	//   - "counter":  func() int returning 1, 2, 3, ... per call
	//   - "fail":     func(x int) (int, error) failing on its first call
	//                 and returning x thereafter
	Kind string `yaml:"kind"`
}

// AdviceSpec declares an advice and the behavior of its handler.
type AdviceSpec struct {
	// ID identifies the advice in steps and assertions.
	// Empty ids are filled in with deterministic sequential ids at load time.
	ID string `yaml:"id,omitempty"`

	// Kind selects the handler behavior:
	//   - "tag":        records itself in the trace and proceeds unchanged
	//   - "double":     proceeds, then doubles the first int result
	//   - "increment":  adds Value (default 1) to the first argument
	//   - "skip":       returns Value without proceeding to the callee
	//   - "retry_once": proceeds again once if the first proceed errored
	//   - "stash":      stores the first argument in the execution's value
	//                   store and restores it as the first result
	Kind string `yaml:"kind"`

	// Enabled controls the advice's initial state. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Value parameterizes increment (amount) and skip (fixed result).
	Value int `yaml:"value,omitempty"`
}

// Step is a single scenario action. Exactly one verb must be set.
type Step struct {
	Weave      *WeaveStep      `yaml:"weave,omitempty"`
	Unweave    *UnweaveStep    `yaml:"unweave,omitempty"`
	Call       *CallStep       `yaml:"call,omitempty"`
	SetEnabled *SetEnabledStep `yaml:"set_enabled,omitempty"`
	CancelTTL  *TTLStep        `yaml:"cancel_ttl,omitempty"`
	AwaitTTL   *TTLStep        `yaml:"await_ttl,omitempty"`
}

// WeaveStep weaves advices into a target.
type WeaveStep struct {
	// Target is the declared target name.
	Target string `yaml:"target"`

	// Advices lists advice ids to weave, in chain order.
	// Empty means all declared advices in declaration order.
	Advices []string `yaml:"advices,omitempty"`

	// Pointcut is an optional name pattern; empty matches everything.
	Pointcut string `yaml:"pointcut,omitempty"`

	// Depth limits container recursion. Omitted uses the engine default.
	Depth *int `yaml:"depth,omitempty"`

	// PublicOnly restricts traversal to exported member names.
	PublicOnly bool `yaml:"public_only,omitempty"`

	// TTLMS arms an expiry timer for the weave, in milliseconds.
	// The armed timer becomes the subject of later cancel_ttl or
	// await_ttl steps.
	TTLMS int `yaml:"ttl_ms,omitempty"`
}

// UnweaveStep removes advices from a target.
type UnweaveStep struct {
	Target string `yaml:"target"`

	// Advices lists advice ids to remove. Empty removes the whole chain.
	Advices []string `yaml:"advices,omitempty"`
}

// CallStep invokes a target through its (possibly woven) slot.
type CallStep struct {
	Target string `yaml:"target"`

	// Args are the int arguments; the length must match the target kind.
	Args []int `yaml:"args,omitempty"`

	// Expect specifies the expected call outcome.
	// If nil, the outcome is recorded but not validated.
	Expect *CallExpect `yaml:"expect,omitempty"`
}

// CallExpect specifies the expected outcome of a call step.
type CallExpect struct {
	// Results are the expected int results. Nil skips result validation.
	Results []int `yaml:"results,omitempty"`

	// Error, when non-empty, requires the call to fail with an error
	// containing this substring. When empty the call must succeed.
	Error string `yaml:"error,omitempty"`
}

// SetEnabledStep toggles advices on a target's chains.
type SetEnabledStep struct {
	Target string `yaml:"target"`

	// Advices lists advice ids to toggle. Empty toggles every advice
	// reachable from the target.
	Advices []string `yaml:"advices,omitempty"`

	// Enabled is the state to set. Omitted means false (disable).
	Enabled bool `yaml:"enabled"`
}

// TTLStep operates on the most recently armed expiry timer.
type TTLStep struct{}

// Assertion validates the trace or final chain state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a matching event appears in the trace
	// - "trace_order": Check advice events appear in order
	// - "trace_count": Check matching events appear exactly N times
	// - "final_advices": Check a target's chain holds exactly these ids
	Type string `yaml:"type"`

	// Event is the trace event type to match
	// (used by trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Target narrows event matching, or names the chain to inspect
	// (used by trace_contains, trace_count, final_advices).
	Target string `yaml:"target,omitempty"`

	// Advice narrows event matching to one advice id
	// (used by trace_contains, trace_count).
	Advice string `yaml:"advice,omitempty"`

	// Args are the expected event arguments (used by trace_contains).
	Args []int `yaml:"args,omitempty"`

	// Results are the expected event results (used by trace_contains).
	Results []int `yaml:"results,omitempty"`

	// Advices is the expected advice execution order (used by trace_order).
	Advices []string `yaml:"advices,omitempty"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// IDs is the expected chain content in order (used by final_advices).
	// Empty means the target must have no advices left.
	IDs []string `yaml:"ids,omitempty"`
}

// Target kind constants.
const (
	TargetIdentity = "identity"
	TargetAdd      = "add"
	TargetCounter  = "counter"
	TargetFail     = "fail"
)

// Advice kind constants.
const (
	AdviceTag       = "tag"
	AdviceDouble    = "double"
	AdviceIncrement = "increment"
	AdviceSkip      = "skip"
	AdviceRetryOnce = "retry_once"
	AdviceStash     = "stash"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalAdvices  = "final_advices"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Assign deterministic ids BEFORE validation so step references resolve
	resolveAdviceIDs(&scenario)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// resolveAdviceIDs fills in omitted advice ids with deterministic sequential
// ids in declaration order. Explicit ids are left untouched, so the same
// scenario always resolves to the same id set.
func resolveAdviceIDs(s *Scenario) {
	gen := testutil.NewSequentialIDGenerator("adv")
	for i := range s.Advices {
		if s.Advices[i].ID == "" {
			s.Advices[i].ID = gen.Generate()
		}
	}
}

// validateScenario checks that required fields are present and that every
// step and assertion references declared targets and advices.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Targets) == 0 {
		return fmt.Errorf("targets list is required and must be non-empty")
	}

	if len(s.Advices) == 0 {
		return fmt.Errorf("advices list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	// Validate target declarations
	targetKinds := make(map[string]string, len(s.Targets))
	for i, target := range s.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if _, dup := targetKinds[target.Name]; dup {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, target.Name)
		}
		switch target.Kind {
		case TargetIdentity, TargetAdd, TargetCounter, TargetFail:
		default:
			return fmt.Errorf("targets[%d]: unknown target kind %q", i, target.Kind)
		}
		targetKinds[target.Name] = target.Kind
	}

	// Validate advice declarations (ids are resolved by this point)
	adviceIDs := make(map[string]bool, len(s.Advices))
	for i, advice := range s.Advices {
		if adviceIDs[advice.ID] {
			return fmt.Errorf("advices[%d]: duplicate advice id %q", i, advice.ID)
		}
		switch advice.Kind {
		case AdviceTag, AdviceDouble, AdviceIncrement, AdviceSkip, AdviceRetryOnce, AdviceStash:
		default:
			return fmt.Errorf("advices[%d]: unknown advice kind %q", i, advice.Kind)
		}
		adviceIDs[advice.ID] = true
	}

	// Validate steps
	for i, step := range s.Steps {
		if err := validateStep(i, &step, targetKinds, adviceIDs); err != nil {
			return err
		}
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, targetKinds); err != nil {
			return err
		}
	}

	return nil
}

// kindArity returns the number of int arguments a target kind takes.
func kindArity(kind string) int {
	switch kind {
	case TargetAdd:
		return 2
	case TargetCounter:
		return 0
	default:
		// identity and fail both take a single int
		return 1
	}
}

// validateStep validates a single step based on its verb.
func validateStep(index int, s *Step, targets map[string]string, advices map[string]bool) error {
	verbs := 0
	for _, set := range []bool{
		s.Weave != nil,
		s.Unweave != nil,
		s.Call != nil,
		s.SetEnabled != nil,
		s.CancelTTL != nil,
		s.AwaitTTL != nil,
	} {
		if set {
			verbs++
		}
	}
	if verbs != 1 {
		return fmt.Errorf("steps[%d]: exactly one of weave/unweave/call/set_enabled/cancel_ttl/await_ttl is required, got %d", index, verbs)
	}

	checkTarget := func(name string) error {
		if name == "" {
			return fmt.Errorf("steps[%d]: target is required", index)
		}
		if _, ok := targets[name]; !ok {
			return fmt.Errorf("steps[%d]: unknown target %q", index, name)
		}
		return nil
	}
	checkAdvices := func(ids []string) error {
		for _, id := range ids {
			if !advices[id] {
				return fmt.Errorf("steps[%d]: unknown advice id %q", index, id)
			}
		}
		return nil
	}

	switch {
	case s.Weave != nil:
		if err := checkTarget(s.Weave.Target); err != nil {
			return err
		}
		if err := checkAdvices(s.Weave.Advices); err != nil {
			return err
		}
		if s.Weave.Depth != nil && *s.Weave.Depth < 0 {
			return fmt.Errorf("steps[%d]: depth must be non-negative", index)
		}
		if s.Weave.TTLMS < 0 {
			return fmt.Errorf("steps[%d]: ttl_ms must be non-negative", index)
		}
	case s.Unweave != nil:
		if err := checkTarget(s.Unweave.Target); err != nil {
			return err
		}
		if err := checkAdvices(s.Unweave.Advices); err != nil {
			return err
		}
	case s.Call != nil:
		if err := checkTarget(s.Call.Target); err != nil {
			return err
		}
		want := kindArity(targets[s.Call.Target])
		if len(s.Call.Args) != want {
			return fmt.Errorf("steps[%d]: target %q takes %d args, got %d", index, s.Call.Target, want, len(s.Call.Args))
		}
	case s.SetEnabled != nil:
		if err := checkTarget(s.SetEnabled.Target); err != nil {
			return err
		}
		if err := checkAdvices(s.SetEnabled.Advices); err != nil {
			return err
		}
	}
	// cancel_ttl and await_ttl have no fields; whether a timer is armed
	// is only known at run time.

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, targets map[string]string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	checkTarget := func() error {
		if a.Target != "" {
			if _, ok := targets[a.Target]; !ok {
				return fmt.Errorf("assertions[%d]: unknown target %q", index, a.Target)
			}
		}
		return nil
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
		if err := checkTarget(); err != nil {
			return err
		}
	case AssertTraceOrder:
		if len(a.Advices) == 0 {
			return fmt.Errorf("assertions[%d]: advices list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
		if err := checkTarget(); err != nil {
			return err
		}
	case AssertFinalAdvices:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for final_advices", index)
		}
		if err := checkTarget(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
