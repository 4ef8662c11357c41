package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/loom/aspect"
	"github.com/roach88/loom/internal/testutil"
)

// errTransient is returned by a "fail" target's first call.
var errTransient = errors.New("transient failure")

// boundTarget is a scenario target built for one run.
//
// ref is the addressable slot handed to engine operations. invoke reads the
// slot at call time, so calls flow through whatever is currently woven.
type boundTarget struct {
	kind   string
	ref    any
	invoke func(args []int) ([]int, error)
}

// Harness is the scenario execution engine.
// It runs each scenario against a fresh engine with a deterministic clock
// stamping every trace event, so identical scenarios replay to identical
// traces for golden comparison.
type Harness struct {
	engine  *aspect.Engine
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	targets map[string]*boundTarget
	advices map[string]*aspect.Advice
	order   []string // advice declaration order, for "weave everything" steps
	result  *Result
	ttl     *aspect.Timer // most recently armed expiry timer
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine and freshly built targets for
// isolation. Deterministic sequence numbers ensure reproducible traces.
//
// Execution flow:
// 1. Resolve omitted advice ids to deterministic sequential ids
// 2. Build targets and advices from their declarations
// 3. Execute steps in order, recording trace events
// 4. Evaluate assertions against the trace and final chain state
// 5. Return result with pass/fail, trace, and errors
//
// Infrastructure failures (unknown names, weave errors, timer misuse) abort
// the run with an error. Expectation and assertion mismatches are recorded
// on the result instead, so a scenario reports every divergence.
func Run(scenario *Scenario) (*Result, error) {
	// Scenarios built in code may omit advice ids too
	resolveAdviceIDs(scenario)

	h := &Harness{
		engine:  aspect.NewEngine(),
		clock:   testutil.NewDeterministicClock(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		targets: make(map[string]*boundTarget, len(scenario.Targets)),
		advices: make(map[string]*aspect.Advice, len(scenario.Advices)),
		result:  NewResult(),
	}

	for i, spec := range scenario.Targets {
		target, err := buildTarget(spec)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		h.targets[spec.Name] = target
	}

	for i, spec := range scenario.Advices {
		advice, err := h.buildAdvice(spec)
		if err != nil {
			return nil, fmt.Errorf("advices[%d]: %w", i, err)
		}
		h.advices[spec.ID] = advice
		h.order = append(h.order, spec.ID)
	}

	for i := range scenario.Steps {
		if err := h.executeStep(i, &scenario.Steps[i]); err != nil {
			return nil, err
		}
	}

	actx := &AssertionContext{Engine: h.engine, Targets: h.targets}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// buildTarget constructs one target function for a scenario run.
// Stateful kinds capture their state in the closure, so it survives
// weaving and unweaving of the slot.
func buildTarget(spec TargetSpec) (*boundTarget, error) {
	switch spec.Kind {
	case TargetIdentity:
		fn := func(x int) int { return x }
		return &boundTarget{
			kind: spec.Kind,
			ref:  &fn,
			invoke: func(args []int) ([]int, error) {
				return []int{fn(args[0])}, nil
			},
		}, nil

	case TargetAdd:
		fn := func(a, b int) int { return a + b }
		return &boundTarget{
			kind: spec.Kind,
			ref:  &fn,
			invoke: func(args []int) ([]int, error) {
				return []int{fn(args[0], args[1])}, nil
			},
		}, nil

	case TargetCounter:
		n := 0
		fn := func() int {
			n++
			return n
		}
		return &boundTarget{
			kind: spec.Kind,
			ref:  &fn,
			invoke: func(args []int) ([]int, error) {
				return []int{fn()}, nil
			},
		}, nil

	case TargetFail:
		failed := false
		fn := func(x int) (int, error) {
			if !failed {
				failed = true
				return 0, errTransient
			}
			return x, nil
		}
		return &boundTarget{
			kind: spec.Kind,
			ref:  &fn,
			invoke: func(args []int) ([]int, error) {
				v, err := fn(args[0])
				return []int{v}, err
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown target kind %q", spec.Kind)
	}
}

// buildAdvice constructs one advice for a scenario run.
// Every handler records an advice trace event on entry with the arguments
// it observed, then applies its kind's behavior.
func (h *Harness) buildAdvice(spec AdviceSpec) (*aspect.Advice, error) {
	id := spec.ID
	var handler aspect.Handler

	switch spec.Kind {
	case AdviceTag:
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			return e.Proceed()
		}

	case AdviceDouble:
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			results, err := e.Proceed()
			if err != nil {
				return results, err
			}
			if len(results) > 0 {
				if v, ok := asInt(results[0]); ok {
					results[0] = v * 2
				}
			}
			return results, nil
		}

	case AdviceIncrement:
		amount := spec.Value
		if amount == 0 {
			amount = 1
		}
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			args := e.Args()
			if len(args) > 0 {
				if v, ok := asInt(args[0]); ok {
					args[0] = v + amount
					e.SetArgs(args)
				}
			}
			return e.Proceed()
		}

	case AdviceSkip:
		value := spec.Value
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			return []any{value}, nil
		}

	case AdviceRetryOnce:
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			results, err := e.Proceed()
			if err != nil {
				// One more shot; the cursor is exhausted, so this
				// replays only the callee
				return e.Proceed()
			}
			return results, nil
		}

	case AdviceStash:
		handler = func(e *aspect.Execution) ([]any, error) {
			h.result.AddAdviceTrace(id, intArgs(e.Args()), h.clock.Next())
			args := e.Args()
			if len(args) > 0 {
				e.Set(id, args[0])
			}
			results, err := e.Proceed()
			if err != nil {
				return results, err
			}
			if v, ok := e.Value(id); ok && len(results) > 0 {
				results[0] = v
			}
			return results, nil
		}

	default:
		return nil, fmt.Errorf("unknown advice kind %q", spec.Kind)
	}

	opts := []aspect.AdviceOption{aspect.WithID(id)}
	if spec.Enabled != nil && !*spec.Enabled {
		opts = append(opts, aspect.Disabled())
	}
	return aspect.New(handler, opts...), nil
}

// executeStep dispatches one scenario step by its verb.
func (h *Harness) executeStep(index int, step *Step) error {
	switch {
	case step.Weave != nil:
		return h.executeWeave(index, step.Weave)
	case step.Unweave != nil:
		return h.executeUnweave(index, step.Unweave)
	case step.Call != nil:
		return h.executeCall(index, step.Call)
	case step.SetEnabled != nil:
		return h.executeSetEnabled(index, step.SetEnabled)
	case step.CancelTTL != nil:
		return h.executeCancelTTL(index)
	case step.AwaitTTL != nil:
		return h.executeAwaitTTL(index)
	default:
		return fmt.Errorf("step %d: no verb set", index)
	}
}

func (h *Harness) executeWeave(index int, step *WeaveStep) error {
	target, err := h.target(index, step.Target)
	if err != nil {
		return err
	}
	advices, err := h.chain(index, step.Advices)
	if err != nil {
		return err
	}

	var opts []aspect.WeaveOption
	if step.Pointcut != "" {
		pointcut, err := aspect.NamePattern(step.Pointcut)
		if err != nil {
			return fmt.Errorf("step %d: %w", index, err)
		}
		opts = append(opts, aspect.WithPointcut(pointcut))
	}
	if step.Depth != nil {
		opts = append(opts, aspect.WithDepth(*step.Depth))
	}
	if step.PublicOnly {
		opts = append(opts, aspect.PublicOnly())
	}
	if step.TTLMS > 0 {
		opts = append(opts, aspect.WithTTL(time.Duration(step.TTLMS)*time.Millisecond))
	}

	matched, timer, err := h.engine.Weave(target.ref, advices, opts...)
	if err != nil {
		return fmt.Errorf("step %d: weave %s: %w", index, step.Target, err)
	}
	if timer != nil {
		h.ttl = timer
	}

	h.result.AddWeaveTrace(step.Target, len(matched), h.clock.Next())
	h.logger.Info("weave step completed",
		"step", index,
		"target", step.Target,
		"advices", len(advices),
		"matched", len(matched),
	)
	return nil
}

func (h *Harness) executeUnweave(index int, step *UnweaveStep) error {
	target, err := h.target(index, step.Target)
	if err != nil {
		return err
	}

	var opts []aspect.WeaveOption
	// Only narrow the removal when ids were given; an empty selection
	// would remove nothing rather than everything
	if len(step.Advices) > 0 {
		advices, err := h.chain(index, step.Advices)
		if err != nil {
			return err
		}
		opts = append(opts, aspect.WithAdvices(advices...))
	}

	if err := h.engine.Unweave(target.ref, opts...); err != nil {
		return fmt.Errorf("step %d: unweave %s: %w", index, step.Target, err)
	}

	h.result.AddUnweaveTrace(step.Target, h.clock.Next())
	h.logger.Info("unweave step completed",
		"step", index,
		"target", step.Target,
	)
	return nil
}

func (h *Harness) executeCall(index int, step *CallStep) error {
	target, err := h.target(index, step.Target)
	if err != nil {
		return err
	}
	if want := kindArity(target.kind); len(step.Args) != want {
		return fmt.Errorf("step %d: target %q takes %d args, got %d", index, step.Target, want, len(step.Args))
	}

	h.result.AddCallTrace(step.Target, step.Args, h.clock.Next())

	results, callErr := target.invoke(step.Args)

	errMsg := ""
	if callErr != nil {
		errMsg = callErr.Error()
	}
	h.result.AddResultTrace(results, errMsg, h.clock.Next())

	h.checkExpect(index, step, results, callErr)

	h.logger.Info("call step completed",
		"step", index,
		"target", step.Target,
		"results", results,
		"error", errMsg,
	)
	return nil
}

// checkExpect validates a call outcome against its expect clause.
func (h *Harness) checkExpect(index int, step *CallStep, results []int, callErr error) {
	expect := step.Expect
	if expect == nil {
		return
	}

	if expect.Error != "" {
		if callErr == nil {
			h.result.AddError(fmt.Sprintf("step %d: call %s: expected error containing %q, got none", index, step.Target, expect.Error))
		} else if !strings.Contains(callErr.Error(), expect.Error) {
			h.result.AddError(fmt.Sprintf("step %d: call %s: expected error containing %q, got %q", index, step.Target, expect.Error, callErr.Error()))
		}
	} else if callErr != nil {
		h.result.AddError(fmt.Sprintf("step %d: call %s: unexpected error: %v", index, step.Target, callErr))
	}

	if expect.Results != nil {
		if diff := cmp.Diff(expect.Results, results); diff != "" {
			h.result.AddError(fmt.Sprintf("step %d: call %s: results mismatch (-want +got):\n%s", index, step.Target, diff))
		}
	}
}

func (h *Harness) executeSetEnabled(index int, step *SetEnabledStep) error {
	target, err := h.target(index, step.Target)
	if err != nil {
		return err
	}

	var opts []aspect.WeaveOption
	if len(step.Advices) > 0 {
		advices, err := h.chain(index, step.Advices)
		if err != nil {
			return err
		}
		opts = append(opts, aspect.WithAdvices(advices...))
	}

	if err := h.engine.SetEnabled(target.ref, step.Enabled, opts...); err != nil {
		return fmt.Errorf("step %d: set_enabled %s: %w", index, step.Target, err)
	}

	h.logger.Info("set_enabled step completed",
		"step", index,
		"target", step.Target,
		"enabled", step.Enabled,
	)
	return nil
}

func (h *Harness) executeCancelTTL(index int) error {
	if h.ttl == nil {
		return fmt.Errorf("step %d: cancel_ttl: no armed expiry timer", index)
	}
	canceled := h.ttl.Cancel()
	h.ttl = nil

	h.logger.Info("cancel_ttl step completed",
		"step", index,
		"canceled", canceled,
	)
	return nil
}

func (h *Harness) executeAwaitTTL(index int) error {
	if h.ttl == nil {
		return fmt.Errorf("step %d: await_ttl: no armed expiry timer", index)
	}

	select {
	case <-h.ttl.Fired():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("step %d: await_ttl: timer did not fire", index)
	}
	h.ttl = nil

	h.result.AddTTLFiredTrace(h.clock.Next())
	h.logger.Info("await_ttl step completed", "step", index)
	return nil
}

// target resolves a declared target name.
func (h *Harness) target(index int, name string) (*boundTarget, error) {
	target, ok := h.targets[name]
	if !ok {
		return nil, fmt.Errorf("step %d: unknown target %q", index, name)
	}
	return target, nil
}

// chain resolves advice ids to built advices.
// An empty id list means every declared advice in declaration order.
func (h *Harness) chain(index int, ids []string) ([]*aspect.Advice, error) {
	if len(ids) == 0 {
		ids = h.order
	}
	advices := make([]*aspect.Advice, 0, len(ids))
	for _, id := range ids {
		advice, ok := h.advices[id]
		if !ok {
			return nil, fmt.Errorf("step %d: unknown advice id %q", index, id)
		}
		advices = append(advices, advice)
	}
	return advices, nil
}

// asInt unboxes an int-valued handler argument or result.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// intArgs converts boxed handler arguments to ints for the trace.
// Non-int arguments are dropped; scenario targets only traffic in ints.
func intArgs(args []any) []int {
	if len(args) == 0 {
		return nil
	}
	out := make([]int, 0, len(args))
	for _, arg := range args {
		if v, ok := asInt(arg); ok {
			out = append(out, v)
		}
	}
	return out
}
