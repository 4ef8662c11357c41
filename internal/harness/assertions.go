package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/loom/aspect"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatEvent(event))
	}

	return buf.String()
}

// formatEvent renders one trace event compactly for failure messages.
func formatEvent(e TraceEvent) string {
	switch e.Type {
	case EventWeave:
		return fmt.Sprintf("%s %s matched=%d", e.Type, e.Target, e.Matched)
	case EventCall:
		return fmt.Sprintf("%s %s %v", e.Type, e.Target, e.Args)
	case EventAdvice:
		return fmt.Sprintf("%s %s %v", e.Type, e.Advice, e.Args)
	case EventResult:
		if e.Error != "" {
			return fmt.Sprintf("%s %v error=%q", e.Type, e.Results, e.Error)
		}
		return fmt.Sprintf("%s %v", e.Type, e.Results)
	case EventUnweave:
		return fmt.Sprintf("%s %s", e.Type, e.Target)
	default:
		return e.Type
	}
}

// matchEvent reports whether a trace event satisfies an assertion's
// event selector. Unset selector fields match anything.
func matchEvent(event TraceEvent, a *Assertion) bool {
	if event.Type != a.Event {
		return false
	}
	if a.Target != "" && event.Target != a.Target {
		return false
	}
	if a.Advice != "" && event.Advice != a.Advice {
		return false
	}
	if a.Args != nil && !intsEqual(a.Args, event.Args) {
		return false
	}
	if a.Results != nil && !intsEqual(a.Results, event.Results) {
		return false
	}
	return true
}

// intsEqual compares int slices, treating nil and empty as equal.
func intsEqual(want, got []int) bool {
	if len(want) == 0 && len(got) == 0 {
		return true
	}
	return cmp.Equal(want, got)
}

// describeSelector renders an assertion's event selector for messages.
func describeSelector(a *Assertion) string {
	parts := []string{fmt.Sprintf("event %q", a.Event)}
	if a.Target != "" {
		parts = append(parts, fmt.Sprintf("target=%s", a.Target))
	}
	if a.Advice != "" {
		parts = append(parts, fmt.Sprintf("advice=%s", a.Advice))
	}
	if a.Args != nil {
		parts = append(parts, fmt.Sprintf("args=%v", a.Args))
	}
	if a.Results != nil {
		parts = append(parts, fmt.Sprintf("results=%v", a.Results))
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks if the trace contains an event matching
// the assertion's selector.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, &assertion) {
			return nil // Found matching event
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeSelector(&assertion),
		Actual:   "no matching event in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if advice events appear in the specified order.
// Advices don't need to be consecutive (intervening events are allowed);
// the first occurrence of each id decides its position.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected advice
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type == EventAdvice {
			for _, id := range assertion.Advices {
				if event.Advice == id && positions[id] == 0 {
					positions[id] = i + 1 // 1-indexed for readability
				}
			}
		}
	}

	// Step 2: Verify all advices found
	for _, id := range assertion.Advices {
		if positions[id] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all advices present: %v", assertion.Advices),
				Actual:   fmt.Sprintf("missing advice: %s", id),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Advices); i++ {
		prev := assertion.Advices[i-1]
		curr := assertion.Advices[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("advices in order: %v", assertion.Advices),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if exactly the specified number of events match
// the assertion's selector.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, &assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d matches of %s", assertion.Count, describeSelector(&assertion)),
			Actual:   fmt.Sprintf("%d matches", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalAdvices checks that a target's chain holds exactly the
// expected advice ids, in order. An empty id list asserts the target
// has no advices left.
func assertFinalAdvices(actx *AssertionContext, trace []TraceEvent, assertion Assertion) error {
	target, ok := actx.Targets[assertion.Target]
	if !ok {
		return fmt.Errorf("final_advices: unknown target %q", assertion.Target)
	}

	actual := []string{}
	for _, advice := range actx.Engine.Advices(target.ref) {
		actual = append(actual, advice.ID())
	}

	expected := assertion.IDs
	if expected == nil {
		expected = []string{}
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		return &AssertionError{
			Type:     AssertFinalAdvices,
			Expected: fmt.Sprintf("chain %v on %s", expected, assertion.Target),
			Actual:   fmt.Sprintf("chain %v (-want +got):\n%s", actual, diff),
			Trace:    trace,
		}
	}

	return nil
}

// AssertionContext provides engine access for final-state assertions.
type AssertionContext struct {
	Engine  *aspect.Engine
	Targets map[string]*boundTarget
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for final_advices assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalAdvices:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: final_advices requires engine context", i)
			} else {
				err = assertFinalAdvices(actx, result.Trace, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
