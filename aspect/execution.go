package aspect

import "github.com/roach88/loom/joinpoint"

// Execution threads one intercepted call through its advice chain.
//
// Each intercepted call gets a fresh Execution over a snapshot of the chain
// taken at dispatch; registry mutations made while the call is in flight
// affect later calls only. Executions are never reused and never shared
// between calls.
type Execution struct {
	call   *joinpoint.Call
	chain  []*Advice
	cursor int
	args   []any
	values map[string]any
}

func newExecution(call *joinpoint.Call, chain []*Advice) *Execution {
	return &Execution{call: call, chain: chain, args: call.Args}
}

// Proceed advances the chain by one position: it runs the next enabled
// advice, skipping disabled ones, and once the chain is exhausted it invokes
// the terminal callee with the current arguments.
//
// The cursor only moves forward. Calling Proceed again after exhaustion
// re-invokes the terminal callee, which is what a retrying advice wants:
//
//	retry := aspect.New(func(e *aspect.Execution) ([]any, error) {
//		results, err := e.Proceed()
//		if err != nil {
//			return e.Proceed()
//		}
//		return results, nil
//	})
//
// An advice that never calls Proceed short-circuits everything downstream,
// including the callee. Errors and panics from handlers and the callee
// propagate unchanged.
func (e *Execution) Proceed() ([]any, error) {
	for e.cursor < len(e.chain) {
		a := e.chain[e.cursor]
		e.cursor++
		if !a.Enabled() {
			continue
		}
		return a.handler(e)
	}
	return e.call.Invoke(e.args)
}

// Args returns a copy of the current call arguments. For variadic
// joinpoints the final element is the collected variadic slice.
func (e *Execution) Args() []any {
	out := make([]any, len(e.args))
	copy(out, e.args)
	return out
}

// SetArgs replaces the arguments seen by the rest of the chain and by the
// terminal callee. The slice is copied.
func (e *Execution) SetArgs(args []any) {
	e.args = make([]any, len(args))
	copy(e.args, args)
}

// Set stashes a value on the execution for advice further down the chain.
func (e *Execution) Set(key string, v any) {
	if e.values == nil {
		e.values = make(map[string]any)
	}
	e.values[key] = v
}

// Value reads back a stashed value.
func (e *Execution) Value(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Joinpoint returns the identity of the intercepted code.
func (e *Execution) Joinpoint() joinpoint.ID {
	return e.call.Joinpoint
}

// Callee returns the terminal callee's name, "" when none is derivable.
func (e *Execution) Callee() string {
	return e.call.Name
}
