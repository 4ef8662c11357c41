package joinpoint

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// ID identifies the function value behind a joinpoint.
//
// The token is derived from the original function value, so references
// holding copies of that value resolve to the same ID and therefore to the
// same advice chain. Distinct closures are distinct values, and thus
// distinct joinpoints, even when they come from one literal. An ID is only
// meaningful while the binder that issued it still tracks the binding.
type ID uintptr

// String renders the ID in hex for logs and error details.
func (id ID) String() string {
	return fmt.Sprintf("0x%x", uintptr(id))
}

// ErrNotBindable reports a target the binder cannot intercept. Callers can
// test for it with errors.Is regardless of the wrapping added on top.
var ErrNotBindable = errors.New("target is not bindable")

// Call carries one intercepted invocation into the advice chain.
//
// Args holds the boxed call arguments; for variadic joinpoints the final
// element is the collected variadic slice. The terminal callee stays
// reachable through Invoke so the chain can finish (or replay) the call.
type Call struct {
	Joinpoint ID
	Name      string
	Args      []any

	invoke func(args []any) ([]any, error)
}

// NewCall assembles a Call for dispatch. Binder implementations use it when
// routing an intercepted invocation; invoke must run the original callee.
func NewCall(id ID, name string, args []any, invoke func(args []any) ([]any, error)) *Call {
	return &Call{Joinpoint: id, Name: name, Args: args, invoke: invoke}
}

// Invoke runs the original callee with args. The declared trailing error
// return, when present, arrives on the error path rather than in the result
// slice.
func (c *Call) Invoke(args []any) ([]any, error) {
	return c.invoke(args)
}

// Dispatcher routes an intercepted call into an advice chain and returns the
// results to hand back to the intercepted signature.
type Dispatcher func(c *Call) ([]any, error)

// Binder installs and removes call interception. Implementations must be
// idempotent: binding an already-bound reference returns the existing ID,
// and unbinding something unknown is a no-op.
//
// References are resolved to their underlying joinpoint, so distinct
// references holding copies of one function value share one identity.
type Binder interface {
	// Bind intercepts target, routing future calls through dispatch.
	Bind(target any, dispatch Dispatcher) (ID, error)
	// Unbind restores every reference of the joinpoint target denotes.
	Unbind(target any) error
	// Bound reports whether target denotes a bound joinpoint, and which.
	Bound(target any) (ID, bool)
	// Name reports the name recorded at bind time for a bound target.
	// Unbound targets report false; NameOf covers those.
	Name(target any) (string, bool)
	// Invocable reports whether target refers to a callable at all.
	Invocable(target any) bool
}

// Member is one weavable member discovered inside a container.
type Member struct {
	Name   string
	Target any
}

// Enumerator lists the invocable and container members of a target. It is
// the pluggable reflection strategy consumed by the weaving traversal.
type Enumerator interface {
	Container(target any) bool
	Members(target any, publicOnly bool) []Member
}

// NameOf returns the best-known name for a target: the member key for map
// entries, the declared function name for funcs and pointers to funcs, and
// "" when no name is derivable.
func NameOf(target any) string {
	switch t := target.(type) {
	case nil:
		return ""
	case *Entry:
		return t.key
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Func {
		v = v.Elem()
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		return ""
	}
	return baseName(fn.Name())
}

// baseName strips the package path and receiver qualifiers from a
// runtime-qualified function name. Method values carry a "-fm" suffix.
func baseName(qualified string) string {
	name := qualified
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// Invoke calls fn (a func value or pointer to one) with boxed arguments.
// Results are returned the way Call.Invoke returns them: the declared
// trailing error travels on the error path. Arguments are converted to the
// parameter types when necessary; an incompatible argument panics.
func Invoke(fn any, args ...any) ([]any, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Func {
		v = v.Elem()
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrNotBindable, fn)
	}
	return invokeFunc(v, args)
}
