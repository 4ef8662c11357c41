package aspect

import (
	"reflect"

	"github.com/roach88/loom/joinpoint"
)

// Engine owns an advice registry and the binding machinery behind it.
//
// All operations are synchronous on the caller. Separate engines are fully
// isolated: they share no registry, no bindings, no timers.
type Engine struct {
	binder joinpoint.Binder
	enum   joinpoint.Enumerator
	reg    *registry
}

// EngineOption configures NewEngine.
type EngineOption func(*Engine)

// WithBinder replaces the default reflection binder.
func WithBinder(b joinpoint.Binder) EngineOption {
	return func(e *Engine) { e.binder = b }
}

// WithEnumerator replaces the default container traversal strategy.
func WithEnumerator(en joinpoint.Enumerator) EngineOption {
	return func(e *Engine) { e.enum = en }
}

// NewEngine creates an engine with an empty registry.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		binder: joinpoint.NewBinder(),
		enum:   joinpoint.NewEnumerator(),
		reg:    newRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// dispatch routes one intercepted call through the joinpoint's chain. The
// chain is snapshotted here, so the call sees a frozen chain no matter what
// weaves or unweaves land while it runs. An empty snapshot (the chain was
// cleared between interception and dispatch) invokes the callee directly.
func (e *Engine) dispatch(c *joinpoint.Call) ([]any, error) {
	chain := e.reg.snapshot(c.Joinpoint)
	if len(chain) == 0 {
		return c.Invoke(c.Args)
	}
	return newExecution(c, chain).Proceed()
}

// defaultEngine backs the package-level API. Callers who need an isolated
// registry construct their own Engine.
var defaultEngine = NewEngine()

// Weave applies advices to target on the default engine. See Engine.Weave.
func Weave(target any, advices []*Advice, opts ...WeaveOption) ([]joinpoint.ID, *Timer, error) {
	return defaultEngine.Weave(target, advices, opts...)
}

// Unweave removes advice from target on the default engine. See
// Engine.Unweave.
func Unweave(target any, opts ...WeaveOption) error {
	return defaultEngine.Unweave(target, opts...)
}

// SetEnabled toggles advice on target on the default engine. See
// Engine.SetEnabled.
func SetEnabled(target any, enabled bool, opts ...WeaveOption) error {
	return defaultEngine.SetEnabled(target, enabled, opts...)
}

// Advices returns the default engine's chain snapshot for target. See
// Engine.Advices.
func Advices(target any) []*Advice {
	return defaultEngine.Advices(target)
}

// Woven wraps fn in the given advice on the default engine and returns the
// woven function. It is the declaration-site form of Weave:
//
//	var Parse = aspect.Must(aspect.Woven(parse, timing))
//
// The interception point is a slot owned by the engine; fn itself is
// untouched. The joinpoint keeps fn's identity, so Unweave(&fn) (or any
// reference still holding fn) tears the weave down again.
func Woven[F any](fn F, advices ...*Advice) (F, error) {
	t := reflect.TypeOf((*F)(nil)).Elem()
	if t.Kind() != reflect.Func {
		return fn, NewBindingError(joinpoint.NameOf(fn), joinpoint.ErrNotBindable)
	}
	slot := reflect.New(t)
	slot.Elem().Set(reflect.ValueOf(fn))
	if _, _, err := defaultEngine.Weave(slot.Interface(), advices); err != nil {
		return fn, err
	}
	return slot.Elem().Interface().(F), nil
}

// Must panics on err and returns v otherwise. It exists for package-level
// Woven declarations, where there is nowhere to return an error to.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
