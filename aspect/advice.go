package aspect

import "sync/atomic"

// Handler is the user function run at an advice's position in the chain.
//
// It receives the per-call Execution and returns the call's results. The
// usual shape forwards the call and decorates the outcome:
//
//	double := aspect.New(func(e *aspect.Execution) ([]any, error) {
//		results, err := e.Proceed()
//		if err != nil {
//			return nil, err
//		}
//		results[0] = results[0].(int) * 2
//		return results, nil
//	})
//
// A handler that never calls Proceed short-circuits the rest of the chain
// and the callee. The joinpoint's declared trailing error return travels on
// the error path, never inside the result slice.
type Handler func(e *Execution) ([]any, error)

// Advice wraps a Handler with a stable identity and an enable switch.
//
// Equality is defined by id alone: two Advice values with the same id are
// the same advice. A disabled advice keeps its slot in the chain; the chain
// proceeds past it without running the handler.
type Advice struct {
	id      string
	name    string
	handler Handler
	enabled atomic.Bool
}

// AdviceOption configures New.
type AdviceOption func(*Advice)

// WithID fixes the advice id instead of generating one.
func WithID(id string) AdviceOption {
	return func(a *Advice) { a.id = id }
}

// WithName attaches a diagnostic label. It plays no part in identity.
func WithName(name string) AdviceOption {
	return func(a *Advice) { a.name = name }
}

// Disabled creates the advice switched off until SetEnabled(true).
func Disabled() AdviceOption {
	return func(a *Advice) { a.enabled.Store(false) }
}

// New wraps handler into an enabled Advice with a generated UUIDv7 id.
func New(handler Handler, opts ...AdviceOption) *Advice {
	a := &Advice{handler: handler}
	a.enabled.Store(true)
	for _, opt := range opts {
		opt(a)
	}
	if a.id == "" {
		a.id = defaultIDs.Generate()
	}
	return a
}

// ID returns the stable advice id.
func (a *Advice) ID() string {
	return a.id
}

// Name returns the diagnostic label, falling back to the id.
func (a *Advice) Name() string {
	if a.name != "" {
		return a.name
	}
	return a.id
}

// Enabled reports whether the handler currently runs.
func (a *Advice) Enabled() bool {
	return a.enabled.Load()
}

// SetEnabled flips the enable switch. Safe while calls are in flight: the
// switch is read when the chain reaches the advice's slot.
func (a *Advice) SetEnabled(v bool) {
	a.enabled.Store(v)
}

// Equal reports advice identity. Only ids are compared.
func (a *Advice) Equal(b *Advice) bool {
	return b != nil && a.id == b.id
}
