package aspect

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/loom/joinpoint"
)

// WeaveOption configures Weave, Unweave and SetEnabled traversals.
type WeaveOption func(*weaveConfig)

type weaveConfig struct {
	pointcut   Pointcut
	depth      int
	publicOnly bool
	ttl        time.Duration
	only       []*Advice
}

func newWeaveConfig(opts []WeaveOption) weaveConfig {
	cfg := weaveConfig{pointcut: Always(), depth: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pointcut == nil {
		cfg.pointcut = Always()
	}
	return cfg
}

// WithPointcut restricts the traversal to candidates p matches. A nil p
// matches everything, as does omitting the option.
func WithPointcut(p Pointcut) WeaveOption {
	return func(c *weaveConfig) { c.pointcut = p }
}

// WithDepth sets how many container levels the traversal descends. The
// default 1 covers a container target's immediate members. Depth 0 reaches
// only a directly invocable target.
func WithDepth(depth int) WeaveOption {
	return func(c *weaveConfig) { c.depth = depth }
}

// PublicOnly keeps only members whose name starts with an upper-case
// letter. Unexported struct fields are never weavable in the first place
// (the runtime cannot swap them), so in practice this filters map keys.
func PublicOnly() WeaveOption {
	return func(c *weaveConfig) { c.publicOnly = true }
}

// WithTTL arms a one-shot timer on Weave that unweaves the woven advice
// when it expires. Unweave and SetEnabled ignore it.
func WithTTL(d time.Duration) WeaveOption {
	return func(c *weaveConfig) { c.ttl = d }
}

// WithAdvices restricts Unweave and SetEnabled to the given advice,
// matched by id. Without it they apply to the joinpoint's whole chain.
// Weave ignores it.
func WithAdvices(advices ...*Advice) WeaveOption {
	return func(c *weaveConfig) { c.only = advices }
}

func validAdvices(advices []*Advice) error {
	if len(advices) == 0 {
		return NewConfigError(ErrCodeEmptyAdvice, "weave needs at least one advice")
	}
	for i, a := range advices {
		if a == nil {
			return NewConfigError(ErrCodeEmptyAdvice, fmt.Sprintf("advice %d is nil", i))
		}
		if a.handler == nil {
			return NewConfigError(ErrCodeEmptyAdvice, fmt.Sprintf("advice %d (%s) has no handler", i, a.Name()))
		}
	}
	return nil
}

// candidateName names a direct target for pointcut matching. A bound slot
// holds the interceptor, not the function it was woven with, so the name
// recorded at bind time wins over what the slot's value looks like now.
// Member names coming out of the enumerator need none of this; field names
// and map keys do not change when the member is bound.
func (e *Engine) candidateName(target any) string {
	if name, ok := e.binder.Name(target); ok {
		return name
	}
	return joinpoint.NameOf(target)
}

// walk is the depth-first traversal behind Weave, Unweave and SetEnabled.
// An invocable reference is offered to the pointcut and, on a match, to
// visit. A container is descended into while depth lasts. Anything else is
// ignored. Pointcut and visit errors abort the traversal where it stands;
// references already visited stay visited.
func (e *Engine) walk(ref any, name string, depth int, cfg *weaveConfig, visit func(ref any, name string) error) error {
	if e.binder.Invocable(ref) {
		ok, err := cfg.pointcut.Match(Candidate{Name: name, Target: ref})
		if err != nil || !ok {
			return err
		}
		return visit(ref, name)
	}
	if depth <= 0 || !e.enum.Container(ref) {
		return nil
	}
	for _, m := range e.enum.Members(ref, cfg.publicOnly) {
		if err := e.walk(m.Target, m.Name, depth-1, cfg, visit); err != nil {
			return err
		}
	}
	return nil
}

// Weave applies advices to every invocable the traversal of target matches
// and returns the identities of the joinpoints reached. Advices are
// appended to each chain in the given order, after advice already present.
//
// Weaving is not transactional: on a pointcut or binding error the
// joinpoints woven before the failure stay woven, and the partial identity
// list is returned alongside the error.
//
// With WithTTL and at least one match, the returned Timer unweaves exactly
// these advices (same pointcut, depth and visibility) when it expires.
// Otherwise the Timer is nil.
func (e *Engine) Weave(target any, advices []*Advice, opts ...WeaveOption) ([]joinpoint.ID, *Timer, error) {
	if err := validAdvices(advices); err != nil {
		return nil, nil, err
	}
	cfg := newWeaveConfig(opts)
	var matched []joinpoint.ID
	err := e.walk(target, e.candidateName(target), cfg.depth, &cfg, func(ref any, name string) error {
		id, err := e.binder.Bind(ref, e.dispatch)
		if err != nil {
			return NewBindingError(name, err)
		}
		e.reg.add(id, advices)
		matched = append(matched, id)
		slog.Debug("advice woven",
			"joinpoint", id,
			"name", name,
			"advices", len(advices))
		return nil
	})
	if err != nil {
		return matched, nil, err
	}
	var timer *Timer
	if cfg.ttl > 0 && len(matched) > 0 {
		timer = e.scheduleUnweave(target, advices, cfg)
	}
	return matched, timer, nil
}

// Unweave removes advice from every joinpoint the traversal of target
// matches. With WithAdvices only those ids are removed; otherwise the whole
// chain goes. A joinpoint whose chain empties is unbound, restoring every
// reference to the original function. Unknown targets, unbound joinpoints
// and already-removed advice are silent no-ops, so Unweave is idempotent.
func (e *Engine) Unweave(target any, opts ...WeaveOption) error {
	cfg := newWeaveConfig(opts)
	return e.walk(target, e.candidateName(target), cfg.depth, &cfg, func(ref any, name string) error {
		id, ok := e.binder.Bound(ref)
		if !ok {
			return nil
		}
		if empty := e.reg.remove(id, cfg.only); !empty {
			return nil
		}
		if err := e.binder.Unbind(ref); err != nil {
			return NewBindingError(name, err)
		}
		slog.Debug("joinpoint unbound",
			"joinpoint", id,
			"name", name)
		return nil
	})
}

// SetEnabled toggles registered advice on every joinpoint the traversal of
// target matches, restricted by WithAdvices when given. Disabled advice
// keeps its chain slot; in-flight calls skip it from their next Proceed.
func (e *Engine) SetEnabled(target any, enabled bool, opts ...WeaveOption) error {
	cfg := newWeaveConfig(opts)
	only := idSet(cfg.only)
	return e.walk(target, e.candidateName(target), cfg.depth, &cfg, func(ref any, name string) error {
		id, ok := e.binder.Bound(ref)
		if !ok {
			return nil
		}
		for _, a := range e.reg.snapshot(id) {
			if only != nil {
				if _, keep := only[a.id]; !keep {
					continue
				}
			}
			a.SetEnabled(enabled)
		}
		return nil
	})
}

// Advices returns a snapshot of the chain bound to a directly invocable
// target, nil when the target is not bound. Mutating the snapshot does not
// affect the registry.
func (e *Engine) Advices(target any) []*Advice {
	id, ok := e.binder.Bound(target)
	if !ok {
		return nil
	}
	return e.reg.snapshot(id)
}

// idSet indexes advice by id; nil input stays nil, meaning "all".
func idSet(advices []*Advice) map[string]struct{} {
	if advices == nil {
		return nil
	}
	set := make(map[string]struct{}, len(advices))
	for _, a := range advices {
		if a != nil {
			set[a.id] = struct{}{}
		}
	}
	return set
}
