package aspect

import (
	"log/slog"
	"sync"
	"time"
)

// Timer is the handle for a pending TTL unweave.
//
// Exactly one of two things happens: the timer fires and runs the captured
// unweave, or Cancel wins and nothing is removed. The race is settled under
// the timer's lock; once the expiry callback has started, Cancel loses.
type Timer struct {
	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
	firing   bool
	fired    chan struct{}
}

// scheduleUnweave arms a one-shot timer that removes exactly the advice a
// weave installed, replaying the weave's own traversal options against the
// same target.
func (e *Engine) scheduleUnweave(target any, advices []*Advice, cfg weaveConfig) *Timer {
	opts := []WeaveOption{
		WithPointcut(cfg.pointcut),
		WithDepth(cfg.depth),
		WithAdvices(advices...),
	}
	if cfg.publicOnly {
		opts = append(opts, PublicOnly())
	}
	t := &Timer{fired: make(chan struct{})}
	t.timer = time.AfterFunc(cfg.ttl, func() {
		t.mu.Lock()
		if t.canceled {
			t.mu.Unlock()
			return
		}
		t.firing = true
		t.mu.Unlock()
		if err := e.Unweave(target, opts...); err != nil {
			slog.Error("ttl unweave failed",
				"name", e.candidateName(target),
				"error", err)
		}
		close(t.fired)
	})
	return t
}

// Cancel stops the pending unweave and reports whether it won: false when
// the expiry already started (the advice is gone or going) or the timer was
// already canceled. After a true Cancel the woven advice stays until an
// explicit Unweave.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled || t.firing {
		return false
	}
	t.canceled = true
	t.timer.Stop()
	return true
}

// Fired returns a channel that is closed once the expiry unweave has
// completed, errors included. It never closes for a canceled timer. Tests
// use it to await expiry without sleeping.
func (t *Timer) Fired() <-chan struct{} {
	return t.fired
}
