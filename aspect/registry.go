package aspect

import (
	"sync"

	"github.com/roach88/loom/joinpoint"
)

// registry maps bound joinpoints to their advice chains.
//
// Read-mostly: dispatch takes a snapshot under the read lock on every
// intercepted call, weave/unweave mutate under the write lock. An entry is
// deleted the moment its chain empties; the caller unbinds the joinpoint in
// the same breath so a bound joinpoint always has at least one advice.
type registry struct {
	mu      sync.RWMutex
	entries map[joinpoint.ID][]*Advice
}

func newRegistry() *registry {
	return &registry{entries: make(map[joinpoint.ID][]*Advice)}
}

// add appends advices to id's chain in the given order, after whatever is
// already registered. Duplicate advice appends duplicate chain slots.
func (r *registry) add(id joinpoint.ID, advices []*Advice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = append(r.entries[id], advices...)
}

// remove deletes advice from id's chain and reports whether the entry is now
// gone. A nil only clears the whole chain; otherwise every slot whose id
// matches an element of only is deleted, survivors keep their order. Unknown
// ids and unknown joinpoints are no-ops.
func (r *registry) remove(id joinpoint.ID, only []*Advice) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain, ok := r.entries[id]
	if !ok {
		return true
	}
	if only == nil {
		delete(r.entries, id)
		return true
	}
	drop := make(map[string]struct{}, len(only))
	for _, a := range only {
		if a != nil {
			drop[a.id] = struct{}{}
		}
	}
	kept := make([]*Advice, 0, len(chain))
	for _, a := range chain {
		if _, gone := drop[a.id]; !gone {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(r.entries, id)
		return true
	}
	r.entries[id] = kept
	return false
}

// snapshot returns a copy of id's chain, nil when the joinpoint is unknown.
// Mutating the copy never touches the registry.
func (r *registry) snapshot(id joinpoint.ID) []*Advice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.entries[id]
	if len(chain) == 0 {
		return nil
	}
	out := make([]*Advice, len(chain))
	copy(out, chain)
	return out
}
