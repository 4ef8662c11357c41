package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator hands out advice ids in a fixed sequence:
// "prefix-0001", "prefix-0002", and so on.
//
// Golden trace files embed advice ids; production UUIDv7 ids would change
// on every run. Scenarios that omit explicit ids get sequential ones
// instead, so the same scenario always produces the same trace.
//
// Implements the aspect package's IDGenerator interface.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator with the given prefix.
//
// An empty prefix defaults to "adv".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "adv"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence. The next Generate() returns "prefix-0001".
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
