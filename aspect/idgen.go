package aspect

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints advice ids. New consults the package default when no
// WithID is given; tests swap in deterministic generators.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-ordered UUIDs: ids minted later sort later, so
// a chain listed by id reads in creation order without a separate counter.
type UUIDv7Generator struct{}

// Generate returns a fresh UUIDv7 in hyphenated form. It panics only when
// the platform's random source fails.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a predetermined id sequence, one id per Generate
// call, for tests whose traces name advice ids. Minting past the end of the
// sequence panics: a test that creates more advice than it declared ids for
// is misconfigured, and a recycled id would corrupt chain bookkeeping.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in the given order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id of the sequence. Safe for concurrent use.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// defaultIDs mints ids for advice created without WithID.
var defaultIDs IDGenerator = UUIDv7Generator{}
