package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces entity identifiers. The ledger engine takes one as a
// dependency so tests can inject a deterministic sequence.
type Generator interface {
	New() string
}

// ULID is the default Generator: lexicographically sortable identifiers
// suitable for storage keys.
type ULID struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULID returns a monotonic ULID generator seeded from the wall clock.
func NewULID() *ULID {
	return &ULID{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (g *ULID) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var defaultGen = NewULID()

// New returns an identifier from the package-level generator.
func New() string {
	return defaultGen.New()
}
