package event

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator produces sortable, 26-character, collision-resistant
// event ids: ordering is wall time at generation, with ties broken by
// a random suffix (the ULID monotonic entropy source already does
// this). The entropy source is always crypto/rand; there is no way to
// substitute another one.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator creates a generator seeded from crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NextID returns the next sortable event id.
func (g *IDGenerator) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}

// defaultGenerator backs the package-level NewID convenience function.
var defaultGenerator = NewIDGenerator()

// NewID returns the next id from the process-wide generator. Callers
// that hold their own *IDGenerator (the executor does) get the same
// kind of ids from a separate monotonic sequence.
func NewID() string {
	return defaultGenerator.NextID()
}
