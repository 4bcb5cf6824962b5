package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// DisplayIDGenerator produces short human-facing order codes: prefix, the last six
// digits of the unix millisecond clock and a three digit random suffix.
// Codes are not guaranteed unique; the repository regenerates on collision.
type DisplayIDGenerator struct {
	prefix string
	now    func() time.Time
	intn   func(n int) int
}

// NewDisplayIDGenerator builds a generator using the wall clock and math/rand.
func NewDisplayIDGenerator(prefix string) *DisplayIDGenerator {
	return &DisplayIDGenerator{prefix: prefix, now: time.Now, intn: rand.IntN}
}

// Next returns a fresh candidate code.
func (g *DisplayIDGenerator) Next() string {
	ms := g.now().UnixMilli() % 1_000_000
	return fmt.Sprintf("%s%06d%03d", g.prefix, ms, g.intn(1000))
}
