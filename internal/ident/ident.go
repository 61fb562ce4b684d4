// Package ident generates record identifiers.
//
// Identifiers are UUIDv7 strings: a 48-bit millisecond timestamp followed by
// 74 random bits. They sort by creation time and make same-millisecond
// collisions practically impossible. No uniqueness check is made against
// stored records. Callers must treat identifiers as opaque.
package ident

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces new record identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 identifiers.
//
// Thread-safety: stateless; uuid.NewV7 serializes its own clock sequence.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7, e.g.
// "01902a8e-5c4b-7d2e-9f10-3b6a2c1d4e5f".
//
// Panics if the system entropy source fails, which never happens in practice.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewID returns a fresh identifier from the default generator.
func NewID() string {
	return UUIDv7Generator{}.Generate()
}

// FixedGenerator returns predetermined identifiers, for tests.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that hands out ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. It panics once all ids are used so that a
// test creating more records than it planned for fails loudly.
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
