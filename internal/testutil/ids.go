package testutil

import "sync"

// FixedIDGenerator generates the same request id every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same FixedIDGenerator produces byte-identical
// log lines.
//
// Unlike SequenceIDGenerator, this generator always returns the same id.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed request id generator.
//
// If id is empty, Generate() returns "test-request-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-request-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements summary.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequenceIDGenerator returns predetermined request ids in order, for
// tests that tell requests apart in logs.
//
// Thread-safety: SequenceIDGenerator is safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceIDGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewSequenceIDGenerator("req-1", "req-2")
//	gen.Generate() // "req-1"
//	gen.Generate() // "req-2"
//	gen.Generate() // panic: all ids exhausted
func NewSequenceIDGenerator(ids ...string) *SequenceIDGenerator {
	return &SequenceIDGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed. A test that runs more requests
// than it scripted is misconfigured.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
