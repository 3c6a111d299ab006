// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"strconv"
	"sync"
)

// SequenceRunIDs hands out run ids "<prefix>-1", "<prefix>-2", and so on.
//
// Unlike engine.FixedGenerator it never runs out, and Reset restarts the
// sequence so the same scenario can run again with identical ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequenceRunIDs creates a generator. An empty prefix becomes "run".
func NewSequenceRunIDs(prefix string) *SequenceRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequenceRunIDs{prefix: prefix}
}

// Generate returns the next id. Implements engine.RunIDGenerator.
func (g *SequenceRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.FormatInt(g.n, 10)
}

// Issued returns how many ids have been handed out since the last Reset.
func (g *SequenceRunIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts the sequence. The next Generate returns "<prefix>-1".
func (g *SequenceRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
