package index

import (
	"github.com/born-ml/adtape/internal/chunk"
	"github.com/born-ml/adtape/internal/stats"
)

// Linear issues identifiers in creation order and never reuses them.
type Linear struct {
	reserve Identifier
	count   Identifier
}

// NewLinear creates a linear manager whose first identifier is reserve+1.
func NewLinear(reserve Identifier) *Linear {
	return &Linear{reserve: reserve, count: reserve}
}

// AssignIndex always issues a fresh identifier.
func (m *Linear) AssignIndex(id *Identifier) bool {
	m.count++
	*id = m.count
	return true
}

// AssignUnusedIndex is AssignIndex; every identifier is unused.
func (m *Linear) AssignUnusedIndex(id *Identifier) bool {
	return m.AssignIndex(id)
}

// FreeIndex only marks id passive. Identifiers go away with truncation.
func (m *Linear) FreeIndex(id *Identifier) {
	*id = Passive
}

// CopyIndex shares src with dst.
func (m *Linear) CopyIndex(dst *Identifier, src Identifier) {
	*dst = src
}

// LargestAssignedIndex returns the last issued identifier.
func (m *Linear) LargestAssignedIndex() Identifier {
	return m.count
}

// IsLinear returns true.
func (m *Linear) IsLinear() bool { return true }

// AssignNeedsStatement returns false: copies share identifiers.
func (m *Linear) AssignNeedsStatement() bool { return false }

// Reset rewinds the counter to the reserve.
func (m *Linear) Reset() {
	m.count = m.reserve
}

// Cursor implements chunk.Level.
func (m *Linear) Cursor() chunk.Cursor {
	return chunk.Cursor{Data: int(m.count)}
}

// Start implements chunk.Level.
func (m *Linear) Start() chunk.Cursor {
	return chunk.Cursor{Data: int(m.reserve)}
}

// Normalize implements chunk.Level.
func (m *Linear) Normalize(c chunk.Cursor) chunk.Cursor {
	return c
}

// ResetTo rewinds the counter, invalidating later identifiers.
func (m *Linear) ResetTo(c chunk.Cursor) {
	m.count = Identifier(c.Data)
}

// AddStats implements Manager.
func (m *Linear) AddStats(section *stats.Section) {
	section.AddInt("Max. live indices", int(m.count))
}
