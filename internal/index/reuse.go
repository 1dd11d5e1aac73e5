package index

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/born-ml/adtape/internal/chunk"
	"github.com/born-ml/adtape/internal/stats"
)

// DefaultIncrement is the number of identifiers generated when the free
// lists run dry.
const DefaultIncrement = 1024

// Reuse recycles released identifiers.
//
// Two pools are kept: released identifiers (handed out first, most recently
// released on top) and never-issued identifiers generated in blocks.
type Reuse struct {
	reserve     Identifier
	largest     Identifier
	released    []Identifier
	unused      []Identifier // Descending, so the smallest is popped first
	increment   int
	sortOnReset bool
}

// NewReuse creates a reuse manager. Identifiers up to reserve are never
// issued.
func NewReuse(reserve Identifier, sortOnReset bool) *Reuse {
	return &Reuse{
		reserve:     reserve,
		largest:     reserve,
		increment:   DefaultIncrement,
		sortOnReset: sortOnReset,
	}
}

// AssignIndex keeps an already valid id, otherwise hands out a released or
// fresh identifier.
func (m *Reuse) AssignIndex(id *Identifier) bool {
	if *id != Passive {
		return false
	}
	if n := len(m.released); n > 0 {
		*id = m.released[n-1]
		m.released = m.released[:n-1]
		return false
	}
	return m.popUnused(id)
}

// AssignUnusedIndex releases id and hands out a never-issued identifier.
func (m *Reuse) AssignUnusedIndex(id *Identifier) bool {
	m.FreeIndex(id)
	return m.popUnused(id)
}

func (m *Reuse) popUnused(id *Identifier) bool {
	generated := false
	if len(m.unused) == 0 {
		m.generate()
		generated = true
	}
	n := len(m.unused)
	*id = m.unused[n-1]
	m.unused = m.unused[:n-1]
	return generated
}

func (m *Reuse) generate() {
	first := m.largest + 1
	m.largest += Identifier(m.increment)
	for i := m.largest; i >= first; i-- {
		m.unused = append(m.unused, i)
	}
}

// FreeIndex puts id on the released list.
func (m *Reuse) FreeIndex(id *Identifier) {
	if *id == Passive {
		return
	}
	m.released = append(m.released, *id)
	*id = Passive
}

// CopyIndex is not possible: two values may not share a recyclable slot.
func (m *Reuse) CopyIndex(dst *Identifier, src Identifier) {
	panic(fmt.Errorf("index: copy %d -> %d: %w", src, *dst, ErrUnsupported))
}

// LargestAssignedIndex returns the largest identifier ever generated.
func (m *Reuse) LargestAssignedIndex() Identifier {
	return m.largest
}

// IsLinear returns false.
func (m *Reuse) IsLinear() bool { return false }

// AssignNeedsStatement returns true.
func (m *Reuse) AssignNeedsStatement() bool { return true }

// Reset moves released identifiers back into the unused pool.
func (m *Reuse) Reset() {
	m.unused = append(m.unused, m.released...)
	m.released = m.released[:0]
	if m.sortOnReset {
		slices.Sort(m.unused)
		slices.Reverse(m.unused)
	}
}

// Cursor implements chunk.Level. Recycled identifiers carry no position.
func (m *Reuse) Cursor() chunk.Cursor { return chunk.Cursor{} }

// Start implements chunk.Level.
func (m *Reuse) Start() chunk.Cursor { return chunk.Cursor{} }

// Normalize implements chunk.Level.
func (m *Reuse) Normalize(c chunk.Cursor) chunk.Cursor { return c }

// ResetTo implements chunk.Level. Identifiers stay owned by their values.
func (m *Reuse) ResetTo(chunk.Cursor) {}

// Live returns the number of identifiers currently held by values.
func (m *Reuse) Live() int {
	return int(m.largest-m.reserve) - len(m.released) - len(m.unused)
}

// AddStats implements Manager.
func (m *Reuse) AddStats(section *stats.Section) {
	size := int(unsafe.Sizeof(Identifier(0)))
	stored := len(m.released) + len(m.unused)
	allocated := cap(m.released) + cap(m.unused)

	section.AddInt("Max. live indices", int(m.largest))
	section.AddInt("Cur. live indices", m.Live())
	section.AddInt("Indices stored", stored)
	section.AddMemory("Memory used", stored*size, false)
	section.AddMemory("Memory allocated", allocated*size, true)
}
