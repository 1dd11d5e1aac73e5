// Package index issues the integer identifiers that name active values on a
// tape.
//
// Two policies are provided:
//   - Linear: identifiers grow monotonically and are never handed out twice.
//     The manager is a stack level, so truncating a tape also rewinds the
//     identifier counter and invalidates everything issued afterwards.
//   - Reuse: released identifiers are recycled through a free list. Slots are
//     overwritten over time, so tapes using this policy must be able to
//     restore primal values when rewinding.
//
// Identifier 0 means "passive". Both policies reserve the first
// MaxArgumentSize identifiers for passive argument slots.
package index

import (
	"errors"

	"github.com/born-ml/adtape/internal/chunk"
	"github.com/born-ml/adtape/internal/stats"
)

// Identifier names one variable slot on a tape.
type Identifier int

// Passive is the identifier of values that do not depend on any input.
const Passive Identifier = 0

// MaxArgumentSize is the number of identifiers reserved for passive slots.
const MaxArgumentSize = 255

// ErrUnsupported is reported when an identifier policy or a statement cannot
// perform an operation. Other packages re-export it.
var ErrUnsupported = errors.New("operation not supported")

// Manager issues, recycles and releases identifiers.
type Manager interface {
	chunk.Level

	// AssignIndex gives id a valid identifier. It returns true when the
	// largest assigned identifier grew, i.e. identifier vectors may need
	// resizing.
	AssignIndex(id *Identifier) bool

	// AssignUnusedIndex gives id an identifier that was never handed out
	// before.
	AssignUnusedIndex(id *Identifier) bool

	// FreeIndex releases id and sets it to Passive.
	FreeIndex(id *Identifier)

	// CopyIndex lets dst share src without recording a statement. Only legal
	// when AssignNeedsStatement is false.
	CopyIndex(dst *Identifier, src Identifier)

	// LargestAssignedIndex returns the high-water mark.
	LargestAssignedIndex() Identifier

	// IsLinear reports whether identifiers are issued monotonically.
	IsLinear() bool

	// AssignNeedsStatement reports whether a plain copy must be recorded.
	AssignNeedsStatement() bool

	// Reset returns the manager to its initial state.
	Reset()

	// AddStats appends occupancy entries.
	AddStats(section *stats.Section)
}
