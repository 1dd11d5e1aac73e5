// Package tape records statements on active values and replays them to
// compute derivatives.
//
// Usage:
//
//	t := tape.New(tape.DefaultConfig())
//	x, y := expr.NewReal(2), expr.NewReal(3)
//	t.StartRecording()
//	t.RegisterInput(x)
//	t.RegisterInput(y)
//	z := expr.NewReal(0)
//	t.Assign(z, expr.Mul(x, expr.Sin(y)))
//	t.RegisterOutput(z)
//	t.StopRecording()
//
//	t.SetGradient(z.Identifier(), 1)
//	t.Evaluate()
//	dx := t.Gradient(x.Identifier())
//
// A tape is not safe for concurrent use. Independent tapes may be used from
// different goroutines.
package tape

import (
	"log/slog"

	"github.com/born-ml/adtape/internal/chunk"
	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
	"github.com/google/uuid"
)

// Position is a snapshot of the tape's write cursor.
type Position = chunk.Position

// Stack levels, outermost first.
const (
	levelIndex = iota
	levelStatements
	levelIdentifiers
	levelPassives
	levelConstants
)

// inputTag in the passive count marks the statement of a registered input.
const inputTag = index.MaxArgumentSize

type statement struct {
	lhs       index.Identifier
	passives  uint8
	oldPrimal float64 // Value of the lhs slot before the statement
	handle    *expr.Handle
}

// Tape is a recording of statements together with the adjoint and primal
// vectors indexed by identifier.
type Tape struct {
	cfg       Config
	id        uuid.UUID
	logger    *slog.Logger
	recording bool

	index       index.Manager
	statements  *chunk.Store[statement]
	identifiers *chunk.Store[index.Identifier]
	passives    *chunk.Store[float64]
	constants   *chunk.Store[float64]
	stack       *chunk.Stack

	adjoints   Scalar
	primals    []float64
	primalCopy []float64

	compiler expr.Compiler
	scratch  expr.Scratch
	args     []float64
	lhs      []float64
}

// New creates a tape that is not recording.
func New(cfg Config, opts ...Option) *Tape {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	t := &Tape{
		cfg:    cfg,
		id:     uuid.New(),
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if cfg.Policy == Reuse {
		t.index = index.NewReuse(index.MaxArgumentSize, cfg.SortIndicesOnReset)
	} else {
		t.index = index.NewLinear(index.MaxArgumentSize)
	}
	t.statements = chunk.NewStore[statement](cfg.ChunkSize)
	t.identifiers = chunk.NewStore[index.Identifier](cfg.ChunkSize)
	t.passives = chunk.NewStore[float64](cfg.ChunkSize)
	t.constants = chunk.NewStore[float64](cfg.ChunkSize)
	t.stack = chunk.NewStack(levelStatements,
		t.index, t.statements, t.identifiers, t.passives, t.constants)
	t.primals = make([]float64, index.MaxArgumentSize+1)
	return t
}

// ID returns the tape identity used in statistics and logs.
func (t *Tape) ID() uuid.UUID { return t.id }

// Logger returns the logger the tape reports to.
func (t *Tape) Logger() *slog.Logger { return t.logger }

// Config returns the flags the tape was created with.
func (t *Tape) Config() Config { return t.cfg }

// StartRecording makes assignments record statements.
func (t *Tape) StartRecording() { t.recording = true }

// StopRecording makes assignments plain value copies.
func (t *Tape) StopRecording() { t.recording = false }

// IsRecording reports whether statements are recorded.
func (t *Tape) IsRecording() bool { return t.recording }

// Position returns the current write position.
func (t *Tape) Position() Position { return t.stack.Position() }

// Start returns the position of an empty tape.
func (t *Tape) Start() Position { return t.stack.Start() }

// Assign records lhs = rhs and sets the value of lhs.
//
// If rhs has no active leaf, no statement is recorded and lhs becomes
// passive. A plain copy of another value shares its identifier when the
// policy allows it and AssignOptimization is set.
func (t *Tape) Assign(lhs *expr.Real, rhs expr.Expr) {
	if src, ok := rhs.(*expr.Real); ok {
		t.copy(lhs, src)
		return
	}
	t.store(lhs, rhs)
}

// AssignValue sets lhs to a passive value.
func (t *Tape) AssignValue(lhs *expr.Real, v float64) {
	t.release(lhs)
	lhs.SetValue(v)
}

func (t *Tape) copy(lhs, src *expr.Real) {
	if lhs == src {
		return
	}
	if t.recording && t.cfg.AssignOptimization && !t.index.AssignNeedsStatement() {
		id := lhs.Identifier()
		t.index.CopyIndex(&id, src.Identifier())
		lhs.SetIdentifier(id)
		lhs.SetValue(src.Value())
		return
	}
	t.store(lhs, src)
}

func (t *Tape) store(lhs *expr.Real, rhs expr.Expr) {
	value := rhs.Value()
	if !t.recording {
		t.release(lhs)
		lhs.SetValue(value)
		return
	}

	h, err := t.compiler.Compile(rhs)
	if err != nil {
		fail("Assign", err)
	}
	leaves := t.compiler.Leaves
	active := 0
	for _, l := range leaves {
		if l.IsActive() {
			active++
		}
	}
	if active == 0 {
		t.release(lhs)
		lhs.SetValue(value)
		return
	}

	nargs := h.NumArguments()
	t.statements.Reserve(1)
	t.identifiers.Reserve(nargs)
	t.passives.Reserve(nargs - active)
	t.constants.Reserve(h.NumConstants())

	passive := 0
	for _, l := range leaves {
		if id := l.Identifier(); id != index.Passive {
			t.identifiers.Push(id)
			continue
		}
		t.identifiers.Push(index.Identifier(passive))
		t.passives.Push(l.Value())
		passive++
	}
	for _, c := range t.compiler.Constants {
		t.constants.Push(c)
	}

	id := lhs.Identifier()
	t.pushStatement(&id, value, uint8(passive), h)
	lhs.SetIdentifier(id)
	lhs.SetValue(value)
}

func (t *Tape) pushStatement(id *index.Identifier, value float64, passives uint8, h *expr.Handle) {
	if t.index.AssignIndex(id) {
		t.checkPrimalSize()
	}
	old := t.primals[*id]
	t.primals[*id] = value
	t.statements.Push(statement{lhs: *id, passives: passives, oldPrimal: old, handle: h})
}

func (t *Tape) checkPrimalSize() {
	if n := int(t.index.LargestAssignedIndex()) + 1; n > len(t.primals) {
		t.primals = grow(t.primals, n)
	}
}

func (t *Tape) release(v *expr.Real) {
	id := v.Identifier()
	t.index.FreeIndex(&id)
	v.SetIdentifier(id)
}

// RegisterInput gives v a fresh identifier and records its value. Under the
// linear policy an input statement marks the creation point.
func (t *Tape) RegisterInput(v *expr.Real) {
	t.registerInput(v)
}

// RegisterExternalFunctionOutput activates the output of code that ran
// outside the tape and returns the previous primal value of its slot. The
// output always gets a fresh identifier, so it never shares an adjoint with
// an input of the external function.
func (t *Tape) RegisterExternalFunctionOutput(v *expr.Real) float64 {
	return t.registerInput(v)
}

func (t *Tape) registerInput(v *expr.Real) float64 {
	linear := t.index.IsLinear()
	if linear {
		t.statements.Reserve(1)
	}

	id := v.Identifier()
	if t.index.AssignUnusedIndex(&id) {
		t.checkPrimalSize()
	}

	old := t.primals[id]
	if linear {
		t.statements.Push(statement{lhs: id, passives: inputTag, oldPrimal: old, handle: expr.InputHandle})
	}
	t.primals[id] = v.Value()
	v.SetIdentifier(id)
	return old
}

// RegisterOutput records an identity statement for v so that the output has
// an identifier of its own. It does nothing for passive values or when the
// tape is not recording.
func (t *Tape) RegisterOutput(v *expr.Real) {
	if !t.recording {
		return
	}
	t.store(v, v)
}

// DeactivateValue releases the identifier of v. The value is kept.
func (t *Tape) DeactivateValue(v *expr.Real) {
	t.release(v)
}

// IsIdentifierActive reports whether id names a tape slot.
func (t *Tape) IsIdentifierActive(id index.Identifier) bool {
	return id != index.Passive
}

// StoreManual pushes a Jacobian statement with size arguments for the slot
// *lhs, assigning it an identifier if needed. The arguments follow through
// PushJacobianManual.
func (t *Tape) StoreManual(value float64, lhs *index.Identifier, size int) {
	h := expr.JacobianHandle(size)
	t.statements.Reserve(1)
	t.identifiers.Reserve(size)
	t.constants.Reserve(size)
	t.pushStatement(lhs, value, 0, h)
}

// PushJacobianManual adds one argument to the statement started by
// StoreManual.
func (t *Tape) PushJacobianManual(jacobian float64, id index.Identifier) {
	t.identifiers.Push(id)
	t.constants.Push(jacobian)
}

// ResetTo discards everything recorded after pos. The primal values of the
// discarded statements are restored newest first and their adjoints are
// cleared.
func (t *Tape) ResetTo(pos Position) {
	cur := t.Position()
	if pos.Compare(cur) > 0 {
		fail("ResetTo", ErrInvalidRange)
	}
	w := t.stack.Reverse(cur, pos)
	for w.Next() {
		st := t.statements.Backward(w.Cursor(levelStatements), 1)[0]
		t.primals[st.lhs] = st.oldPrimal
		if int(st.lhs) < len(t.adjoints.Values) {
			t.adjoints.Values[st.lhs] = 0
		}
	}
	t.stack.ResetTo(pos)
}

// Reset discards the whole recording, zeroes the primal vector and resets
// the identifier manager. Adjoints are cleared if clearAdjoints is set.
func (t *Tape) Reset(clearAdjoints bool) {
	t.logger.Debug("tape reset",
		"tape", t.id,
		"statements", t.statements.Size(),
		"largest_identifier", t.index.LargestAssignedIndex())

	if clearAdjoints {
		t.ClearAdjoints()
	}
	clear(t.primals)
	t.statements.Reset()
	t.identifiers.Reset()
	t.passives.Reset()
	t.constants.Reset()
	t.index.Reset()
}

// Gradient returns the adjoint (or tangent) of id.
func (t *Tape) Gradient(id index.Identifier) float64 {
	if id == index.Passive || int(id) >= len(t.adjoints.Values) {
		return 0
	}
	return t.adjoints.Values[id]
}

// SetGradient sets the adjoint (or tangent) of id. Passive identifiers are
// ignored.
func (t *Tape) SetGradient(id index.Identifier, g float64) {
	if id == index.Passive {
		return
	}
	t.adjoints.Resize(int(id) + 1)
	t.adjoints.Values[id] = g
}

// Primal returns the primal value stored for id.
func (t *Tape) Primal(id index.Identifier) float64 {
	if int(id) >= len(t.primals) {
		return 0
	}
	return t.primals[id]
}

// SetPrimal overwrites the primal value stored for id.
func (t *Tape) SetPrimal(id index.Identifier, v float64) {
	t.primals = grow(t.primals, int(id)+1)
	t.primals[id] = v
}

// ClearAdjoints zeroes the adjoint vector.
func (t *Tape) ClearAdjoints() {
	clear(t.adjoints.Values)
}

// ClearAdjointsRange zeroes the adjoints of every statement output between
// start and end, with start at or after end.
func (t *Tape) ClearAdjointsRange(start, end Position) {
	checkRange("ClearAdjointsRange", end, start)
	w := t.stack.Reverse(start, end)
	for w.Next() {
		st := t.statements.Backward(w.Cursor(levelStatements), 1)[0]
		if int(st.lhs) < len(t.adjoints.Values) {
			t.adjoints.Values[st.lhs] = 0
		}
	}
}

// DeleteAdjointVector releases the adjoint vector. It is recreated on the
// next evaluation.
func (t *Tape) DeleteAdjointVector() {
	t.adjoints.Values = nil
}
