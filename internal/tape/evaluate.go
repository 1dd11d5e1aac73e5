package tape

import (
	"fmt"
	"math"

	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
)

// Evaluate runs a reverse sweep over the whole recording.
func (t *Tape) Evaluate() {
	t.EvaluateRange(t.Position(), t.Start())
}

// EvaluateRange runs a reverse sweep from start back to end.
func (t *Tape) EvaluateRange(start, end Position) {
	t.EvaluateWith(start, end, &t.adjoints)
}

// EvaluateWith runs a reverse sweep from start back to end on a caller
// supplied adjoint vector.
//
// Under the reuse policy the sweep works on a copy of the primal vector, so
// the tape's primal values stay at their current state.
func (t *Tape) EvaluateWith(start, end Position, v VectorAccess) {
	checkRange("Evaluate", end, start)
	t.resizeVector(v)

	primals := t.primals
	mode := primalsFixed
	if !t.index.IsLinear() {
		mode = primalsRestore
		primals = t.copyPrimals()
		t.restorePrimals(primals, t.Position(), start)
	}
	t.reverse(start, end, primals, v, mode)
}

// EvaluateKeepState runs a reverse sweep on the tape's own primal vector
// without copying it. The primal vector must be in the state of start.
//
// Under the reuse policy the sweep rewinds the vector to end and then replays
// it forward, so it is back in the state of start afterwards.
func (t *Tape) EvaluateKeepState(start, end Position) {
	checkRange("EvaluateKeepState", end, start)
	t.resizeVector(&t.adjoints)
	if t.index.IsLinear() {
		t.reverse(start, end, t.primals, &t.adjoints, primalsFixed)
		return
	}
	t.reverse(start, end, t.primals, &t.adjoints, primalsSwap)
	t.replayPrimals(end, start)
}

// EvaluateForward runs a forward (tangent) sweep from start to end.
func (t *Tape) EvaluateForward(start, end Position) {
	t.EvaluateForwardWith(start, end, &t.adjoints)
}

// EvaluateForwardWith runs a forward sweep on a caller supplied tangent
// vector.
func (t *Tape) EvaluateForwardWith(start, end Position, v VectorAccess) {
	const op = "EvaluateForward"
	checkRange(op, start, end)
	t.resizeVector(v)

	primals := t.primals
	update := !t.index.IsLinear()
	if update {
		primals = t.copyPrimals()
		t.restorePrimals(primals, t.Position(), start)
	}
	t.forward(op, start, end, primals, v, update)
}

// EvaluateForwardKeepState runs a forward sweep that updates the tape's own
// primal vector. The primal vector must be in the state of start and is
// left in the state of end.
func (t *Tape) EvaluateForwardKeepState(start, end Position) {
	const op = "EvaluateForwardKeepState"
	checkRange(op, start, end)
	t.resizeVector(&t.adjoints)
	t.forward(op, start, end, t.primals, &t.adjoints, !t.index.IsLinear())
}

// EvaluatePrimal recomputes the primal values of the statements between
// start and end in place. Inputs changed with SetPrimal propagate to every
// dependent statement.
//
// Under the reuse policy the primal vector is first rewound from the current
// position to start, and each statement's stored prior value is refreshed.
func (t *Tape) EvaluatePrimal(start, end Position) {
	const op = "EvaluatePrimal"
	checkRange(op, start, end)

	reuse := !t.index.IsLinear()
	if reuse {
		t.restorePrimals(t.primals, t.Position(), start)
	}

	w := t.stack.Forward(start, end)
	for w.Next() {
		st := &t.statements.Forward(w.Cursor(levelStatements), 1)[0]
		if st.passives == inputTag {
			continue
		}
		h := st.handle
		if !h.Supports(expr.Primal) {
			fail(op, fmt.Errorf("%s statement: %w", h, ErrUnsupported))
		}
		ids := t.identifiers.Forward(w.Cursor(levelIdentifiers), h.NumArguments())
		passives := t.passives.Forward(w.Cursor(levelPassives), int(st.passives))
		constants := t.constants.Forward(w.Cursor(levelConstants), h.NumConstants())

		value := h.Primal(&t.scratch, t.gather(t.primals, ids, passives, h), constants)
		if reuse {
			st.oldPrimal = t.primals[st.lhs]
		}
		t.primals[st.lhs] = value
	}
}

// ForwardEvaluable reports whether every statement between start and end
// supports forward replay.
func (t *Tape) ForwardEvaluable(start, end Position) bool {
	w := t.stack.Forward(start, end)
	for w.Next() {
		st := t.statements.Forward(w.Cursor(levelStatements), 1)[0]
		if st.passives != inputTag && !st.handle.Supports(expr.Forward) {
			return false
		}
	}
	return true
}

// primalMode says what a reverse sweep does with the primal value of each
// statement it passes.
type primalMode int

const (
	primalsFixed   primalMode = iota // linear policy, slots are never overwritten
	primalsRestore                   // rewind a scratch copy
	primalsSwap                      // rewind in place, parking the current value in the statement
)

func (t *Tape) reverse(start, end Position, primals []float64, v VectorAccess, mode primalMode) {
	lhs := t.lhsBuffer(v.Dim())
	w := t.stack.Reverse(start, end)
	for w.Next() {
		st := &t.statements.Backward(w.Cursor(levelStatements), 1)[0]
		if st.passives == inputTag {
			rewind(primals, st, mode)
			continue
		}
		h := st.handle
		ids := t.identifiers.Backward(w.Cursor(levelIdentifiers), h.NumArguments())
		passives := t.passives.Backward(w.Cursor(levelPassives), int(st.passives))
		constants := t.constants.Backward(w.Cursor(levelConstants), h.NumConstants())

		nonZero := v.TakeAdjoint(st.lhs, lhs)
		rewind(primals, st, mode)
		if !nonZero && t.cfg.SkipZeroAdjoint {
			continue
		}

		_, jac := h.Jacobians(&t.scratch, t.gather(primals, ids, passives, h), constants)
		for j, id := range ids {
			if isPassiveSlot(id) {
				continue
			}
			if t.cfg.IgnoreInvalidJacobians && !isFinite(jac[j]) {
				continue
			}
			v.AddAdjoint(id, jac[j], lhs)
		}
	}
}

func (t *Tape) forward(op string, start, end Position, primals []float64, v VectorAccess, update bool) {
	lhs := t.lhsBuffer(v.Dim())
	w := t.stack.Forward(start, end)
	for w.Next() {
		st := t.statements.Forward(w.Cursor(levelStatements), 1)[0]
		if st.passives == inputTag {
			continue
		}
		h := st.handle
		if !h.Supports(expr.Forward) {
			fail(op, fmt.Errorf("%s statement: %w", h, ErrUnsupported))
		}
		ids := t.identifiers.Forward(w.Cursor(levelIdentifiers), h.NumArguments())
		passives := t.passives.Forward(w.Cursor(levelPassives), int(st.passives))
		constants := t.constants.Forward(w.Cursor(levelConstants), h.NumConstants())

		value, jac := h.Jacobians(&t.scratch, t.gather(primals, ids, passives, h), constants)
		clear(lhs)
		for j, id := range ids {
			if isPassiveSlot(id) {
				continue
			}
			if t.cfg.IgnoreInvalidJacobians && !isFinite(jac[j]) {
				continue
			}
			v.AddTangent(lhs, jac[j], id)
		}
		v.SetTangent(st.lhs, lhs)
		if update {
			primals[st.lhs] = value
		}
	}
}

func rewind(primals []float64, st *statement, mode primalMode) {
	switch mode {
	case primalsRestore:
		primals[st.lhs] = st.oldPrimal
	case primalsSwap:
		primals[st.lhs], st.oldPrimal = st.oldPrimal, primals[st.lhs]
	}
}

// replayPrimals undoes a primalsSwap sweep from end back up to start. Every
// statement gets its prior value back and the slot its parked value.
func (t *Tape) replayPrimals(from, to Position) {
	w := t.stack.Forward(from, to)
	for w.Next() {
		st := &t.statements.Forward(w.Cursor(levelStatements), 1)[0]
		t.primals[st.lhs], st.oldPrimal = st.oldPrimal, t.primals[st.lhs]
	}
}

// restorePrimals rewinds primals from one position back to an earlier one.
func (t *Tape) restorePrimals(primals []float64, from, to Position) {
	w := t.stack.Reverse(from, to)
	for w.Next() {
		st := t.statements.Backward(w.Cursor(levelStatements), 1)[0]
		primals[st.lhs] = st.oldPrimal
	}
}

// gather collects the argument primals of one statement. Passive slots read
// from the statement's passive values.
func (t *Tape) gather(primals []float64, ids []index.Identifier, passives []float64, h *expr.Handle) []float64 {
	if h.IsJacobian() {
		return nil
	}
	args := t.args[:0]
	for _, id := range ids {
		if isPassiveSlot(id) {
			args = append(args, passives[id])
		} else {
			args = append(args, primals[id])
		}
	}
	t.args = args
	return args
}

func (t *Tape) copyPrimals() []float64 {
	t.primalCopy = append(t.primalCopy[:0], t.primals...)
	return t.primalCopy
}

func (t *Tape) resizeVector(v VectorAccess) {
	n := int(t.index.LargestAssignedIndex()) + 1
	if v == VectorAccess(&t.adjoints) && len(t.adjoints.Values) < n {
		t.logger.Debug("adjoint vector resized",
			"tape", t.id,
			"from", len(t.adjoints.Values),
			"to", n)
	}
	v.Resize(n)
}

func (t *Tape) lhsBuffer(dim int) []float64 {
	if cap(t.lhs) < dim {
		t.lhs = make([]float64, dim)
	}
	return t.lhs[:dim]
}

// checkRange fails unless lo is at or before hi.
func checkRange(op string, lo, hi Position) {
	if lo.Compare(hi) > 0 {
		fail(op, ErrInvalidRange)
	}
}

// isPassiveSlot reports whether an argument identifier is one of the slots
// standing in for passive values.
func isPassiveSlot(id index.Identifier) bool {
	return id < index.MaxArgumentSize
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
