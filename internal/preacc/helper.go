package preacc

import (
	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
	"github.com/born-ml/adtape/internal/tape"
)

// Helper replaces the statements recorded between Start and Finish by one
// Jacobian statement per output.
//
//	h := preacc.NewHelper(t)
//	h.Start(x, y)
//	... record statements computing u and v ...
//	h.Finish(false, u, v)
//
// Every call is a no-op while the tape is not recording. Passive inputs and
// outputs are ignored.
type Helper struct {
	tape *tape.Tape

	inputs  []index.Identifier
	outputs []index.Identifier
	values  []*expr.Real

	start  tape.Position
	stored []float64
	jac    Jacobian
}

// NewHelper creates a helper for regions recorded on tp.
func NewHelper(tp *tape.Tape) *Helper {
	return &Helper{tape: tp}
}

// Start marks the beginning of a region and declares its first inputs.
func (h *Helper) Start(inputs ...*expr.Real) {
	if !h.tape.IsRecording() {
		return
	}
	h.inputs = h.inputs[:0]
	h.outputs = h.outputs[:0]
	h.values = h.values[:0]
	h.start = h.tape.Position()
	h.AddInput(inputs...)
}

// AddInput declares more inputs of the region.
func (h *Helper) AddInput(inputs ...*expr.Real) {
	if !h.tape.IsRecording() {
		return
	}
	for _, v := range inputs {
		if id := v.Identifier(); id != index.Passive {
			h.inputs = append(h.inputs, id)
		}
	}
}

// AddOutput declares outputs of the region.
func (h *Helper) AddOutput(outputs ...*expr.Real) {
	if !h.tape.IsRecording() {
		return
	}
	for _, v := range outputs {
		if id := v.Identifier(); id != index.Passive {
			h.outputs = append(h.outputs, id)
			h.values = append(h.values, v)
		}
	}
}

// Inputs returns the active inputs declared so far.
func (h *Helper) Inputs() []index.Identifier { return h.inputs }

// Outputs returns the active outputs declared so far.
func (h *Helper) Outputs() []index.Identifier { return h.outputs }

// Finish declares the last outputs, computes the Jacobian of the region and
// records it in place of the region. Outputs that depend on no input become
// passive.
//
// With storeAdjoints set, the adjoints of the inputs are saved before the
// Jacobian sweeps and restored afterwards.
func (h *Helper) Finish(storeAdjoints bool, outputs ...*expr.Real) {
	if !h.tape.IsRecording() {
		return
	}
	h.AddOutput(outputs...)

	if storeAdjoints {
		h.stored = h.stored[:0]
		for _, id := range h.inputs {
			h.stored = append(h.stored, h.tape.Gradient(id))
			h.tape.SetGradient(id, 0)
		}
	}

	end := h.tape.Position()
	h.jac.Resize(len(h.outputs), len(h.inputs))
	ComputeJacobian(h.tape, h.start, end, h.inputs, h.outputs, &h.jac)
	h.tape.ResetTo(h.start)

	statements, pruned := 0, 0
	for i, v := range h.values {
		if h.jac.NonZerosRow(i) == 0 {
			h.tape.DeactivateValue(v)
			pruned++
			continue
		}
		statements += h.storeRow(i, v)
	}

	if storeAdjoints {
		for k, id := range h.inputs {
			h.tape.SetGradient(id, h.stored[k])
		}
	}

	h.tape.Logger().Debug("region preaccumulated",
		"tape", h.tape.ID(),
		"inputs", len(h.inputs),
		"outputs", len(h.outputs),
		"statements", statements,
		"pruned", pruned)
}

// storeRow records row i of the Jacobian as the statement chain of v and
// returns the number of statements. Each link after the first carries the
// previous link's result with coefficient 1.
func (h *Helper) storeRow(i int, v *expr.Real) int {
	left := h.jac.NonZerosRow(i)
	id := v.Identifier()
	carry := false
	col, links := 0, 0
	for left > 0 {
		n := left
		if limit := expr.MaxJacobianArguments - carrySize(carry); n > limit {
			n = limit
		}
		left -= n

		prev := id
		h.tape.StoreManual(v.Value(), &id, n+carrySize(carry))
		if carry {
			h.tape.PushJacobianManual(1, prev)
		}
		for n > 0 {
			if jv := h.jac.At(i, col); jv != 0 {
				h.tape.PushJacobianManual(jv, h.inputs[col])
				n--
			}
			col++
		}
		carry = true
		links++
	}
	v.SetIdentifier(id)
	return links
}

func carrySize(carry bool) int {
	if carry {
		return 1
	}
	return 0
}
