package preacc

import (
	"fmt"

	"github.com/born-ml/adtape/internal/index"
	"github.com/born-ml/adtape/internal/tape"
)

// ComputeJacobian fills jac with the derivatives of outputs with respect to
// inputs over the recorded region from start to end.
//
// It runs one forward sweep per input when there are fewer inputs than
// outputs and the region supports forward replay, and one reverse sweep per
// output otherwise. The adjoints of the region and of inputs and outputs are
// zero afterwards.
func ComputeJacobian(tp *tape.Tape, start, end tape.Position,
	inputs, outputs []index.Identifier, jac *Jacobian,
) {
	if jac.M() != len(outputs) || jac.N() != len(inputs) {
		panic(fmt.Sprintf("preacc: Jacobian is %dx%d, need %dx%d",
			jac.M(), jac.N(), len(outputs), len(inputs)))
	}

	if len(inputs) < len(outputs) && tp.ForwardEvaluable(start, end) {
		for k, in := range inputs {
			tp.SetGradient(in, 1)
			tp.EvaluateForward(start, end)
			for i, out := range outputs {
				jac.Set(i, k, tp.Gradient(out))
			}
			clearSweep(tp, start, end, inputs, outputs)
		}
		return
	}

	for i, out := range outputs {
		tp.SetGradient(out, 1)
		tp.EvaluateRange(end, start)
		for k, in := range inputs {
			jac.Set(i, k, tp.Gradient(in))
		}
		clearSweep(tp, start, end, inputs, outputs)
	}
}

func clearSweep(tp *tape.Tape, start, end tape.Position, inputs, outputs []index.Identifier) {
	tp.ClearAdjointsRange(end, start)
	for _, id := range inputs {
		tp.SetGradient(id, 0)
	}
	for _, id := range outputs {
		tp.SetGradient(id, 0)
	}
}
