package tape

import (
	"math"
	"testing"

	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_MatchesAnalyticGradient(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			xs := inputs(tp, 1.3, 0.7)
			x, y := xs[0], xs[1]

			// w = x sin(y) + exp(x/y) - 3x^2
			z := expr.NewReal(0)
			tp.Assign(z, expr.Add(expr.Mul(x, expr.Sin(y)), expr.Exp(expr.Div(x, y))))
			w := expr.NewReal(0)
			tp.Assign(w, expr.Sub(z, expr.Scale(3, expr.Square(x))))
			tp.RegisterOutput(w)

			xv, yv := 1.3, 0.7
			e := math.Exp(xv / yv)
			dx := math.Sin(yv) + e/yv - 6*xv
			dy := xv*math.Cos(yv) - e*xv/(yv*yv)
			assert.InDelta(t, xv*math.Sin(yv)+e-3*xv*xv, w.Value(), 1e-12)

			tp.SetGradient(w.Identifier(), 1)
			tp.Evaluate()
			assert.InDelta(t, dx, tp.Gradient(x.Identifier()), 1e-12)
			assert.InDelta(t, dy, tp.Gradient(y.Identifier()), 1e-12)

			tp.ClearAdjoints()
			tp.SetGradient(x.Identifier(), 1)
			tp.EvaluateForward(tp.Start(), tp.Position())
			assert.InDelta(t, dx, tp.Gradient(w.Identifier()), 1e-12)

			tp.ClearAdjoints()
			tp.SetGradient(y.Identifier(), 1)
			tp.EvaluateForward(tp.Start(), tp.Position())
			assert.InDelta(t, dy, tp.Gradient(w.Identifier()), 1e-12)
		})
	}
}

func TestEvaluate_StatementsAcrossChunks(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			xs := inputs(tp, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

			// y = sum (i+1) x_i has more arguments than a chunk holds.
			terms := make([]expr.Expr, len(xs))
			for i, x := range xs {
				terms[i] = expr.Scale(float64(i+1), x)
			}
			y := expr.NewReal(0)
			tp.Assign(y, expr.Sum(terms...))
			z := expr.NewReal(0)
			tp.Assign(z, expr.Mul(y, y))
			for range 5 {
				tp.Assign(z, expr.Add(z, expr.Const(1)))
			}

			// y = sum i^2 for i = 1..10 = 385
			require.Equal(t, 385.0, y.Value())
			tp.SetGradient(z.Identifier(), 1)
			tp.Evaluate()
			for i, x := range xs {
				assert.InDelta(t, 2*385.0*float64(i+1), tp.Gradient(x.Identifier()), 1e-9)
			}

			tp.ClearAdjoints()
			tp.SetGradient(xs[3].Identifier(), 1)
			tp.EvaluateForward(tp.Start(), tp.Position())
			assert.InDelta(t, 2*385.0*4, tp.Gradient(z.Identifier()), 1e-9)
		})
	}
}

// recordOverwrite records o = x^3 + x + 1 on a reuse tape. The slot of the
// intermediate a = x*x is released and taken over by b = x + 1.
func recordOverwrite(t *testing.T) (tp *Tape, x, o *expr.Real, slot index.Identifier) {
	tp = newTape(Reuse)
	x = inputs(tp, 3)[0]

	a := expr.NewReal(0)
	tp.Assign(a, expr.Mul(x, x))
	y := expr.NewReal(0)
	tp.Assign(y, expr.Mul(a, x))
	slot = a.Identifier()
	tp.DeactivateValue(a)

	b := expr.NewReal(0)
	tp.Assign(b, expr.Add(x, expr.Const(1)))
	require.Equal(t, slot, b.Identifier(), "b reuses the slot of a")

	o = expr.NewReal(0)
	tp.Assign(o, expr.Add(y, b))
	require.Equal(t, 31.0, o.Value())
	return tp, x, o, slot
}

func TestEvaluate_ReuseRestoresOverwrittenPrimal(t *testing.T) {
	tp, x, o, slot := recordOverwrite(t)

	tp.SetGradient(o.Identifier(), 1)
	tp.Evaluate()
	// d/dx (x^3 + x + 1) = 3x^2 + 1; reading b's value for a would give 22.
	assert.InDelta(t, 28.0, tp.Gradient(x.Identifier()), 1e-12)
	assert.Equal(t, 4.0, tp.Primal(slot), "the tape keeps its current primals")

	// Evaluating twice gives the same result.
	tp.ClearAdjoints()
	tp.SetGradient(o.Identifier(), 1)
	tp.Evaluate()
	assert.InDelta(t, 28.0, tp.Gradient(x.Identifier()), 1e-12)

	tp.ClearAdjoints()
	tp.SetGradient(x.Identifier(), 1)
	tp.EvaluateForward(tp.Start(), tp.Position())
	assert.InDelta(t, 28.0, tp.Gradient(o.Identifier()), 1e-12)
	assert.Equal(t, 4.0, tp.Primal(slot))
}

func TestEvaluate_KeepState(t *testing.T) {
	tp, x, o, slot := recordOverwrite(t)
	end := tp.Position()

	tp.SetGradient(o.Identifier(), 1)
	tp.EvaluateKeepState(end, tp.Start())
	assert.InDelta(t, 28.0, tp.Gradient(x.Identifier()), 1e-12)
	assert.Equal(t, 4.0, tp.Primal(slot), "primals back at their current values")
	assert.Equal(t, 31.0, tp.Primal(o.Identifier()))
	assert.Equal(t, 3.0, tp.Primal(x.Identifier()))

	// The stored prior values survive, so a second sweep agrees.
	tp.ClearAdjoints()
	tp.SetGradient(o.Identifier(), 1)
	tp.EvaluateKeepState(end, tp.Start())
	assert.InDelta(t, 28.0, tp.Gradient(x.Identifier()), 1e-12)

	tp.ClearAdjoints()
	tp.SetGradient(x.Identifier(), 1)
	tp.EvaluateForwardKeepState(tp.Start(), end)
	assert.InDelta(t, 28.0, tp.Gradient(o.Identifier()), 1e-12)
	assert.Equal(t, 4.0, tp.Primal(slot), "primals replayed to the end")
	assert.Equal(t, 31.0, tp.Primal(o.Identifier()))
}

func TestEvaluate_KeepStateThenEvaluate(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			x := inputs(tp, 3)[0]
			a := expr.NewReal(0)
			tp.Assign(a, expr.Mul(x, x))
			y := expr.NewReal(0)
			tp.Assign(y, expr.Mul(a, x))

			tp.SetGradient(y.Identifier(), 1)
			tp.EvaluateKeepState(tp.Position(), tp.Start())
			assert.Equal(t, 27.0, tp.Gradient(x.Identifier()))
			assert.Equal(t, 9.0, tp.Primal(a.Identifier()))
			assert.Equal(t, 27.0, tp.Primal(y.Identifier()))

			tp.ClearAdjoints()
			tp.SetGradient(y.Identifier(), 1)
			tp.Evaluate()
			assert.Equal(t, 27.0, tp.Gradient(x.Identifier()))

			tp.ClearAdjoints()
			tp.SetGradient(y.Identifier(), 1)
			tp.EvaluateKeepState(tp.Position(), tp.Start())
			assert.Equal(t, 27.0, tp.Gradient(x.Identifier()))
		})
	}
}

func TestEvaluate_PartialRange(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			x := inputs(tp, 2)[0]
			a := expr.NewReal(0)
			tp.Assign(a, expr.Square(x))
			mid := tp.Position()
			b := expr.NewReal(0)
			tp.Assign(b, expr.Scale(5, a))
			end := tp.Position()

			// Only the second statement: db/da.
			tp.SetGradient(b.Identifier(), 1)
			tp.EvaluateRange(end, mid)
			assert.Equal(t, 5.0, tp.Gradient(a.Identifier()))
			assert.Equal(t, 0.0, tp.Gradient(x.Identifier()))

			// Continue with the first statement.
			tp.EvaluateRange(mid, tp.Start())
			assert.Equal(t, 20.0, tp.Gradient(x.Identifier()))

			// Empty ranges do nothing.
			tp.EvaluateRange(mid, mid)
			tp.EvaluateForward(end, end)
			assert.Equal(t, 20.0, tp.Gradient(x.Identifier()))
		})
	}
}

func TestEvaluate_InvalidRange(t *testing.T) {
	tp := newTape(Linear)
	x := inputs(tp, 2)[0]
	y := expr.NewReal(0)
	tp.Assign(y, expr.Cos(x))
	start, end := tp.Start(), tp.Position()

	expectPanic(t, "Evaluate", ErrInvalidRange, func() { tp.EvaluateRange(start, end) })
	expectPanic(t, "EvaluateKeepState", ErrInvalidRange, func() { tp.EvaluateKeepState(start, end) })
	expectPanic(t, "EvaluateForward", ErrInvalidRange, func() { tp.EvaluateForward(end, start) })
	expectPanic(t, "EvaluateForwardKeepState", ErrInvalidRange, func() { tp.EvaluateForwardKeepState(end, start) })
	expectPanic(t, "EvaluatePrimal", ErrInvalidRange, func() { tp.EvaluatePrimal(end, start) })
}

func TestEvaluate_SkipZeroAndInvalidJacobians(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		skip, ignore bool
		// Gradient of x when seeding w, then when seeding v.
		viaW, viaV float64
	}{
		{skip: false, ignore: false, viaW: nan, viaV: nan},
		{skip: false, ignore: true, viaW: 0, viaV: 0},
		{skip: true, ignore: false, viaW: 0, viaV: inf},
		{skip: true, ignore: true, viaW: 0, viaV: 0},
	}

	check := func(t *testing.T, want, got float64) {
		t.Helper()
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(got), "want NaN, got %v", got)
			return
		}
		assert.Equal(t, want, got)
	}

	for _, tt := range tests {
		for _, policy := range policies {
			cfg := DefaultConfig()
			cfg.Policy = policy
			cfg.SkipZeroAdjoint = tt.skip
			cfg.IgnoreInvalidJacobians = tt.ignore
			tp := New(cfg)
			tp.StartRecording()

			// sqrt has an infinite derivative at 0.
			x := inputs(tp, 0)[0]
			u, w, v := expr.NewReal(0), expr.NewReal(0), expr.NewReal(0)
			tp.Assign(u, expr.Sqrt(x))
			tp.Assign(w, expr.Mul(u, expr.Const(0)))
			tp.Assign(v, expr.Sqrt(x))

			tp.SetGradient(w.Identifier(), 1)
			tp.Evaluate()
			check(t, tt.viaW, tp.Gradient(x.Identifier()))

			tp.ClearAdjoints()
			tp.SetGradient(v.Identifier(), 1)
			tp.Evaluate()
			check(t, tt.viaV, tp.Gradient(x.Identifier()))
		}
	}
}

func TestEvaluate_ManualJacobianStatement(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			xs := inputs(tp, 1, 1)
			before := tp.Position()

			var id index.Identifier
			tp.StoreManual(5, &id, 2)
			tp.PushJacobianManual(2, xs[0].Identifier())
			tp.PushJacobianManual(3, xs[1].Identifier())
			require.NotEqual(t, index.Passive, id)
			assert.Equal(t, 5.0, tp.Primal(id))

			tp.SetGradient(id, 1)
			tp.Evaluate()
			assert.Equal(t, 2.0, tp.Gradient(xs[0].Identifier()))
			assert.Equal(t, 3.0, tp.Gradient(xs[1].Identifier()))

			assert.True(t, tp.ForwardEvaluable(tp.Start(), before))
			assert.False(t, tp.ForwardEvaluable(tp.Start(), tp.Position()))

			expectPanic(t, "EvaluateForward", ErrUnsupported, func() {
				tp.EvaluateForward(tp.Start(), tp.Position())
			})
			expectPanic(t, "EvaluatePrimal", ErrUnsupported, func() {
				tp.EvaluatePrimal(tp.Start(), tp.Position())
			})
		})
	}
}

func TestEvaluatePrimal_PropagatesNewInputs(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			xs := inputs(tp, 1, 3)
			x, y := xs[0], xs[1]
			z := expr.NewReal(0)
			tp.Assign(z, expr.Mul(x, y))
			tp.Assign(z, expr.Add(expr.Sin(z), x))
			zID := z.Identifier()

			tp.SetPrimal(x.Identifier(), 2)
			tp.EvaluatePrimal(tp.Start(), tp.Position())
			assert.InDelta(t, math.Sin(6)+2, tp.Primal(zID), 1e-12)

			// Gradients use the replayed primals.
			tp.SetGradient(zID, 1)
			tp.Evaluate()
			assert.InDelta(t, 3*math.Cos(6)+1, tp.Gradient(x.Identifier()), 1e-12)
			assert.InDelta(t, 2*math.Cos(6), tp.Gradient(y.Identifier()), 1e-12)
		})
	}
}

func TestEvaluate_CustomVectors(t *testing.T) {
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			tp := newTape(policy)
			xs := inputs(tp, 2, 5)
			x, y := xs[0], xs[1]
			f1, f2 := expr.NewReal(0), expr.NewReal(0)
			tp.Assign(f1, expr.Mul(x, y))
			tp.Assign(f2, expr.Add(x, y))

			adj := NewDirections(2)
			adj.Set(f1.Identifier(), 0, 1)
			adj.Set(f2.Identifier(), 1, 1)
			tp.EvaluateWith(tp.Position(), tp.Start(), adj)

			assert.Equal(t, 5.0, adj.At(x.Identifier(), 0))
			assert.Equal(t, 1.0, adj.At(x.Identifier(), 1))
			assert.Equal(t, 2.0, adj.At(y.Identifier(), 0))
			assert.Equal(t, 1.0, adj.At(y.Identifier(), 1))
			assert.Equal(t, 0.0, tp.Gradient(x.Identifier()), "the tape's own vector is untouched")

			tan := NewDirections(2)
			tan.Set(x.Identifier(), 0, 1)
			tan.Set(y.Identifier(), 1, 1)
			tp.EvaluateForwardWith(tp.Start(), tp.Position(), tan)
			assert.Equal(t, 5.0, tan.At(f1.Identifier(), 0))
			assert.Equal(t, 2.0, tan.At(f1.Identifier(), 1))
			assert.Equal(t, 1.0, tan.At(f2.Identifier(), 0))
			assert.Equal(t, 1.0, tan.At(f2.Identifier(), 1))

			scalar := &Scalar{}
			scalar.Resize(int(f1.Identifier()) + 1)
			scalar.Values[f1.Identifier()] = 1
			tp.EvaluateWith(tp.Position(), tp.Start(), scalar)
			assert.Equal(t, 5.0, scalar.Values[x.Identifier()])
		})
	}
}
