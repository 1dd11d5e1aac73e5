// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ad provides operator-recording algorithmic differentiation.
//
// Values are *Real. Arithmetic on them is written as expression trees which
// a recording Tape turns into statements. The tape is then replayed backward
// for adjoints, forward for tangents, or for primal values only.
//
// Example:
//
//	import "github.com/born-ml/adtape/ad"
//
//	func main() {
//	    t := ad.NewTape(ad.DefaultConfig())
//	    x, y := ad.NewReal(2), ad.NewReal(3)
//
//	    t.StartRecording()
//	    t.RegisterInput(x)
//	    t.RegisterInput(y)
//	    z := ad.NewReal(0)
//	    t.Assign(z, ad.Mul(x, ad.Sin(y)))
//	    t.RegisterOutput(z)
//	    t.StopRecording()
//
//	    t.SetGradient(z.Identifier(), 1)
//	    t.Evaluate()
//	    dzdx := t.Gradient(x.Identifier())
//	}
package ad

import (
	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
	"github.com/born-ml/adtape/internal/preacc"
	"github.com/born-ml/adtape/internal/stats"
	"github.com/born-ml/adtape/internal/tape"
)

// Real is a value that can be active on a tape.
type Real = expr.Real

// Expr is an expression tree over Reals and constants.
type Expr = expr.Expr

// Const is a constant leaf of an expression.
type Const = expr.Const

// Identifier names the tape slot of an active value. Zero is passive.
type Identifier = index.Identifier

// Passive is the identifier of values that are not on a tape.
const Passive = index.Passive

// NewReal creates a passive value.
func NewReal(v float64) *Real {
	return expr.NewReal(v)
}

// Expression constructors.
var (
	Add    = expr.Add
	Sub    = expr.Sub
	Mul    = expr.Mul
	Div    = expr.Div
	Pow    = expr.Pow
	Atan2  = expr.Atan2
	Min    = expr.Min
	Max    = expr.Max
	Hypot  = expr.Hypot
	Scale  = expr.Scale
	Sum    = expr.Sum
	Neg    = expr.Neg
	Abs    = expr.Abs
	Sqrt   = expr.Sqrt
	Exp    = expr.Exp
	Log    = expr.Log
	Log10  = expr.Log10
	Sin    = expr.Sin
	Cos    = expr.Cos
	Tan    = expr.Tan
	Asin   = expr.Asin
	Acos   = expr.Acos
	Atan   = expr.Atan
	Sinh   = expr.Sinh
	Cosh   = expr.Cosh
	Tanh   = expr.Tanh
	Erf    = expr.Erf
	Square = expr.Square
)

// Tape records statements and evaluates derivatives.
type Tape = tape.Tape

// Config holds the tape flags.
type Config = tape.Config

// Option configures a Tape.
type Option = tape.Option

// Policy selects the identifier management of a tape.
type Policy = tape.Policy

// Identifier policies.
const (
	Linear = tape.Linear
	Reuse  = tape.Reuse
)

// Position is a snapshot of a tape's write cursor.
type Position = tape.Position

// Parameter names a tunable size of a tape.
type Parameter = tape.Parameter

// Tape parameters.
const (
	AdjointSize        = tape.AdjointSize
	PrimalSize         = tape.PrimalSize
	StatementSize      = tape.StatementSize
	RhsIdentifiersSize = tape.RhsIdentifiersSize
	PassiveValuesSize  = tape.PassiveValuesSize
	ConstantValuesSize = tape.ConstantValuesSize
	LargestIdentifier  = tape.LargestIdentifier
)

// ParseParameter looks a parameter up by name, e.g. "statement_size".
func ParseParameter(name string) (Parameter, error) {
	return tape.ParseParameter(name)
}

// Error is the panic value of a tape contract violation.
type Error = tape.Error

// Contract violations.
var (
	ErrUnsupported       = tape.ErrUnsupported
	ErrReadOnlyParameter = tape.ErrReadOnlyParameter
	ErrInvalidRange      = tape.ErrInvalidRange
	ErrTooManyArguments  = tape.ErrTooManyArguments
)

// DefaultConfig returns the default flags for a linear tape.
func DefaultConfig() Config {
	return tape.DefaultConfig()
}

// NewTape creates a tape that is not recording.
func NewTape(cfg Config, opts ...Option) *Tape {
	return tape.New(cfg, opts...)
}

// Options.
var (
	WithLogger = tape.WithLogger
	WithID     = tape.WithID
)

// VectorAccess is the adjoint or tangent storage an evaluation runs on.
type VectorAccess = tape.VectorAccess

// Scalar is one adjoint per identifier.
type Scalar = tape.Scalar

// Directions holds several adjoint or tangent directions per identifier.
type Directions = tape.Directions

// NewDirections creates storage for dim directions.
func NewDirections(dim int) *Directions {
	return tape.NewDirections(dim)
}

// Jacobian is a dense matrix with per-row non-zero counts.
type Jacobian = preacc.Jacobian

// NewJacobian creates a zero m×n Jacobian.
func NewJacobian(m, n int) *Jacobian {
	return preacc.NewJacobian(m, n)
}

// ComputeJacobian fills jac with the derivatives of outputs with respect to
// inputs over a recorded range.
func ComputeJacobian(t *Tape, start, end Position, inputs, outputs []Identifier, jac *Jacobian) {
	preacc.ComputeJacobian(t, start, end, inputs, outputs, jac)
}

// PreaccumulationHelper replaces a recorded region by its Jacobian.
type PreaccumulationHelper = preacc.Helper

// NewPreaccumulationHelper creates a helper for regions recorded on t.
func NewPreaccumulationHelper(t *Tape) *PreaccumulationHelper {
	return preacc.NewHelper(t)
}

// Statistics is a tape statistics report.
type Statistics = stats.Values

// StatisticsCollector exports tape statistics as Prometheus gauges.
type StatisticsCollector = stats.Collector

// NewStatisticsCollector creates a collector over the given tapes.
func NewStatisticsCollector(namespace string, tapes ...*Tape) *StatisticsCollector {
	c := stats.NewCollector(namespace)
	for _, t := range tapes {
		c.Add(t)
	}
	return c
}
