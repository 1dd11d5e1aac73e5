// Package expr builds right-hand-side expression trees for tape recording and
// evaluates recorded statements during replay.
//
// Go has no operator overloading, so expressions are written with explicit
// constructors:
//
//	z := expr.Add(expr.Mul(x, y), expr.Sin(x))
//
// Every node computes its value eagerly. The tree structure (its shape) is
// compiled once into a Handle, an opcode program shared by all statements
// recorded from the same shape.
package expr

import (
	"strconv"

	"github.com/born-ml/adtape/internal/index"
)

// Expr is a node of an expression tree. The set of node types is closed.
type Expr interface {
	// Value returns the primal value of the subtree.
	Value() float64

	node()
}

// Real is an active value: a primal plus the identifier of its tape slot.
// The zero value is a passive zero.
type Real struct {
	value float64
	id    index.Identifier
}

// NewReal creates a passive value.
func NewReal(v float64) *Real {
	return &Real{value: v}
}

// Value returns the primal value.
func (r *Real) Value() float64 { return r.value }

// SetValue overwrites the primal value without touching the identifier.
func (r *Real) SetValue(v float64) { r.value = v }

// Identifier returns the tape slot, or index.Passive.
func (r *Real) Identifier() index.Identifier { return r.id }

// SetIdentifier rebinds the value to a tape slot.
func (r *Real) SetIdentifier(id index.Identifier) { r.id = id }

// IsActive reports whether the value depends on a tape input.
func (r *Real) IsActive() bool { return r.id != index.Passive }

// String formats the value and identifier of r.
func (r *Real) String() string {
	return strconv.FormatFloat(r.value, 'g', -1, 64) + "@" + strconv.Itoa(int(r.id))
}

func (r *Real) node() {}

// Const is a literal coefficient. Constants are stored separately from
// passive values.
type Const float64

// Value implements Expr.
func (c Const) Value() float64 { return float64(c) }

func (Const) node() {}

type unary struct {
	op    op
	x     Expr
	value float64
}

func (u *unary) Value() float64 { return u.value }

func (*unary) node() {}

type binary struct {
	op    op
	a, b  Expr
	value float64
}

func (b *binary) Value() float64 { return b.value }

func (*binary) node() {}

func newUnary(o op, x Expr) Expr {
	return &unary{op: o, x: x, value: o.eval(x.Value(), 0)}
}

func newBinary(o op, a, b Expr) Expr {
	return &binary{op: o, a: a, b: b, value: o.eval(a.Value(), b.Value())}
}

// Add returns a + b.
func Add(a, b Expr) Expr { return newBinary(opAdd, a, b) }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return newBinary(opSub, a, b) }

// Mul returns a * b.
func Mul(a, b Expr) Expr { return newBinary(opMul, a, b) }

// Div returns a / b.
func Div(a, b Expr) Expr { return newBinary(opDiv, a, b) }

// Pow returns a**b.
func Pow(a, b Expr) Expr { return newBinary(opPow, a, b) }

// Atan2 returns atan2(a, b).
func Atan2(a, b Expr) Expr { return newBinary(opAtan2, a, b) }

// Min returns the smaller operand. Ties select a.
func Min(a, b Expr) Expr { return newBinary(opMin, a, b) }

// Max returns the larger operand. Ties select a.
func Max(a, b Expr) Expr { return newBinary(opMax, a, b) }

// Hypot returns sqrt(a*a + b*b).
func Hypot(a, b Expr) Expr { return newBinary(opHypot, a, b) }

// Scale returns c * x.
func Scale(c float64, x Expr) Expr { return Mul(Const(c), x) }

// Sum folds terms with Add. The sum of no terms is the constant zero.
func Sum(terms ...Expr) Expr {
	if len(terms) == 0 {
		return Const(0)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = Add(acc, t)
	}
	return acc
}

// Neg returns -x.
func Neg(x Expr) Expr { return newUnary(opNeg, x) }

// Abs returns |x|.
func Abs(x Expr) Expr { return newUnary(opAbs, x) }

// Sqrt returns the square root of x.
func Sqrt(x Expr) Expr { return newUnary(opSqrt, x) }

// Exp returns e**x.
func Exp(x Expr) Expr { return newUnary(opExp, x) }

// Log returns the natural logarithm of x.
func Log(x Expr) Expr { return newUnary(opLog, x) }

// Log10 returns the decimal logarithm of x.
func Log10(x Expr) Expr { return newUnary(opLog10, x) }

// Sin returns the sine of x.
func Sin(x Expr) Expr { return newUnary(opSin, x) }

// Cos returns the cosine of x.
func Cos(x Expr) Expr { return newUnary(opCos, x) }

// Tan returns the tangent of x.
func Tan(x Expr) Expr { return newUnary(opTan, x) }

// Asin returns the arcsine of x.
func Asin(x Expr) Expr { return newUnary(opAsin, x) }

// Acos returns the arccosine of x.
func Acos(x Expr) Expr { return newUnary(opAcos, x) }

// Atan returns the arctangent of x.
func Atan(x Expr) Expr { return newUnary(opAtan, x) }

// Sinh returns the hyperbolic sine of x.
func Sinh(x Expr) Expr { return newUnary(opSinh, x) }

// Cosh returns the hyperbolic cosine of x.
func Cosh(x Expr) Expr { return newUnary(opCosh, x) }

// Tanh returns the hyperbolic tangent of x.
func Tanh(x Expr) Expr { return newUnary(opTanh, x) }

// Erf returns the error function of x.
func Erf(x Expr) Expr { return newUnary(opErf, x) }

// Square returns x*x.
func Square(x Expr) Expr { return newUnary(opSquare, x) }
