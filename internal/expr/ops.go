package expr

import "math"

// op is one node kind of an expression shape.
type op uint8

const (
	opLeaf op = iota + 'A'
	opConst

	// Unary.
	opNeg
	opAbs
	opSqrt
	opExp
	opLog
	opLog10
	opSin
	opCos
	opTan
	opAsin
	opAcos
	opAtan
	opSinh
	opCosh
	opTanh
	opErf
	opSquare

	// Binary.
	opAdd
	opSub
	opMul
	opDiv
	opPow
	opAtan2
	opMin
	opMax
	opHypot

	opEnd
)

var opNames = map[op]string{
	opLeaf: "x", opConst: "c",
	opNeg: "neg", opAbs: "abs", opSqrt: "sqrt", opExp: "exp", opLog: "log",
	opLog10: "log10", opSin: "sin", opCos: "cos", opTan: "tan", opAsin: "asin",
	opAcos: "acos", opAtan: "atan", opSinh: "sinh", opCosh: "cosh", opTanh: "tanh",
	opErf: "erf", opSquare: "square",
	opAdd: "+", opSub: "-", opMul: "*", opDiv: "/", opPow: "pow", opAtan2: "atan2",
	opMin: "min", opMax: "max", opHypot: "hypot",
}

func (o op) String() string { return opNames[o] }

func (o op) valid() bool { return o >= opLeaf && o < opEnd }

func (o op) binary() bool { return o >= opAdd && o < opEnd }

func (o op) unary() bool { return o >= opNeg && o < opAdd }

// eval computes the value of o. b is ignored for unary ops.
func (o op) eval(a, b float64) float64 {
	switch o {
	case opNeg:
		return -a
	case opAbs:
		return math.Abs(a)
	case opSqrt:
		return math.Sqrt(a)
	case opExp:
		return math.Exp(a)
	case opLog:
		return math.Log(a)
	case opLog10:
		return math.Log10(a)
	case opSin:
		return math.Sin(a)
	case opCos:
		return math.Cos(a)
	case opTan:
		return math.Tan(a)
	case opAsin:
		return math.Asin(a)
	case opAcos:
		return math.Acos(a)
	case opAtan:
		return math.Atan(a)
	case opSinh:
		return math.Sinh(a)
	case opCosh:
		return math.Cosh(a)
	case opTanh:
		return math.Tanh(a)
	case opErf:
		return math.Erf(a)
	case opSquare:
		return a * a
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opDiv:
		return a / b
	case opPow:
		return math.Pow(a, b)
	case opAtan2:
		return math.Atan2(a, b)
	case opMin:
		if b < a {
			return b
		}
		return a
	case opMax:
		if b > a {
			return b
		}
		return a
	case opHypot:
		return math.Hypot(a, b)
	}
	panic("expr: eval of non-operator node " + o.String())
}

// partials returns the local derivatives of o with respect to a and b, given
// the node value v.
func (o op) partials(a, b, v float64) (float64, float64) {
	switch o {
	case opNeg:
		return -1, 0
	case opAbs:
		switch {
		case a < 0:
			return -1, 0
		case a > 0:
			return 1, 0
		}
		return 0, 0
	case opSqrt:
		return 0.5 / v, 0
	case opExp:
		return v, 0
	case opLog:
		return 1 / a, 0
	case opLog10:
		return 1 / (a * math.Ln10), 0
	case opSin:
		return math.Cos(a), 0
	case opCos:
		return -math.Sin(a), 0
	case opTan:
		return 1 + v*v, 0
	case opAsin:
		return 1 / math.Sqrt(1-a*a), 0
	case opAcos:
		return -1 / math.Sqrt(1-a*a), 0
	case opAtan:
		return 1 / (1 + a*a), 0
	case opSinh:
		return math.Cosh(a), 0
	case opCosh:
		return math.Sinh(a), 0
	case opTanh:
		return 1 - v*v, 0
	case opErf:
		return 2 / math.SqrtPi * math.Exp(-a*a), 0
	case opSquare:
		return 2 * a, 0
	case opAdd:
		return 1, 1
	case opSub:
		return 1, -1
	case opMul:
		return b, a
	case opDiv:
		return 1 / b, -v / b
	case opPow:
		db := 0.0
		if a > 0 {
			db = v * math.Log(a)
		}
		if b == 0 {
			return 0, db
		}
		return b * math.Pow(a, b-1), db
	case opAtan2:
		d := a*a + b*b
		return b / d, -a / d
	case opMin:
		if b < a {
			return 0, 1
		}
		return 1, 0
	case opMax:
		if b > a {
			return 0, 1
		}
		return 1, 0
	case opHypot:
		if v == 0 {
			return 0, 0
		}
		return a / v, b / v
	}
	panic("expr: derivative of non-operator node " + o.String())
}
