package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/born-ml/adtape/internal/index"
)

// Mode is a set of replay modes.
type Mode uint8

const (
	Reverse Mode = 1 << iota
	Forward
	Primal

	AllModes = Reverse | Forward | Primal
)

// String lists the modes set in m.
func (m Mode) String() string {
	var parts []string
	for _, x := range []struct {
		m    Mode
		name string
	}{{Reverse, "reverse"}, {Forward, "forward"}, {Primal, "primal"}} {
		if m&x.m != 0 {
			parts = append(parts, x.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// MaxJacobianArguments is the largest argument count of a Jacobian statement.
const MaxJacobianArguments = index.MaxArgumentSize - 1

var (
	// ErrUnsupported is reported when a statement cannot be replayed in a mode.
	ErrUnsupported = index.ErrUnsupported

	// ErrTooManyArguments is reported for expressions with more leaves than a
	// statement can hold.
	ErrTooManyArguments = errors.New("expr: too many statement arguments")
)

type kind uint8

const (
	kindShape kind = iota
	kindJacobian
	kindInput
)

// instr is one postorder program step. For leaves and constants a is the
// argument slot, otherwise a and b index earlier steps.
type instr struct {
	op   op
	a, b int
}

// Handle evaluates every statement recorded from one expression shape.
// Handles are immutable and shared between tapes.
type Handle struct {
	key    string
	kind   kind
	prog   []instr
	nargs  int
	nconst int
	modes  Mode
}

// NumArguments returns the number of identifier arguments, active and passive.
func (h *Handle) NumArguments() int { return h.nargs }

// NumConstants returns the number of constant values.
func (h *Handle) NumConstants() int { return h.nconst }

// Supports reports whether every mode in m can be replayed.
func (h *Handle) Supports(m Mode) bool { return h.modes&m == m }

// IsJacobian reports whether h is a pure Jacobian statement.
func (h *Handle) IsJacobian() bool { return h.kind == kindJacobian }

// String renders the shape, e.g. "+(*(x,x),sin(x))".
func (h *Handle) String() string {
	switch h.kind {
	case kindJacobian:
		return "jacobian/" + strconv.Itoa(h.nargs)
	case kindInput:
		return "input"
	}
	var sb strings.Builder
	h.render(&sb, len(h.prog)-1)
	return sb.String()
}

func (h *Handle) render(sb *strings.Builder, i int) {
	in := h.prog[i]
	sb.WriteString(in.op.String())
	switch {
	case in.op.binary():
		sb.WriteByte('(')
		h.render(sb, in.a)
		sb.WriteByte(',')
		h.render(sb, in.b)
		sb.WriteByte(')')
	case in.op.unary():
		sb.WriteByte('(')
		h.render(sb, in.a)
		sb.WriteByte(')')
	}
}

// Scratch holds the working buffers of handle evaluation. One per tape.
type Scratch struct {
	vals     []float64
	bars     []float64
	partials []float64
}

func (s *Scratch) reserve(nodes, args int) {
	if cap(s.vals) < nodes {
		s.vals = make([]float64, nodes)
		s.bars = make([]float64, nodes)
	}
	if cap(s.partials) < args {
		s.partials = make([]float64, args)
	}
}

// Primal recomputes the statement value from argument primals and constants.
func (h *Handle) Primal(s *Scratch, args, constants []float64) float64 {
	if h.kind != kindShape {
		panic(fmt.Errorf("expr: primal evaluation of %s statement: %w", h, ErrUnsupported))
	}
	return h.forward(s, args, constants)
}

func (h *Handle) forward(s *Scratch, args, constants []float64) float64 {
	n := len(h.prog)
	s.reserve(n, h.nargs)
	vals := s.vals[:n]
	for i, in := range h.prog {
		switch {
		case in.op == opLeaf:
			vals[i] = args[in.a]
		case in.op == opConst:
			vals[i] = constants[in.a]
		case in.op.binary():
			vals[i] = in.op.eval(vals[in.a], vals[in.b])
		default:
			vals[i] = in.op.eval(vals[in.a], 0)
		}
	}
	return vals[n-1]
}

// Jacobians returns the statement value and the local partial derivative per
// argument slot. For Jacobian statements the partials are the stored
// constants and the value is zero. The returned slice is owned by s.
func (h *Handle) Jacobians(s *Scratch, args, constants []float64) (float64, []float64) {
	switch h.kind {
	case kindJacobian:
		return 0, constants[:h.nargs]
	case kindInput:
		return 0, nil
	}

	v := h.forward(s, args, constants)
	n := len(h.prog)
	vals := s.vals[:n]
	bars := s.bars[:n]
	clear(bars)
	bars[n-1] = 1
	partials := s.partials[:h.nargs]
	clear(partials)

	for i := n - 1; i >= 0; i-- {
		in := h.prog[i]
		bar := bars[i]
		switch {
		case in.op == opLeaf:
			partials[in.a] += bar
		case in.op == opConst:
		case in.op.binary():
			da, db := in.op.partials(vals[in.a], vals[in.b], vals[i])
			bars[in.a] += bar * da
			bars[in.b] += bar * db
		default:
			da, _ := in.op.partials(vals[in.a], 0, vals[i])
			bars[in.a] += bar * da
		}
	}
	return v, partials
}

// Compiler extracts the shape, leaves and constants of expressions. The
// buffers are reused between calls.
type Compiler struct {
	key       []byte
	Leaves    []*Real
	Constants []float64
}

// Compile walks e once and returns the handle of its shape. Leaves and
// Constants hold the arguments in slot order until the next call.
func (c *Compiler) Compile(e Expr) (*Handle, error) {
	c.key = c.key[:0]
	c.Leaves = c.Leaves[:0]
	c.Constants = c.Constants[:0]
	c.walk(e)
	if len(c.Leaves) > index.MaxArgumentSize {
		return nil, fmt.Errorf("%w: %d leaves, at most %d", ErrTooManyArguments, len(c.Leaves), index.MaxArgumentSize)
	}
	return lookup(c.key), nil
}

func (c *Compiler) walk(e Expr) {
	switch n := e.(type) {
	case *Real:
		c.key = append(c.key, byte(opLeaf))
		c.Leaves = append(c.Leaves, n)
	case Const:
		c.key = append(c.key, byte(opConst))
		c.Constants = append(c.Constants, float64(n))
	case *unary:
		c.key = append(c.key, byte(n.op))
		c.walk(n.x)
	case *binary:
		c.key = append(c.key, byte(n.op))
		c.walk(n.a)
		c.walk(n.b)
	default:
		panic(fmt.Sprintf("expr: unknown node %T", e))
	}
}

var registry = struct {
	sync.RWMutex
	shapes map[string]*Handle
}{shapes: make(map[string]*Handle)}

func lookup(key []byte) *Handle {
	registry.RLock()
	h, ok := registry.shapes[string(key)]
	registry.RUnlock()
	if ok {
		return h
	}

	registry.Lock()
	defer registry.Unlock()
	if h, ok := registry.shapes[string(key)]; ok {
		return h
	}
	h = compileShape(string(key))
	registry.shapes[h.key] = h
	return h
}

// NumShapes returns the number of distinct expression shapes compiled so far.
func NumShapes() int {
	registry.RLock()
	defer registry.RUnlock()
	return len(registry.shapes)
}

type parser struct {
	key string
	pos int
	h   *Handle
}

func compileShape(key string) *Handle {
	p := &parser{key: key, h: &Handle{key: key, kind: kindShape, modes: AllModes}}
	p.parse()
	if p.pos != len(key) {
		panic("expr: trailing data in shape key " + strconv.Quote(key))
	}
	return p.h
}

func (p *parser) parse() int {
	o := op(p.key[p.pos])
	p.pos++
	h := p.h
	switch {
	case o == opLeaf:
		h.prog = append(h.prog, instr{op: o, a: h.nargs})
		h.nargs++
	case o == opConst:
		h.prog = append(h.prog, instr{op: o, a: h.nconst})
		h.nconst++
	case o.unary():
		a := p.parse()
		h.prog = append(h.prog, instr{op: o, a: a})
	case o.binary():
		a := p.parse()
		b := p.parse()
		h.prog = append(h.prog, instr{op: o, a: a, b: b})
	default:
		panic(fmt.Sprintf("expr: invalid opcode %d in shape key", o))
	}
	return len(h.prog) - 1
}

var jacobianHandles = func() (t [MaxJacobianArguments + 1]*Handle) {
	for n := range t {
		t[n] = &Handle{
			key:    "jacobian/" + strconv.Itoa(n),
			kind:   kindJacobian,
			nargs:  n,
			nconst: n,
			modes:  Reverse,
		}
	}
	return t
}()

// JacobianHandle returns the handle of a pure Jacobian statement with n
// arguments. The Jacobian values are stored as constants. Only reverse replay
// is supported.
func JacobianHandle(n int) *Handle {
	if n < 0 || n > MaxJacobianArguments {
		panic(fmt.Sprintf("expr: Jacobian statement with %d arguments, at most %d", n, MaxJacobianArguments))
	}
	return jacobianHandles[n]
}

// InputHandle marks a registered input. It carries no arguments and is
// skipped by every replay mode.
var InputHandle = &Handle{key: "input", kind: kindInput}
