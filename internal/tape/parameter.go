package tape

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/adtape/internal/chunk"
	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/stats"
)

// Parameter names a tunable size of a tape.
type Parameter int

// Tape parameters. Sizes count entries, not bytes.
const (
	// AdjointSize is the length of the adjoint vector.
	AdjointSize Parameter = iota
	// PrimalSize is the length of the primal vector.
	PrimalSize
	// StatementSize is the number of recorded statements.
	StatementSize
	// RhsIdentifiersSize is the number of recorded argument identifiers.
	RhsIdentifiersSize
	// PassiveValuesSize is the number of recorded passive argument values.
	PassiveValuesSize
	// ConstantValuesSize is the number of recorded constants.
	ConstantValuesSize
	// LargestIdentifier is the largest identifier handed out. Read-only.
	LargestIdentifier
)

var parameterNames = [...]string{
	AdjointSize:        "adjoint_size",
	PrimalSize:         "primal_size",
	StatementSize:      "statement_size",
	RhsIdentifiersSize: "rhs_identifiers_size",
	PassiveValuesSize:  "passive_values_size",
	ConstantValuesSize: "constant_values_size",
	LargestIdentifier:  "largest_identifier",
}

// String returns the configuration name of p.
func (p Parameter) String() string {
	if p >= 0 && int(p) < len(parameterNames) {
		return parameterNames[p]
	}
	return fmt.Sprintf("Parameter(%d)", int(p))
}

// ParseParameter looks a parameter up by name, e.g. "statement_size".
func ParseParameter(name string) (Parameter, error) {
	for p, n := range parameterNames {
		if n == name {
			return Parameter(p), nil
		}
	}
	return 0, fmt.Errorf("unknown tape parameter %q", name)
}

// Parameter returns the current value of p. Vector parameters report their
// length, store parameters the number of stored records.
func (t *Tape) Parameter(p Parameter) int {
	switch p {
	case AdjointSize:
		return len(t.adjoints.Values)
	case PrimalSize:
		return len(t.primals)
	case StatementSize:
		return t.statements.Size()
	case RhsIdentifiersSize:
		return t.identifiers.Size()
	case PassiveValuesSize:
		return t.passives.Size()
	case ConstantValuesSize:
		return t.constants.Size()
	case LargestIdentifier:
		return int(t.index.LargestAssignedIndex())
	}
	fail("Parameter", fmt.Errorf("%v: %w", p, ErrUnsupported))
	return 0
}

// SetParameter resizes the storage behind p. Stores cannot shrink below
// their content and the primal vector not below the largest identifier.
func (t *Tape) SetParameter(p Parameter, v int) {
	const op = "SetParameter"
	var err error
	switch p {
	case AdjointSize:
		t.adjoints.Values = resize(t.adjoints.Values, v)
	case PrimalSize:
		if v <= int(t.index.LargestAssignedIndex()) {
			err = chunk.ErrShrinkBelowSize
			break
		}
		t.primals = resize(t.primals, v)
	case StatementSize:
		err = t.statements.Resize(v)
	case RhsIdentifiersSize:
		err = t.identifiers.Resize(v)
	case PassiveValuesSize:
		err = t.passives.Resize(v)
	case ConstantValuesSize:
		err = t.constants.Resize(v)
	case LargestIdentifier:
		err = ErrReadOnlyParameter
	default:
		err = ErrUnsupported
	}
	if err != nil {
		fail(op, fmt.Errorf("%v: %w", p, err))
	}
}

// Statistics reports the occupancy and memory of every vector and store.
func (t *Tape) Statistics() *stats.Values {
	size := int(unsafe.Sizeof(float64(0)))
	v := stats.New("Tape statistics", t.id.String())

	s := v.AddSection("Adjoint vector")
	s.AddInt("Number of adjoints", len(t.adjoints.Values))
	s.AddMemory("Memory allocated", cap(t.adjoints.Values)*size, true)

	s = v.AddSection("Primal vector")
	s.AddInt("Number of primals", len(t.primals))
	s.AddMemory("Memory allocated", (cap(t.primals)+cap(t.primalCopy))*size, true)

	t.index.AddStats(v.AddSection("Index manager"))
	t.statements.AddStats(v.AddSection("Statement entries"))
	t.identifiers.AddStats(v.AddSection("Rhs identifiers entries"))
	t.passives.AddStats(v.AddSection("Passive data entries"))
	t.constants.AddStats(v.AddSection("Constant data entries"))

	s = v.AddSection("Expression shapes")
	s.AddInt("Compiled shapes", expr.NumShapes())
	if n := t.statements.Size(); n > 0 {
		s.AddFloat("Arguments per statement", float64(t.identifiers.Size())/float64(n))
	}
	return v
}
