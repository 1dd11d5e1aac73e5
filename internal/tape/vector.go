package tape

import (
	"slices"

	"github.com/born-ml/adtape/internal/index"
)

// VectorAccess is an adjoint or tangent vector that sweeps read and update.
// The tape's own vector is a Scalar; callers may evaluate with any other
// implementation, which only has to stay valid for the duration of a sweep.
type VectorAccess interface {
	// Dim returns the number of components per identifier.
	Dim() int

	// Resize makes identifiers below n addressable. It never shrinks.
	Resize(n int)

	// TakeAdjoint moves the adjoint of id into dst and zeroes it. It reports
	// whether any component was non-zero.
	TakeAdjoint(id index.Identifier, dst []float64) bool

	// AddAdjoint adds jacobian * lhs to the adjoint of id.
	AddAdjoint(id index.Identifier, jacobian float64, lhs []float64)

	// AddTangent adds jacobian * tangent(id) to dst.
	AddTangent(dst []float64, jacobian float64, id index.Identifier)

	// SetTangent stores src as the tangent of id.
	SetTangent(id index.Identifier, src []float64)
}

// Scalar is a vector with one component per identifier.
type Scalar struct {
	Values []float64
}

// Dim implements VectorAccess.
func (s *Scalar) Dim() int { return 1 }

// Resize implements VectorAccess.
func (s *Scalar) Resize(n int) { s.Values = grow(s.Values, n) }

// TakeAdjoint implements VectorAccess.
func (s *Scalar) TakeAdjoint(id index.Identifier, dst []float64) bool {
	dst[0] = s.Values[id]
	s.Values[id] = 0
	return dst[0] != 0
}

// AddAdjoint implements VectorAccess.
func (s *Scalar) AddAdjoint(id index.Identifier, jacobian float64, lhs []float64) {
	s.Values[id] += jacobian * lhs[0]
}

// AddTangent implements VectorAccess.
func (s *Scalar) AddTangent(dst []float64, jacobian float64, id index.Identifier) {
	dst[0] += jacobian * s.Values[id]
}

// SetTangent implements VectorAccess.
func (s *Scalar) SetTangent(id index.Identifier, src []float64) {
	s.Values[id] = src[0]
}

// Directions holds several adjoint or tangent directions per identifier,
// stored contiguously per identifier.
type Directions struct {
	dim    int
	Values []float64
}

// NewDirections creates an empty vector with dim directions.
func NewDirections(dim int) *Directions {
	if dim < 1 {
		panic("tape: directions need at least one component")
	}
	return &Directions{dim: dim}
}

// Dim implements VectorAccess.
func (d *Directions) Dim() int { return d.dim }

// Len returns the number of addressable identifiers.
func (d *Directions) Len() int { return len(d.Values) / d.dim }

// At returns component k of identifier id.
func (d *Directions) At(id index.Identifier, k int) float64 {
	if i := int(id)*d.dim + k; i < len(d.Values) {
		return d.Values[i]
	}
	return 0
}

// Set stores component k of identifier id, growing the vector as needed.
func (d *Directions) Set(id index.Identifier, k int, v float64) {
	d.Resize(int(id) + 1)
	d.Values[int(id)*d.dim+k] = v
}

// Clear zeroes every component.
func (d *Directions) Clear() { clear(d.Values) }

// Resize implements VectorAccess.
func (d *Directions) Resize(n int) { d.Values = grow(d.Values, n*d.dim) }

func (d *Directions) slot(id index.Identifier) []float64 {
	i := int(id) * d.dim
	return d.Values[i : i+d.dim : i+d.dim]
}

// TakeAdjoint implements VectorAccess.
func (d *Directions) TakeAdjoint(id index.Identifier, dst []float64) bool {
	v := d.slot(id)
	copy(dst, v)
	nonZero := false
	for k := range v {
		if v[k] != 0 {
			nonZero = true
		}
		v[k] = 0
	}
	return nonZero
}

// AddAdjoint implements VectorAccess.
func (d *Directions) AddAdjoint(id index.Identifier, jacobian float64, lhs []float64) {
	v := d.slot(id)
	for k := range v {
		v[k] += jacobian * lhs[k]
	}
}

// AddTangent implements VectorAccess.
func (d *Directions) AddTangent(dst []float64, jacobian float64, id index.Identifier) {
	v := d.slot(id)
	for k := range v {
		dst[k] += jacobian * v[k]
	}
}

// SetTangent implements VectorAccess.
func (d *Directions) SetTangent(id index.Identifier, src []float64) {
	copy(d.slot(id), src)
}

// grow extends v to exactly n zeroed entries. Capacity grows amortized.
func grow(v []float64, n int) []float64 {
	if n <= len(v) {
		return v
	}
	old := len(v)
	v = slices.Grow(v, n-old)[:n]
	clear(v[old:])
	return v
}

// resize sets the length of v to n. Shrinking releases the old storage.
func resize(v []float64, n int) []float64 {
	if n >= len(v) {
		return grow(v, n)
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}
