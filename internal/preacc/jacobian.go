// Package preacc collapses a recorded region of a tape into its Jacobian and
// records the Jacobian back as a few compact statements.
package preacc

import "fmt"

// Jacobian is a dense row-major m×n matrix that counts the non-zero entries
// of every row.
type Jacobian struct {
	m, n     int
	values   []float64
	nonZeros []int
}

// NewJacobian creates a zero m×n Jacobian.
func NewJacobian(m, n int) *Jacobian {
	j := &Jacobian{}
	j.Resize(m, n)
	return j
}

// M returns the number of rows (outputs).
func (j *Jacobian) M() int { return j.m }

// N returns the number of columns (inputs).
func (j *Jacobian) N() int { return j.n }

// Resize changes the shape to m×n and zeroes every entry.
func (j *Jacobian) Resize(m, n int) {
	if m < 0 || n < 0 {
		panic(fmt.Sprintf("preacc: invalid Jacobian shape %dx%d", m, n))
	}
	j.m, j.n = m, n
	if cap(j.values) < m*n {
		j.values = make([]float64, m*n)
	} else {
		j.values = j.values[:m*n]
		clear(j.values)
	}
	if cap(j.nonZeros) < m {
		j.nonZeros = make([]int, m)
	} else {
		j.nonZeros = j.nonZeros[:m]
		clear(j.nonZeros)
	}
}

// At returns entry (i, k).
func (j *Jacobian) At(i, k int) float64 {
	return j.values[j.offset(i, k)]
}

// Set stores entry (i, k) and keeps the row's non-zero count current.
func (j *Jacobian) Set(i, k int, v float64) {
	off := j.offset(i, k)
	switch old := j.values[off]; {
	case old == 0 && v != 0:
		j.nonZeros[i]++
	case old != 0 && v == 0:
		j.nonZeros[i]--
	}
	j.values[off] = v
}

// NonZerosRow returns the number of non-zero entries in row i.
func (j *Jacobian) NonZerosRow(i int) int {
	return j.nonZeros[i]
}

func (j *Jacobian) offset(i, k int) int {
	if i < 0 || i >= j.m || k < 0 || k >= j.n {
		panic(fmt.Sprintf("preacc: index (%d, %d) out of range for %dx%d Jacobian", i, k, j.m, j.n))
	}
	return i*j.n + k
}
