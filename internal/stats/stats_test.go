package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct{ v *Values }

func (f fixedSource) Statistics() *Values { return f.v }

func sampleValues(id string) *Values {
	v := New("Tape statistics", id)
	s := v.AddSection("Adjoint vector")
	s.AddInt("Number of adjoints", 300)
	s.AddMemory("Memory allocated", 300*8, true)
	s = v.AddSection("Statement entries")
	s.AddInt("Total number", 12)
	s.AddMemory("Memory used", 1024*1024, false)
	s.AddMemory("Memory allocated", 2*1024*1024, true)
	return v
}

func TestValues_Lookup(t *testing.T) {
	v := sampleValues("a")

	e, ok := v.Lookup("Statement entries", "Total number")
	require.True(t, ok)
	assert.Equal(t, 12.0, e.Value)
	assert.True(t, e.Integer)

	_, ok = v.Lookup("Statement entries", "missing")
	assert.False(t, ok)
}

func TestValues_TotalMemory(t *testing.T) {
	v := sampleValues("a")
	expected := 300*8*ByteToMB + 2.0
	assert.InDelta(t, expected, v.TotalMemory(), 1e-12)
}

func TestValues_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := sampleValues("tape-1").WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	assert.Contains(t, out, "Tape statistics [tape-1]")
	assert.Contains(t, out, "Number of adjoints")
	assert.Contains(t, out, "Total memory")
	assert.True(t, strings.Count(out, "MB") >= 4)
}

func TestMetricName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Adjoint vector", "adjoint_vector"},
		{"Number of adjoints", "number_of_adjoints"},
		{"Rhs identifiers entries", "rhs_identifiers_entries"},
		{"  Memory  (used) ", "memory_used"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.in), tt.in)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector("adtape", fixedSource{sampleValues("a")})
	c.Add(fixedSource{sampleValues("b")})

	// 5 entries per report, two reports.
	assert.Equal(t, 10, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "adtape_statement_entries_total_number"))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "adtape_adjoint_vector_memory_allocated_megabytes")
}
