package ad_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/born-ml/adtape/ad"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Example() {
	t := ad.NewTape(ad.DefaultConfig())
	x, y := ad.NewReal(2), ad.NewReal(3)

	t.StartRecording()
	t.RegisterInput(x)
	t.RegisterInput(y)
	z := ad.NewReal(0)
	t.Assign(z, ad.Mul(x, ad.Sin(y)))
	t.RegisterOutput(z)
	t.StopRecording()

	t.SetGradient(z.Identifier(), 1)
	t.Evaluate()
	fmt.Printf("z = %.4f\n", z.Value())
	fmt.Printf("dz/dx = %.4f\n", t.Gradient(x.Identifier()))
	fmt.Printf("dz/dy = %.4f\n", t.Gradient(y.Identifier()))
	// Output:
	// z = 0.2822
	// dz/dx = 0.1411
	// dz/dy = -1.9800
}

func ExamplePreaccumulationHelper() {
	t := ad.NewTape(ad.DefaultConfig())
	t.StartRecording()
	x := ad.NewReal(0.5)
	t.RegisterInput(x)

	h := ad.NewPreaccumulationHelper(t)
	h.Start(x)
	u := ad.NewReal(0)
	for range 10 {
		t.Assign(u, ad.Add(ad.Sin(u), x))
	}
	h.Finish(false, u)
	t.StopRecording()

	t.SetGradient(u.Identifier(), 1)
	t.Evaluate()
	fmt.Println("statements:", t.Parameter(ad.StatementSize))
	// Output:
	// statements: 2
}

func TestFacade_Policies(t *testing.T) {
	for _, policy := range []ad.Policy{ad.Linear, ad.Reuse} {
		cfg := ad.DefaultConfig()
		cfg.Policy = policy
		tp := ad.NewTape(cfg)
		tp.StartRecording()
		x := ad.NewReal(1.5)
		tp.RegisterInput(x)
		y := ad.NewReal(0)
		tp.Assign(y, ad.Pow(x, ad.Const(3)))

		dirs := ad.NewDirections(1)
		dirs.Set(x.Identifier(), 0, 1)
		tp.EvaluateForwardWith(tp.Start(), tp.Position(), dirs)
		assert.InDelta(t, 3*1.5*1.5, dirs.At(y.Identifier(), 0), 1e-12)
		assert.InDelta(t, math.Pow(1.5, 3), y.Value(), 1e-12)
	}
}

func TestFacade_StatisticsCollector(t *testing.T) {
	tp := ad.NewTape(ad.DefaultConfig())
	c := ad.NewStatisticsCollector("adtape", tp)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)

	var sb strings.Builder
	_, err = tp.Statistics().WriteTo(&sb)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "Statement entries")
}
