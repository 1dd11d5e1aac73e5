// Package batch evaluates a recorded function and its gradient at many
// points in parallel, with one tape per worker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/tape"
	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool `yaml:"enabled"`        // Whether parallel execution is enabled.
	NumWorkers   int  `yaml:"num_workers"`    // Number of worker goroutines to use.
	MinChunkSize int  `yaml:"min_chunk_size"` // Minimum points per worker.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16,
	}
}

// For calls f on consecutive chunks [lo, hi) covering [0, n). Chunks run
// concurrently unless parallelism is disabled or n is below MinChunkSize.
// The first error cancels the context passed to the remaining chunks.
func For(ctx context.Context, n int, f func(ctx context.Context, lo, hi int) error, cfg Config) error {
	if n == 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return f(ctx, 0, n)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	for lo := 0; lo < n; lo += chunkSize {
		hi := min(lo+chunkSize, n)
		g.Go(func() error {
			return f(ctx, lo, hi)
		})
	}
	return g.Wait()
}

// Func records a scalar function of the registered inputs x on tp and
// returns its output.
type Func func(tp *tape.Tape, x []*expr.Real) *expr.Real

// Result is the value and gradient of a function at one point.
type Result struct {
	Value    float64
	Gradient []float64
}

// Gradients evaluates f with its gradient at every point. Each worker
// records on its own tape created from tcfg and opts, which it resets
// between points.
//
// A tape error raised while recording or evaluating stops the batch and is
// returned.
func Gradients(ctx context.Context, f Func, points [][]float64, tcfg tape.Config, cfg Config, opts ...tape.Option) ([]Result, error) {
	results := make([]Result, len(points))
	err := For(ctx, len(points), func(ctx context.Context, lo, hi int) error {
		tp := tape.New(tcfg, opts...)
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := gradient(tp, f, points[i])
			if err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
			results[i] = r
		}
		return nil
	}, cfg)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func gradient(tp *tape.Tape, f Func, point []float64) (r Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var te *tape.Error
			if e, ok := rec.(error); ok && errors.As(e, &te) {
				err = te
				return
			}
			panic(rec)
		}
	}()

	tp.Reset(true)
	tp.StartRecording()
	x := make([]*expr.Real, len(point))
	for k, v := range point {
		x[k] = expr.NewReal(v)
		tp.RegisterInput(x[k])
	}
	y := f(tp, x)
	tp.RegisterOutput(y)
	tp.StopRecording()

	tp.SetGradient(y.Identifier(), 1)
	tp.Evaluate()

	r.Value = y.Value()
	r.Gradient = make([]float64, len(x))
	for k, xk := range x {
		r.Gradient[k] = tp.Gradient(xk.Identifier())
		tp.DeactivateValue(xk)
	}
	tp.DeactivateValue(y)
	return r, nil
}
