// Package main provides the adtape CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/born-ml/adtape/internal/batch"
	"github.com/born-ml/adtape/internal/config"
	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/logging"
	"github.com/born-ml/adtape/internal/preacc"
	"github.com/born-ml/adtape/internal/stats"
	"github.com/born-ml/adtape/internal/tape"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "v0.1.0-dev"

func usage() {
	fmt.Println("adtape - algorithmic differentiation tape")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                  Show version")
	fmt.Println("  demo  [-config file]     Gradient of a small function, reverse and forward")
	fmt.Println("  batch [-config file] [-n points]")
	fmt.Println("                           Rosenbrock gradients on a grid, one tape per worker")
	fmt.Println("  stats [-config file] [-serve addr]")
	fmt.Println("                           Tape statistics, optionally served as Prometheus metrics")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("adtape %s\n", version)
	case "demo":
		err = runDemo(args)
	case "batch":
		err = runBatch(args)
	case "stats":
		err = runStats(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "adtape: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration named by -config and builds the logger.
func setup(fs *flag.FlagSet, args []string) (config.Config, *slog.Logger, func() error, error) {
	path := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, nil, nil, err
		}
	}
	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

// record computes f(x, y) = x sin(y) + exp(x/y) - 3x^2 with the middle
// term preaccumulated.
func record(tp *tape.Tape, x, y *expr.Real) *expr.Real {
	h := preacc.NewHelper(tp)
	h.Start(x, y)
	q := expr.NewReal(0)
	tp.Assign(q, expr.Div(x, y))
	tp.Assign(q, expr.Exp(q))
	h.Finish(false, q)

	f := expr.NewReal(0)
	tp.Assign(f, expr.Sum(expr.Mul(x, expr.Sin(y)), q, expr.Scale(-3, expr.Square(x))))
	tp.RegisterOutput(f)
	return f
}

func runDemo(args []string) error {
	cfg, logger, closeLog, err := setup(flag.NewFlagSet("demo", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	defer closeLog()

	tp, err := cfg.NewTape(tape.WithLogger(logger))
	if err != nil {
		return err
	}
	x, y := expr.NewReal(1.3), expr.NewReal(0.7)
	tp.StartRecording()
	tp.RegisterInput(x)
	tp.RegisterInput(y)
	f := record(tp, x, y)
	tp.StopRecording()

	tp.SetGradient(f.Identifier(), 1)
	tp.Evaluate()
	fmt.Printf("policy       %v\n", cfg.Tape.Policy)
	fmt.Printf("f(x, y)      %.10f\n", f.Value())
	fmt.Printf("reverse      df/dx = %.10f  df/dy = %.10f\n",
		tp.Gradient(x.Identifier()), tp.Gradient(y.Identifier()))

	// The preaccumulated Jacobian statement only replays backward; record
	// again without it for the forward sweep.
	tp.DeactivateValue(x)
	tp.DeactivateValue(y)
	tp.Reset(true)
	tp.StartRecording()
	tp.RegisterInput(x)
	tp.RegisterInput(y)
	g := expr.NewReal(0)
	tp.Assign(g, expr.Sum(expr.Mul(x, expr.Sin(y)), expr.Exp(expr.Div(x, y)), expr.Scale(-3, expr.Square(x))))
	tp.StopRecording()

	tp.SetGradient(x.Identifier(), 1)
	tp.EvaluateForward(tp.Start(), tp.Position())
	fmt.Printf("forward      df/dx = %.10f\n", tp.Gradient(g.Identifier()))
	return nil
}

func rosenbrock(tp *tape.Tape, x []*expr.Real) *expr.Real {
	f := expr.NewReal(0)
	tp.Assign(f, expr.Add(
		expr.Square(expr.Sub(expr.Const(1), x[0])),
		expr.Scale(100, expr.Square(expr.Sub(x[1], expr.Square(x[0]))))))
	return f
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	n := fs.Int("n", 64, "grid points per axis")
	cfg, logger, closeLog, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer closeLog()
	if *n < 2 {
		return fmt.Errorf("need at least 2 points per axis, got %d", *n)
	}

	points := make([][]float64, 0, *n**n)
	for i := range *n {
		for j := range *n {
			points = append(points, []float64{
				-2 + 4*float64(i)/float64(*n-1),
				-1 + 4*float64(j)/float64(*n-1),
			})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results, err := batch.Gradients(ctx, rosenbrock, points, cfg.Tape, cfg.Batch, tape.WithLogger(logger))
	if err != nil {
		return err
	}

	best := 0
	for i, r := range results {
		if r.Value < results[best].Value {
			best = i
		}
	}
	r := results[best]
	fmt.Printf("points       %d\n", len(points))
	fmt.Printf("workers      %d (enabled %v)\n", cfg.Batch.NumWorkers, cfg.Batch.Enabled)
	fmt.Printf("best         f(%.4f, %.4f) = %.6g\n", points[best][0], points[best][1], r.Value)
	fmt.Printf("gradient     (%.6g, %.6g)\n", r.Gradient[0], r.Gradient[1])
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("serve", "", "serve Prometheus metrics on this address")
	cfg, logger, closeLog, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer closeLog()

	tp, err := cfg.NewTape(tape.WithLogger(logger))
	if err != nil {
		return err
	}
	x, y := expr.NewReal(1.3), expr.NewReal(0.7)
	tp.StartRecording()
	tp.RegisterInput(x)
	tp.RegisterInput(y)
	f := record(tp, x, y)
	tp.StopRecording()
	tp.SetGradient(f.Identifier(), 1)
	tp.Evaluate()

	if _, err := tp.Statistics().WriteTo(os.Stdout); err != nil {
		return err
	}
	if *addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewCollector("adtape", tp))
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
