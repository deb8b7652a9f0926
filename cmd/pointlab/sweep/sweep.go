// Package sweep implements the "pointlab sweep" command, which prints one
// inertia line per cluster count so an elbow can be read off the output.
package sweep

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pointlab/pointlab/cmd/pointlab/input"
	engine "github.com/pointlab/pointlab/internal/cluster"
)

func Run(args []string) {
	if err := run(context.Background(), args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	in := fs.String("in", "", "Point file (.json or .csv, - for JSON on stdin)")
	kmin := fs.Int("kmin", 1, "Smallest cluster count")
	kmax := fs.Int("kmax", 8, "Largest cluster count")
	iterations := fs.Int("iterations", 10, "Number of update iterations per run")
	seed := fs.Uint64("seed", 1, "Base random seed")
	lr := fs.Float64("lr", engine.DefaultLearningRate, "Learning rate in (0, 1]")
	concurrency := fs.Int("concurrency", 0, "Parallel runs (0 means GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}
	if *kmin < 1 || *kmax < *kmin {
		return fmt.Errorf("invalid k range %d..%d", *kmin, *kmax)
	}

	points, err := input.ReadFile(*in)
	if err != nil {
		return err
	}

	results, err := engine.Sweep(ctx, points, engine.KRange(*kmin, *kmax), *iterations, engine.SweepOptions{
		Seed:         *seed,
		LearningRate: *lr,
		Concurrency:  *concurrency,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "K\tINERTIA\tRESEEDED")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%d\n", r.K, r.Inertia, r.Result.Reseeded)
	}
	return tw.Flush()
}
