package cluster

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SweepPoint is the outcome of one k in a sweep.
type SweepPoint struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
	Result  *Result `json:"-"`
}

// SweepOptions configures Sweep.
type SweepOptions struct {
	// Seed derives a per-k random source so a sweep is reproducible.
	Seed uint64
	// LearningRate defaults to DefaultLearningRate when zero.
	LearningRate float64
	// EmptyPolicy defaults to DefaultEmptyPolicy when empty.
	EmptyPolicy EmptyPolicy
	// Concurrency caps parallel runs. Zero means GOMAXPROCS.
	Concurrency int
}

// Sweep clusters points once per value in ks and reports the inertia of each
// run, in the order of ks.
func Sweep(ctx context.Context, points []Point, ks []int, iterations int, opts SweepOptions) ([]SweepPoint, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: no cluster counts to sweep", ErrInvalidArgument)
	}
	for _, k := range ks {
		if err := validate(points, k, iterations); err != nil {
			return nil, err
		}
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	out := make([]SweepPoint, len(ks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, k := range ks {
		g.Go(func() error {
			runOpts := []Option{
				WithSeed(opts.Seed + uint64(k)),
				WithContext(gctx),
			}
			if opts.LearningRate != 0 {
				runOpts = append(runOpts, WithLearningRate(opts.LearningRate))
			}
			if opts.EmptyPolicy != "" {
				runOpts = append(runOpts, WithEmptyPolicy(opts.EmptyPolicy))
			}
			res, err := Cluster(points, k, iterations, runOpts...)
			if err != nil {
				return fmt.Errorf("k=%d: %w", k, err)
			}
			out[i] = SweepPoint{K: k, Inertia: res.Inertia, Result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// KRange returns the cluster counts lo through hi inclusive.
func KRange(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	ks := make([]int, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		ks = append(ks, k)
	}
	return ks
}
