// Package cluster implements the "pointlab cluster" command.
package cluster

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pointlab/pointlab/cmd/pointlab/input"
	engine "github.com/pointlab/pointlab/internal/cluster"
	"github.com/pointlab/pointlab/internal/palette"
)

// Output is the JSON document printed by the command.
type Output struct {
	Algorithm    engine.Algorithm `json:"algorithm"`
	Seed         *uint64          `json:"seed,omitempty"`
	Centers      [][2]float64     `json:"centers"`
	CenterColors []string         `json:"center_colors"`
	Labels       []int            `json:"labels"`
	Sizes        []int            `json:"sizes"`
	Iterations   int              `json:"iterations"`
	Reseeded     int              `json:"reseeded"`
	Inertia      float64          `json:"inertia"`
}

func Run(args []string) {
	if err := run(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cluster", flag.ContinueOnError)
	in := fs.String("in", "", "Point file (.json or .csv, - for JSON on stdin)")
	k := fs.Int("k", 3, "Number of clusters")
	iterations := fs.Int("iterations", 10, "Number of update iterations")
	seed := fs.Uint64("seed", 0, "Random seed (drawn at random and printed when omitted)")
	lr := fs.Float64("lr", engine.DefaultLearningRate, "Learning rate in (0, 1]")
	reseed := fs.Bool("reseed", false, "Move empty clusters onto a random point")
	algorithm := fs.String("algorithm", string(engine.AlgorithmDamped), "damped or lloyd")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}
	seeded := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seeded = true
		}
	})
	if !seeded {
		*seed = rand.Uint64()
	}

	algo, err := engine.ParseAlgorithm(*algorithm)
	if err != nil {
		return err
	}
	points, err := input.ReadFile(*in)
	if err != nil {
		return err
	}

	out := Output{Algorithm: algo}
	var res *engine.Result
	switch algo {
	case engine.AlgorithmLloyd:
		res, err = engine.Baseline(points, *k)
	default:
		policy := engine.EmptySkip
		if *reseed {
			policy = engine.EmptyReseed
		}
		s := *seed
		out.Seed = &s
		res, err = engine.Cluster(points, *k, *iterations,
			engine.WithSeed(s),
			engine.WithLearningRate(*lr),
			engine.WithEmptyPolicy(policy),
		)
	}
	if err != nil {
		return err
	}

	out.Centers = make([][2]float64, len(res.Centers))
	for i, c := range res.Centers {
		out.Centers[i] = [2]float64{c.X, c.Y}
	}
	out.CenterColors = palette.Default().Sequence(len(res.Centers))
	out.Labels = res.Labels
	out.Sizes = res.Sizes()
	out.Iterations = res.Iterations
	out.Reseeded = res.Reseeded
	out.Inertia = res.Inertia

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
