package cluster

import (
	"fmt"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Algorithm names a clustering implementation.
type Algorithm string

const (
	// AlgorithmDamped is the learning-rate engine implemented by Cluster.
	AlgorithmDamped Algorithm = "damped"

	// AlgorithmLloyd is textbook Lloyd k-means, run by Baseline.
	AlgorithmLloyd Algorithm = "lloyd"
)

// ParseAlgorithm parses an algorithm name. The empty string maps to
// AlgorithmDamped.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgorithmDamped:
		return AlgorithmDamped, nil
	case AlgorithmLloyd:
		return AlgorithmLloyd, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidOption, s)
	}
}

// Baseline clusters points with standard Lloyd iterations until the
// assignment stabilizes. It exists to compare the damped engine against the
// textbook algorithm. Initialization is not seedable, so results vary between
// calls.
func Baseline(points []Point, k int) (*Result, error) {
	if err := validate(points, k, 0); err != nil {
		return nil, err
	}
	if k > len(points) {
		return nil, fmt.Errorf("%w: lloyd needs at least k=%d points, got %d", ErrInvalidArgument, k, len(points))
	}

	dataset := make(clusters.Observations, len(points))
	for i, p := range points {
		dataset[i] = clusters.Coordinates{p.X, p.Y}
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	centers := make([]Point, len(cc))
	for i, c := range cc {
		centers[i] = Point{X: c.Center[0], Y: c.Center[1]}
	}
	labels := Assign(points, centers)

	return &Result{
		Centers: centers,
		Labels:  labels,
		Inertia: Inertia(points, centers, labels),
	}, nil
}
