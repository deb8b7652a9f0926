// Package cluster implements a damped k-means engine for 2D points.
//
// Unlike Lloyd's algorithm, centers do not snap to the mean of their assigned
// points. Each iteration moves a center by a fixed fraction (the learning
// rate) of the mean vector from the center to its points, so centers approach
// their cluster mean gradually.
package cluster

import (
	"fmt"
)

// Result is the outcome of one clustering call. Centers keep the order in
// which they were sampled; Labels follow the input point order.
type Result struct {
	Centers    []Point `json:"centers"`
	Labels     []int   `json:"labels"`
	Iterations int     `json:"iterations"`
	Reseeded   int     `json:"reseeded"`
	Inertia    float64 `json:"inertia"`
}

// Sizes returns the number of points labeled with each center.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Centers))
	for _, l := range r.Labels {
		if l >= 0 && l < len(sizes) {
			sizes[l]++
		}
	}
	return sizes
}

// Cluster partitions points around numCenters centers, running exactly
// iterations update steps.
//
// Centers start as copies of points drawn uniformly at random with
// replacement. With iterations == 0 the centers are returned unchanged and
// the labels come from a single assignment pass against them.
func Cluster(points []Point, numCenters, iterations int, opts ...Option) (*Result, error) {
	if err := validate(points, numCenters, iterations); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	centers := initCenters(points, numCenters, o)
	labels := make([]int, len(points))
	sums := make([]Point, numCenters)
	counts := make([]int, numCenters)
	reseeded := 0

	for iter := 0; iter < iterations; iter++ {
		if o.ctx != nil {
			if err := o.ctx.Err(); err != nil {
				return nil, fmt.Errorf("clustering stopped after %d iterations: %w", iter, err)
			}
		}

		for j := range sums {
			sums[j] = Point{}
			counts[j] = 0
		}

		// Assignment step
		for i, p := range points {
			best := Nearest(p, centers)
			labels[i] = best
			v := p.Sub(centers[best])
			sums[best].X += v.X
			sums[best].Y += v.Y
			counts[best]++
		}

		// Update step
		for j := range centers {
			if counts[j] == 0 {
				if o.emptyPolicy == EmptyReseed {
					centers[j] = points[o.rng.IntN(len(points))]
					reseeded++
				}
				continue
			}
			n := float64(counts[j])
			centers[j].X += o.learningRate * (sums[j].X / n)
			centers[j].Y += o.learningRate * (sums[j].Y / n)
		}
	}

	if iterations == 0 {
		labels = Assign(points, centers)
	}

	return &Result{
		Centers:    centers,
		Labels:     labels,
		Iterations: iterations,
		Reseeded:   reseeded,
		Inertia:    Inertia(points, centers, labels),
	}, nil
}

// initCenters samples numCenters points with replacement. Point is a value
// type, so the copies never alias the input.
func initCenters(points []Point, numCenters int, o options) []Point {
	centers := make([]Point, numCenters)
	for i := range centers {
		centers[i] = points[o.rng.IntN(len(points))]
	}
	return centers
}
