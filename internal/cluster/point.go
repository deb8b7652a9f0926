package cluster

import (
	"fmt"
	"math"
)

// MaxCoordinate bounds the magnitude of input coordinates so that
// differences, squared distances and inertia stay finite.
const MaxCoordinate = 1e150

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// InRange reports whether both coordinates are finite and within
// MaxCoordinate of the origin on each axis.
func (p Point) InRange() bool {
	return p.IsFinite() && math.Abs(p.X) <= MaxCoordinate && math.Abs(p.Y) <= MaxCoordinate
}

// SquaredDistance returns dx² + dy². Only relative ordering matters for
// nearest-center lookups, so no square root is taken.
func SquaredDistance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Nearest returns the index of the center closest to p. On ties the lowest
// index wins. Returns -1 if centers is empty.
func Nearest(p Point, centers []Point) int {
	best := -1
	minDist := math.MaxFloat64
	for i, c := range centers {
		d := SquaredDistance(p, c)
		if best == -1 || d < minDist {
			minDist = d
			best = i
		}
	}
	return best
}

// Assign labels every point with its nearest center.
func Assign(points, centers []Point) []int {
	labels := make([]int, len(points))
	for i, p := range points {
		labels[i] = Nearest(p, centers)
	}
	return labels
}

// Inertia returns the sum of squared distances between each point and the
// center it is labeled with.
func Inertia(points, centers []Point, labels []int) float64 {
	var total float64
	for i, p := range points {
		if i >= len(labels) {
			break
		}
		l := labels[i]
		if l < 0 || l >= len(centers) {
			continue
		}
		total += SquaredDistance(p, centers[l])
	}
	return total
}

func validate(points []Point, numCenters, iterations int) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: point set is empty", ErrInvalidArgument)
	}
	if numCenters < 1 {
		return fmt.Errorf("%w: number of centers must be at least 1, got %d", ErrInvalidArgument, numCenters)
	}
	if iterations < 0 {
		return fmt.Errorf("%w: iterations must not be negative, got %d", ErrInvalidArgument, iterations)
	}
	for i, p := range points {
		if !p.IsFinite() {
			return fmt.Errorf("%w: point %d has non-finite coordinates", ErrInvalidArgument, i)
		}
		if !p.InRange() {
			return fmt.Errorf("%w: point %d exceeds coordinate limit %g", ErrInvalidArgument, i, MaxCoordinate)
		}
	}
	return nil
}
