package cluster

import "errors"

var (
	// ErrInvalidArgument is returned when the engine is asked to cluster an
	// empty point set, fewer than one center, a negative iteration count or
	// non-finite coordinates.
	ErrInvalidArgument = errors.New("invalid clustering argument")

	// ErrInvalidOption is returned when an option carries an unusable value.
	ErrInvalidOption = errors.New("invalid clustering option")
)
