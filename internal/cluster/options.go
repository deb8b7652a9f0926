package cluster

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultLearningRate is the fraction of the mean displacement a center moves
// per iteration.
const DefaultLearningRate = 0.01

// EmptyPolicy decides what happens to a center that received no points in an
// iteration.
type EmptyPolicy string

const (
	// EmptySkip leaves the center where it is for that iteration.
	EmptySkip EmptyPolicy = "skip"

	// EmptyReseed moves the center onto a randomly chosen input point.
	EmptyReseed EmptyPolicy = "reseed"
)

// DefaultEmptyPolicy is used when no policy is specified.
const DefaultEmptyPolicy = EmptySkip

// IsValid returns true if the policy is a recognized value.
func (p EmptyPolicy) IsValid() bool {
	switch p {
	case EmptySkip, EmptyReseed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the policy.
func (p EmptyPolicy) String() string {
	return string(p)
}

// ParseEmptyPolicy parses a string into an EmptyPolicy. The empty string maps
// to DefaultEmptyPolicy.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	if s == "" {
		return DefaultEmptyPolicy, nil
	}
	p := EmptyPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown empty cluster policy %q", ErrInvalidOption, s)
	}
	return p, nil
}

type options struct {
	ctx          context.Context
	rng          *rand.Rand
	learningRate float64
	emptyPolicy  EmptyPolicy
}

// Option configures a single clustering call.
type Option func(*options) error

func defaultOptions() options {
	return options{
		learningRate: DefaultLearningRate,
		emptyPolicy:  DefaultEmptyPolicy,
	}
}

func buildOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return o, err
		}
	}
	if o.rng == nil {
		o.rng = NewRand(uint64(time.Now().UnixNano()))
	}
	return o, nil
}

// NewRand returns a PCG-backed generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// WithRand sets the random source used for center initialization and
// reseeding. The generator is not safe for concurrent use, so it must not be
// shared between concurrent calls.
func WithRand(r *rand.Rand) Option {
	return func(o *options) error {
		if r == nil {
			return fmt.Errorf("%w: nil random source", ErrInvalidOption)
		}
		o.rng = r
		return nil
	}
}

// WithSeed seeds a fresh random source.
func WithSeed(seed uint64) Option {
	return func(o *options) error {
		o.rng = NewRand(seed)
		return nil
	}
}

// WithLearningRate overrides DefaultLearningRate. The rate must be in (0, 1].
func WithLearningRate(rate float64) Option {
	return func(o *options) error {
		if !(rate > 0 && rate <= 1) {
			return fmt.Errorf("%w: learning rate must be in (0, 1], got %v", ErrInvalidOption, rate)
		}
		o.learningRate = rate
		return nil
	}
}

// WithEmptyPolicy selects how centers without assigned points are handled.
func WithEmptyPolicy(p EmptyPolicy) Option {
	return func(o *options) error {
		if !p.IsValid() {
			return fmt.Errorf("%w: unknown empty cluster policy %q", ErrInvalidOption, p)
		}
		o.emptyPolicy = p
		return nil
	}
}

// WithContext lets a long run be abandoned between iterations.
func WithContext(ctx context.Context) Option {
	return func(o *options) error {
		o.ctx = ctx
		return nil
	}
}
