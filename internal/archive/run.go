package archive

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/pointlab/pointlab/internal/cluster"
)

// Run is one archived clustering result together with the inputs that
// produced it.
type Run struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Algorithm    string          `json:"algorithm"`
	K            int             `json:"k"`
	Iterations   int             `json:"iterations"`
	LearningRate float64         `json:"learning_rate"`
	Seed         uint64          `json:"seed,omitempty"`
	Seeded       bool            `json:"seeded"`
	EmptyPolicy  string          `json:"empty_policy,omitempty"`
	Points       []cluster.Point `json:"points"`
	Centers      []cluster.Point `json:"centers"`
	Labels       []int           `json:"labels"`
	Inertia      float64         `json:"inertia"`
	Reseeded     int             `json:"reseeded"`
}

func (r *Run) validate() error {
	if len(r.Labels) != len(r.Points) {
		return fmt.Errorf("%w: %d labels for %d points", ErrInvalidRun, len(r.Labels), len(r.Points))
	}
	for i, l := range r.Labels {
		if l < 0 || l >= len(r.Centers) {
			return fmt.Errorf("%w: label %d of point %d out of range [0,%d)", ErrInvalidRun, l, i, len(r.Centers))
		}
	}
	return nil
}

// Members returns the indices of the points assigned to label.
func (r *Run) Members(label int) (*roaring.Bitmap, error) {
	if label < 0 || label >= len(r.Centers) {
		return nil, fmt.Errorf("%w: %d (run has %d clusters)", ErrInvalidLabel, label, len(r.Centers))
	}
	bm := roaring.New()
	for i, l := range r.Labels {
		if l == label {
			bm.Add(uint32(i))
		}
	}
	return bm, nil
}

// Sizes returns the number of points per cluster.
func (r *Run) Sizes() []uint64 {
	bitmaps := make([]*roaring.Bitmap, len(r.Centers))
	for i := range bitmaps {
		bitmaps[i] = roaring.New()
	}
	for i, l := range r.Labels {
		if l >= 0 && l < len(bitmaps) {
			bitmaps[l].Add(uint32(i))
		}
	}
	sizes := make([]uint64, len(bitmaps))
	for i, bm := range bitmaps {
		sizes[i] = bm.GetCardinality()
	}
	return sizes
}

// Fingerprint hashes everything that determines a seeded run's output.
// Two seeded requests with the same fingerprint produce the same result.
func (r *Run) Fingerprint() string {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}

	d.WriteString(r.Algorithm)
	d.WriteString("/")
	d.WriteString(r.EmptyPolicy)
	put(uint64(r.K))
	put(uint64(r.Iterations))
	put(math.Float64bits(r.LearningRate))
	put(r.Seed)
	put(uint64(len(r.Points)))
	for _, p := range r.Points {
		put(math.Float64bits(p.X))
		put(math.Float64bits(p.Y))
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// NewID returns the fingerprint for seeded runs and a random UUID otherwise.
func (r *Run) NewID() string {
	if r.Seeded {
		return r.Fingerprint()
	}
	return uuid.NewString()
}
