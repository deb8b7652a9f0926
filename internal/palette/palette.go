// Package palette assigns display colors to cluster labels.
package palette

import (
	"errors"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ErrEmptyPalette is returned when a palette is built without any hues.
var ErrEmptyPalette = errors.New("palette needs at least one hue")

// DefaultHues are the hues (degrees) of the five-color default palette.
var DefaultHues = []float64{0, 100, 175, 245, 320}

// Palette is a fixed, ordered set of colors. Index i maps to color i mod Size.
type Palette struct {
	colors []string
}

// New builds a palette of fully saturated, half-lightness colors from hues
// given in degrees.
func New(hues ...float64) (*Palette, error) {
	if len(hues) == 0 {
		return nil, ErrEmptyPalette
	}
	colors := make([]string, len(hues))
	for i, h := range hues {
		colors[i] = colorful.Hsl(h, 1, 0.5).Clamped().Hex()
	}
	return &Palette{colors: colors}, nil
}

// Default returns the five-color default palette.
func Default() *Palette {
	p, _ := New(DefaultHues...)
	return p
}

// Size returns the number of distinct colors.
func (p *Palette) Size() int {
	return len(p.colors)
}

// Color returns the #rrggbb color for index i. Negative indices wrap.
func (p *Palette) Color(i int) string {
	n := len(p.colors)
	i %= n
	if i < 0 {
		i += n
	}
	return p.colors[i]
}

// ColorsFor maps each label to its color.
func (p *Palette) ColorsFor(labels []int) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = p.Color(l)
	}
	return out
}

// Sequence returns the colors for indices 0..n-1, e.g. one per center.
func (p *Palette) Sequence(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = p.Color(i)
	}
	return out
}
