package prml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uniform is a random variable distributed uniformly over an axis-aligned
// box: p(x) = 1 / prod(high_c - low_c) inside the box and 0 outside. It is
// a stateless closed-form primitive with no fitting step.
type Uniform struct {
	low, high []float64
	density   float64
	dims      []distuv.Uniform
}

var _ RandomVariable = (*Uniform)(nil)

// NewUniform creates a uniform distribution over the box [low, high].
// low and high must have the same nonzero length, with low[c] <= high[c]
// for every coordinate. src may be nil for a time-seeded source.
func NewUniform(low, high []float64, src rand.Source) (*Uniform, error) {
	if len(low) == 0 {
		return nil, fmt.Errorf("prml: uniform bounds must have at least one dimension")
	}
	if len(low) != len(high) {
		return nil, fmt.Errorf("prml: uniform bounds have mismatched lengths %d and %d", len(low), len(high))
	}
	volume := 1.0
	for c := range low {
		if low[c] > high[c] {
			return nil, fmt.Errorf("prml: uniform lower bound %f exceeds upper bound %f in dimension %d", low[c], high[c], c)
		}
		volume *= high[c] - low[c]
	}
	if volume == 0 {
		return nil, fmt.Errorf("prml: uniform box has zero volume")
	}
	if src == nil {
		src = defaultSource()
	}

	u := &Uniform{
		low:     append([]float64(nil), low...),
		high:    append([]float64(nil), high...),
		density: 1 / volume,
		dims:    make([]distuv.Uniform, len(low)),
	}
	for c := range u.dims {
		u.dims[c] = distuv.Uniform{Min: low[c], Max: high[c], Src: src}
	}
	return u, nil
}

// Mean returns the center of the box.
func (u *Uniform) Mean() []float64 {
	mean := make([]float64, len(u.low))
	for c := range mean {
		mean[c] = 0.5 * (u.low[c] + u.high[c])
	}
	return mean
}

// PDF evaluates the density at each row of x: the constant box density
// inside the bounds, 0 outside.
func (u *Uniform) PDF(x *mat.Dense) ([]float64, error) {
	n, d := x.Dims()
	if d != len(u.low) {
		return nil, fmt.Errorf("prml: query data has %d dimensions, uniform has %d", d, len(u.low))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		inside := true
		for c := range row {
			if row[c] < u.low[c] || row[c] > u.high[c] {
				inside = false
				break
			}
		}
		if inside {
			out[i] = u.density
		}
	}
	return out, nil
}

// Sample draws n points uniformly from the box, one per row.
func (u *Uniform) Sample(n int) (*mat.Dense, error) {
	if n < 1 {
		return nil, fmt.Errorf("prml: sample size must be >= 1, got %d", n)
	}
	out := mat.NewDense(n, len(u.low), nil)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for c := range row {
			row[c] = u.dims[c].Rand()
		}
	}
	return out, nil
}
