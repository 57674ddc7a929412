package prml

import "gonum.org/v1/gonum/mat"

// RandomVariable is the contract shared by every distribution type in this
// package. Implementations are multivariate: points are rows of a
// *mat.Dense, and densities are evaluated per row.
type RandomVariable interface {
	// Mean returns the mean vector of the distribution, or nil if the
	// distribution has no resolved parameters yet (e.g. an unfitted model).
	Mean() []float64

	// PDF evaluates the probability density at each row of x and returns
	// one value per row.
	PDF(x *mat.Dense) ([]float64, error)

	// Sample draws n points from the distribution, one per row of the
	// returned matrix.
	Sample(n int) (*mat.Dense, error)
}
