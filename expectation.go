package prml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// expectation computes the responsibility matrix r (one row per sample, one
// column per component) from the current posterior parameters. Each row is a
// probability distribution over components.
//
// The log responsibility combines three expectations under the variational
// posterior: the expected log mixing weight E[ln pi_k] (digamma of the
// Dirichlet concentrations), the expected log precision determinant
// E[ln|Lambda_k|] (digamma of the Wishart degrees of freedom plus the scale
// log-determinant), and the expected squared Mahalanobis distance, which
// picks up a D/beta_k term from the uncertainty in the component mean. Rows
// are normalized by log-sum-exp before exponentiation.
func (m *VariationalGaussianMixture) expectation(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	k := len(m.alpha)
	df := float64(d)

	sumAlpha := floats.Sum(m.alpha)
	logPi := make([]float64, k)
	logLambda := make([]float64, k)
	var chol mat.Cholesky
	for j := 0; j < k; j++ {
		if ok := chol.Factorize(m.w[j]); !ok {
			return nil, fmt.Errorf("prml: scale matrix of component %d is not positive definite", j)
		}
		logPi[j] = mathext.Digamma(m.alpha[j]) - mathext.Digamma(sumAlpha)
		var s float64
		for i := 0; i < d; i++ {
			s += mathext.Digamma(0.5 * (m.dof[j] - float64(i)))
		}
		logLambda[j] = s + df*math.Ln2 + chol.LogDet()
	}

	r := mat.NewDense(n, k, nil)
	diff := make([]float64, d)
	dv := mat.NewVecDense(d, diff)
	logRow := make([]float64, k)
	for i := 0; i < n; i++ {
		xi := x.RawRowView(i)
		for j := 0; j < k; j++ {
			floats.SubTo(diff, xi, m.mu.RawRowView(j))
			quad := mat.Inner(dv, m.w[j], dv)
			logRow[j] = logPi[j] + 0.5*logLambda[j] - 0.5*(df/m.beta[j]+m.dof[j]*quad)
		}
		lse := floats.LogSumExp(logRow)
		for j := 0; j < k; j++ {
			r.Set(i, j, math.Exp(logRow[j]-lse))
		}
	}
	return r, nil
}
