package prml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Classify assigns each row of x to the component with the highest
// responsibility. Queries are stateless: repeated calls on a fitted model
// return identical results.
func (m *VariationalGaussianMixture) Classify(x *mat.Dense) ([]int, error) {
	r, err := m.ClassifyProba(x)
	if err != nil {
		return nil, err
	}
	n, _ := r.Dims()
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = floats.MaxIdx(r.RawRowView(i))
	}
	return labels, nil
}

// ClassifyProba returns the responsibility matrix for x: entry (i, j) is the
// posterior probability that component j generated row i. Each row sums
// to 1.
func (m *VariationalGaussianMixture) ClassifyProba(x *mat.Dense) (*mat.Dense, error) {
	if err := m.checkQuery(x); err != nil {
		return nil, err
	}
	return m.expectation(x)
}

// PDF evaluates the posterior predictive density at each row of x. The
// predictive is an alpha-weighted mixture of multivariate Student-t
// distributions, one per component, with nu_k = dof_k + 1 - D degrees of
// freedom and precision (nu_k * beta_k / (1 + beta_k)) * W_k. It accounts
// for the posterior uncertainty in both the mean and the precision of each
// component, unlike a plug-in Gaussian mixture.
func (m *VariationalGaussianMixture) PDF(x *mat.Dense) ([]float64, error) {
	if err := m.checkQuery(x); err != nil {
		return nil, err
	}

	n, d := x.Dims()
	k := len(m.alpha)
	df := float64(d)
	sumAlpha := floats.Sum(m.alpha)

	out := make([]float64, n)
	diff := make([]float64, d)
	dv := mat.NewVecDense(d, diff)
	prec := mat.NewSymDense(d, nil)
	var chol mat.Cholesky
	for j := 0; j < k; j++ {
		nu := m.dof[j] + 1 - df
		prec.ScaleSym(nu*m.beta[j]/(1+m.beta[j]), m.w[j])
		if ok := chol.Factorize(prec); !ok {
			return nil, fmt.Errorf("prml: predictive scale matrix of component %d is not positive definite", j)
		}
		lgNum, _ := math.Lgamma(0.5 * (nu + df))
		lgDen, _ := math.Lgamma(0.5 * nu)
		logNorm := lgNum - lgDen + 0.5*chol.LogDet() - 0.5*df*math.Log(nu*math.Pi)

		for i := 0; i < n; i++ {
			floats.SubTo(diff, x.RawRowView(i), m.mu.RawRowView(j))
			maha := mat.Inner(dv, prec, dv)
			logT := logNorm - 0.5*(nu+df)*math.Log1p(maha/nu)
			out[i] += m.alpha[j] / sumAlpha * math.Exp(logT)
		}
	}
	return out, nil
}

// Mean returns the expected value of the fitted mixture: the alpha-weighted
// average of the component means. Returns nil if the model has not been
// fitted.
func (m *VariationalGaussianMixture) Mean() []float64 {
	if m.mu == nil {
		return nil
	}
	sumAlpha := floats.Sum(m.alpha)
	mean := make([]float64, m.dim)
	for j := range m.alpha {
		floats.AddScaled(mean, m.alpha[j]/sumAlpha, m.mu.RawRowView(j))
	}
	return mean
}

// Sample draws n points from the fitted mixture, one per row. Each draw
// picks a component from the posterior mixing weights and then samples the
// component's expected Gaussian, whose covariance is the inverse of the
// expected precision dof_k * W_k.
func (m *VariationalGaussianMixture) Sample(n int) (*mat.Dense, error) {
	if m.mu == nil {
		return nil, fmt.Errorf("prml: model has not been fitted")
	}
	if n < 1 {
		return nil, fmt.Errorf("prml: sample size must be >= 1, got %d", n)
	}

	k := len(m.alpha)
	d := m.dim
	weights := make([]float64, k)
	copy(weights, m.alpha)
	cat := distuv.NewCategorical(weights, m.cfg.Src)

	prec := mat.NewSymDense(d, nil)
	cov := mat.NewSymDense(d, nil)
	var chol mat.Cholesky
	normals := make([]*distmv.Normal, k)
	for j := 0; j < k; j++ {
		prec.ScaleSym(m.dof[j], m.w[j])
		if ok := chol.Factorize(prec); !ok {
			return nil, fmt.Errorf("prml: expected precision of component %d is not positive definite", j)
		}
		if err := chol.InverseTo(cov); err != nil {
			return nil, fmt.Errorf("prml: inverting expected precision of component %d: %w", j, err)
		}
		nrm, ok := distmv.NewNormal(m.mu.RawRowView(j), cov, m.cfg.Src)
		if !ok {
			return nil, fmt.Errorf("prml: covariance of component %d is not positive definite", j)
		}
		normals[j] = nrm
	}

	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		normals[int(cat.Rand())].Rand(out.RawRowView(i))
	}
	return out, nil
}
