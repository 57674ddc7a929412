package prml

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// maximization recomputes the posterior parameters in place from x and the
// responsibility matrix r via the closed-form conjugate updates: Dirichlet
// concentration, mean precision scale, and Wishart degrees of freedom each
// gain the component's soft count; the component mean is the
// precision-weighted blend of the prior mean and the responsibility-weighted
// data mean; the Wishart scale is the inverse of the prior inverse scale
// plus the weighted scatter plus a shrinkage term toward the prior mean.
//
// A component whose soft count has collapsed keeps the prior mean and skips
// the scatter entirely, so pruned components stay finite instead of
// propagating 0/0.
func (m *VariationalGaussianMixture) maximization(x *mat.Dense, r *mat.Dense) error {
	n, d := x.Dims()
	k := len(m.alpha)

	xm := make([]float64, d)
	diff := make([]float64, d)
	dv := mat.NewVecDense(d, diff)
	winv := mat.NewSymDense(d, nil)
	var chol mat.Cholesky

	for j := 0; j < k; j++ {
		var nk float64
		for i := 0; i < n; i++ {
			nk += r.At(i, j)
		}
		m.size[j] = nk

		// Responsibility-weighted sample mean; inert for empty components.
		for c := range xm {
			xm[c] = 0
		}
		if nk > minSoftCount {
			for i := 0; i < n; i++ {
				floats.AddScaled(xm, r.At(i, j), x.RawRowView(i))
			}
			floats.Scale(1/nk, xm)
		} else {
			copy(xm, m.prior.m)
		}

		m.alpha[j] = m.prior.alpha[j] + nk
		m.beta[j] = m.prior.beta + nk
		m.dof[j] = m.prior.dof + nk

		muRow := m.mu.RawRowView(j)
		for c := 0; c < d; c++ {
			muRow[c] = (m.prior.beta*m.prior.m[c] + nk*xm[c]) / m.beta[j]
		}

		// W_k^{-1} = W0^{-1} + sum_i r_ij (x_i - xm)(x_i - xm)^T
		//          + beta0*N_k/(beta0+N_k) * (xm - m0)(xm - m0)^T
		winv.CopySym(m.prior.winv)
		if nk > minSoftCount {
			for i := 0; i < n; i++ {
				floats.SubTo(diff, x.RawRowView(i), xm)
				winv.SymRankOne(winv, r.At(i, j), dv)
			}
		}
		floats.SubTo(diff, xm, m.prior.m)
		winv.SymRankOne(winv, m.prior.beta*nk/(m.prior.beta+nk), dv)

		if ok := chol.Factorize(winv); !ok {
			return fmt.Errorf("prml: updated inverse scale matrix of component %d is singular", j)
		}
		if err := chol.InverseTo(m.w[j]); err != nil {
			return fmt.Errorf("prml: inverting scale matrix of component %d: %w", j, err)
		}
	}
	return nil
}
