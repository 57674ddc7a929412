// Package prml implements Bayesian probability distributions for
// unsupervised learning, centered on a Variational Bayesian Gaussian
// Mixture Model (VBGMM).
//
// Unlike plain EM, which produces point estimates, the VBGMM infers a
// posterior distribution over mixing weights, means, and precisions using
// mean-field variational inference with conjugate (Dirichlet and
// normal-Wishart) priors. Components the data does not support are
// suppressed automatically: their responsibility mass collapses and their
// Dirichlet concentration falls back to the prior, so the effective number
// of clusters is learned up to the configured maximum.
//
// Basic usage:
//
//	cfg := prml.DefaultConfig()
//	cfg.Components = 5
//	model, err := prml.NewVariationalGaussianMixture(cfg)
//	// x is a *mat.Dense with one sample per row
//	err = model.Fit(x)
//	labels, err := model.Classify(x)     // hard assignment per sample
//	probs, err := model.ClassifyProba(x) // soft assignment (responsibilities)
//	density, err := model.PDF(x)         // posterior predictive density
//
// The predictive density is the exact Bayesian posterior predictive, a
// mixture of multivariate Student-t distributions, not a plug-in Gaussian
// mixture.
//
// Every distribution in the package satisfies the [RandomVariable]
// interface (Mean, PDF, Sample); the [Uniform] box distribution is the
// second implementation.
package prml
