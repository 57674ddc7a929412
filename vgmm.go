package prml

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config controls the Variational Bayesian Gaussian Mixture Model.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// Components is the maximum number of Gaussian components K. The
	// effective number of clusters is learned: unsupported components are
	// pruned automatically by the Dirichlet prior. Must be >= 1. Default: 1.
	Components int

	// Alpha0 is the concentration of the Dirichlet prior over mixing
	// weights. Small values (< 1) encourage pruning of unused components.
	// Set to 0 to default to 1/Components. Must be >= 0.
	Alpha0 float64

	// M0 is the mean of the Gaussian prior over component means.
	// nil defaults to the empirical mean of the fitted data. A single
	// element is broadcast across all dimensions; otherwise the length
	// must equal the data dimensionality.
	M0 []float64

	// W0 scales the prior Wishart scale matrix, W0 * I. Must be > 0.
	// Default: 1.0.
	W0 float64

	// Dof0 is the degrees of freedom of the prior Wishart distribution.
	// Set to 0 to default to the data dimensionality. Must be >= 0.
	Dof0 float64

	// Beta0 scales the prior precision of component means. Must be > 0.
	// Default: 1.0.
	Beta0 float64

	// IterMax bounds the number of variational E/M iterations per Fit
	// call. The loop stops earlier if the posterior parameters converge.
	// Must be >= 0 (0 means default). Default: 100.
	IterMax int

	// Src is the random source used to pick initial component centers and
	// to draw samples. nil means a time-seeded source; supply a fixed seed
	// for reproducible fits.
	Src rand.Source
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Components: 1,
		W0:         1.0,
		Beta0:      1.0,
		IterMax:    100,
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.Components < 1 {
		return fmt.Errorf("prml: Components must be >= 1, got %d", cfg.Components)
	}
	if cfg.Alpha0 < 0 {
		return fmt.Errorf("prml: Alpha0 must be >= 0 (0 means default to 1/Components), got %f", cfg.Alpha0)
	}
	if cfg.W0 <= 0 {
		return fmt.Errorf("prml: W0 must be > 0, got %f", cfg.W0)
	}
	if cfg.Dof0 < 0 {
		return fmt.Errorf("prml: Dof0 must be >= 0 (0 means default to the data dimensionality), got %f", cfg.Dof0)
	}
	if cfg.Beta0 <= 0 {
		return fmt.Errorf("prml: Beta0 must be > 0, got %f", cfg.Beta0)
	}
	if cfg.IterMax < 0 {
		return fmt.Errorf("prml: IterMax must be >= 0 (0 means default), got %d", cfg.IterMax)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.W0 == 0 {
		cfg.W0 = 1.0
	}
	if cfg.Beta0 == 0 {
		cfg.Beta0 = 1.0
	}
	if cfg.IterMax == 0 {
		cfg.IterMax = 100
	}
	if cfg.Src == nil {
		cfg.Src = defaultSource()
	}
}

// defaultSource returns a time-seeded random source.
func defaultSource() rand.Source {
	now := uint64(time.Now().UnixNano())
	return rand.NewPCG(now, now>>32)
}

// convergenceTol is the per-element tolerance (absolute or relative) used to
// declare the flattened posterior parameter vector unchanged between
// iterations.
const convergenceTol = 1e-8

// minSoftCount is the responsibility mass below which a component is treated
// as empty. Empty components keep the prior mean instead of dividing by a
// vanishing soft count.
const minSoftCount = 1e-10

// prior holds the fully materialized hyperparameters, resolved from Config
// and the data shape at the start of every Fit call. It is immutable for the
// lifetime of the fit.
type prior struct {
	alpha []float64     // Dirichlet concentration, one per component
	beta  float64       // precision scale on component means
	m     []float64     // mean of the Gaussian prior, length dim
	w     *mat.SymDense // Wishart scale matrix, W0 * I
	winv  *mat.SymDense // inverse of w, reused every M-step
	dof   float64       // Wishart degrees of freedom
}

// resolvePrior materializes the prior hyperparameters for data x.
func resolvePrior(cfg Config, x *mat.Dense) (*prior, error) {
	n, d := x.Dims()

	alpha0 := cfg.Alpha0
	if alpha0 == 0 {
		alpha0 = 1 / float64(cfg.Components)
	}
	alpha := make([]float64, cfg.Components)
	for j := range alpha {
		alpha[j] = alpha0
	}

	m := make([]float64, d)
	switch len(cfg.M0) {
	case 0:
		for i := 0; i < n; i++ {
			floats.Add(m, x.RawRowView(i))
		}
		floats.Scale(1/float64(n), m)
	case 1:
		for c := range m {
			m[c] = cfg.M0[0]
		}
	case d:
		copy(m, cfg.M0)
	default:
		return nil, fmt.Errorf("prml: M0 has %d elements, data has %d dimensions", len(cfg.M0), d)
	}

	dof := cfg.Dof0
	if dof == 0 {
		dof = float64(d)
	}

	w := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		w.SetSym(i, i, cfg.W0)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(w); !ok {
		return nil, fmt.Errorf("prml: prior scale matrix is not positive definite (W0=%f)", cfg.W0)
	}
	winv := mat.NewSymDense(d, nil)
	if err := chol.InverseTo(winv); err != nil {
		return nil, fmt.Errorf("prml: inverting prior scale matrix: %w", err)
	}

	return &prior{
		alpha: alpha,
		beta:  cfg.Beta0,
		m:     m,
		w:     w,
		winv:  winv,
		dof:   dof,
	}, nil
}

// Params is the posterior parameter state of a fitted model: the Dirichlet
// concentrations, precision scales, component means, Wishart scale matrices,
// and Wishart degrees of freedom. A model reconstructed from Params via
// [NewVariationalGaussianMixtureFromParams] answers queries identically.
type Params struct {
	Alpha []float64       // (K,)
	Beta  []float64       // (K,)
	Mu    *mat.Dense      // (K x D)
	W     []*mat.SymDense // K matrices, each D x D
	Dof   []float64       // (K,)
}

// VariationalGaussianMixture is a Gaussian mixture model fitted by
// mean-field variational inference. Construct with
// [NewVariationalGaussianMixture], then call Fit before any query.
//
// A model instance is not safe for concurrent use: Fit mutates the posterior
// state in place, and concurrent Fit calls would silently reset each other.
type VariationalGaussianMixture struct {
	cfg Config
	rnd *rand.Rand

	dim   int
	prior *prior

	// Posterior state, created by initParams and updated in place by the
	// M-step every iteration.
	alpha []float64
	beta  []float64
	mu    *mat.Dense
	w     []*mat.SymDense
	dof   []float64
	size  []float64 // soft sample count per component
}

var _ RandomVariable = (*VariationalGaussianMixture)(nil)

// NewVariationalGaussianMixture creates an unfitted model from cfg.
// Returns an error if the config is invalid.
func NewVariationalGaussianMixture(cfg Config) (*VariationalGaussianMixture, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &VariationalGaussianMixture{
		cfg: cfg,
		rnd: rand.New(cfg.Src),
	}, nil
}

// NewVariationalGaussianMixtureFromParams reconstructs a fitted model from a
// previously captured posterior state. The resulting model answers Classify,
// ClassifyProba, PDF, Mean, and Sample exactly as the original did, but must
// be refitted before the prior hyperparameters have any effect.
func NewVariationalGaussianMixtureFromParams(cfg Config, p Params) (*VariationalGaussianMixture, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	k := len(p.Alpha)
	if k == 0 {
		return nil, fmt.Errorf("prml: Params.Alpha is empty")
	}
	if cfg.Components != k {
		return nil, fmt.Errorf("prml: Components is %d but Params has %d components", cfg.Components, k)
	}
	if len(p.Beta) != k || len(p.Dof) != k || len(p.W) != k {
		return nil, fmt.Errorf("prml: inconsistent Params: %d alpha, %d beta, %d W, %d dof",
			k, len(p.Beta), len(p.W), len(p.Dof))
	}
	if p.Mu == nil {
		return nil, fmt.Errorf("prml: Params.Mu is nil")
	}
	kr, d := p.Mu.Dims()
	if kr != k {
		return nil, fmt.Errorf("prml: Params.Mu has %d rows, want %d", kr, k)
	}
	for j, wj := range p.W {
		if wj == nil {
			return nil, fmt.Errorf("prml: Params.W[%d] is nil", j)
		}
		if r := wj.SymmetricDim(); r != d {
			return nil, fmt.Errorf("prml: Params.W[%d] is %dx%d, want %dx%d", j, r, r, d, d)
		}
	}

	m := &VariationalGaussianMixture{
		cfg: cfg,
		rnd: rand.New(cfg.Src),
		dim: d,
	}
	m.restore(p)
	return m, nil
}

// Params returns a deep copy of the current posterior parameters.
// Returns the zero Params if the model has not been fitted.
func (m *VariationalGaussianMixture) Params() Params {
	if m.mu == nil {
		return Params{}
	}
	k := len(m.alpha)
	p := Params{
		Alpha: append([]float64(nil), m.alpha...),
		Beta:  append([]float64(nil), m.beta...),
		Mu:    mat.DenseCopyOf(m.mu),
		W:     make([]*mat.SymDense, k),
		Dof:   append([]float64(nil), m.dof...),
	}
	for j, wj := range m.w {
		cp := mat.NewSymDense(wj.SymmetricDim(), nil)
		cp.CopySym(wj)
		p.W[j] = cp
	}
	return p
}

// restore installs a deep copy of p as the model's posterior state.
func (m *VariationalGaussianMixture) restore(p Params) {
	k := len(p.Alpha)
	m.alpha = append([]float64(nil), p.Alpha...)
	m.beta = append([]float64(nil), p.Beta...)
	m.mu = mat.DenseCopyOf(p.Mu)
	m.dof = append([]float64(nil), p.Dof...)
	m.w = make([]*mat.SymDense, k)
	for j, wj := range p.W {
		cp := mat.NewSymDense(wj.SymmetricDim(), nil)
		cp.CopySym(wj)
		m.w[j] = cp
	}
	m.size = make([]float64, k)
}

// initParams resolves the prior for x and seeds the posterior state:
// uniform soft counts of N/K per component, component centers drawn
// uniformly from K distinct rows of x, and the prior scale matrix tiled
// across components.
func (m *VariationalGaussianMixture) initParams(x *mat.Dense) error {
	n, d := x.Dims()
	k := m.cfg.Components
	if n < k {
		return fmt.Errorf("prml: cannot seed %d components from %d samples", k, n)
	}

	p, err := resolvePrior(m.cfg, x)
	if err != nil {
		return err
	}
	m.prior = p
	m.dim = d

	size0 := float64(n) / float64(k)
	m.alpha = make([]float64, k)
	m.beta = make([]float64, k)
	m.dof = make([]float64, k)
	m.size = make([]float64, k)
	for j := 0; j < k; j++ {
		m.alpha[j] = p.alpha[j] + size0
		m.beta[j] = p.beta + size0
		m.dof[j] = p.dof + size0
		m.size[j] = size0
	}

	m.mu = mat.NewDense(k, d, nil)
	perm := m.rnd.Perm(n)
	for j := 0; j < k; j++ {
		m.mu.SetRow(j, x.RawRowView(perm[j]))
	}

	m.w = make([]*mat.SymDense, k)
	for j := range m.w {
		w := mat.NewSymDense(d, nil)
		w.CopySym(p.w)
		m.w[j] = w
	}
	return nil
}

// Fit runs variational inference on x (one sample per row), alternating the
// E-step and M-step until the posterior parameters stop changing or the
// iteration budget is exhausted. Both outcomes are success; callers that
// need a convergence signal must compare Params snapshots themselves.
//
// Each call re-initializes the posterior from scratch, including a fresh
// random choice of component centers, so repeated fits of the same data may
// settle on different (permuted or locally distinct) solutions.
func (m *VariationalGaussianMixture) Fit(x *mat.Dense) error {
	if x == nil {
		return fmt.Errorf("prml: Fit called with nil data")
	}
	if err := m.initParams(x); err != nil {
		return err
	}

	prev := m.flatParams(nil)
	var cur []float64
	for it := 0; it < m.cfg.IterMax; it++ {
		r, err := m.expectation(x)
		if err != nil {
			return err
		}
		if err := m.maximization(x, r); err != nil {
			return err
		}
		cur = m.flatParams(cur[:0])
		if floats.EqualApprox(prev, cur, convergenceTol) {
			break
		}
		prev, cur = cur, prev
	}
	return nil
}

// flatParams appends all five posterior parameter arrays to dst as one flat
// vector, in a fixed order, for the convergence comparison.
func (m *VariationalGaussianMixture) flatParams(dst []float64) []float64 {
	dst = append(dst, m.alpha...)
	dst = append(dst, m.beta...)
	dst = append(dst, m.mu.RawMatrix().Data...)
	for _, wj := range m.w {
		d := wj.SymmetricDim()
		for i := 0; i < d; i++ {
			for c := i; c < d; c++ {
				dst = append(dst, wj.At(i, c))
			}
		}
	}
	dst = append(dst, m.dof...)
	return dst
}

// checkQuery validates that the model is fitted and that x matches the
// fitted dimensionality.
func (m *VariationalGaussianMixture) checkQuery(x *mat.Dense) error {
	if m.mu == nil {
		return fmt.Errorf("prml: model has not been fitted")
	}
	if x == nil {
		return fmt.Errorf("prml: query called with nil data")
	}
	if _, d := x.Dims(); d != m.dim {
		return fmt.Errorf("prml: query data has %d dimensions, model was fitted with %d", d, m.dim)
	}
	return nil
}
