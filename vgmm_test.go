package prml

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// twoClusterData draws n points from each of two well-separated 2D
// Gaussians centered at (0,0) and (10,10). Returns the stacked data and the
// true cluster label per row.
func twoClusterData(t *testing.T, n int, src rand.Source) (*mat.Dense, []int) {
	t.Helper()
	sigma := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})
	g0, ok := distmv.NewNormal([]float64{0, 0}, sigma, src)
	if !ok {
		t.Fatal("building first cluster distribution")
	}
	g1, ok := distmv.NewNormal([]float64{10, 10}, sigma, src)
	if !ok {
		t.Fatal("building second cluster distribution")
	}

	x := mat.NewDense(2*n, 2, nil)
	labels := make([]int, 2*n)
	for i := 0; i < n; i++ {
		g0.Rand(x.RawRowView(i))
	}
	for i := n; i < 2*n; i++ {
		g1.Rand(x.RawRowView(i))
		labels[i] = 1
	}
	return x, labels
}

// fitTwoClusters fits a model with the given component budget on the
// standard two-cluster dataset.
func fitTwoClusters(t *testing.T, components int) (*VariationalGaussianMixture, *mat.Dense, []int) {
	t.Helper()
	x, labels := twoClusterData(t, 100, rand.NewPCG(7, 11))
	cfg := DefaultConfig()
	cfg.Components = components
	cfg.Src = rand.NewPCG(1, 2)
	model, err := NewVariationalGaussianMixture(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.Fit(x); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}
	return model, x, labels
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Components != 1 {
		t.Errorf("Components: got %d, want 1", cfg.Components)
	}
	if cfg.Alpha0 != 0 {
		t.Errorf("Alpha0: got %f, want 0 (derive from Components)", cfg.Alpha0)
	}
	if cfg.M0 != nil {
		t.Errorf("M0: got %v, want nil (empirical mean)", cfg.M0)
	}
	if cfg.W0 != 1.0 {
		t.Errorf("W0: got %f, want 1.0", cfg.W0)
	}
	if cfg.Dof0 != 0 {
		t.Errorf("Dof0: got %f, want 0 (derive from dimensionality)", cfg.Dof0)
	}
	if cfg.Beta0 != 1.0 {
		t.Errorf("Beta0: got %f, want 1.0", cfg.Beta0)
	}
	if cfg.IterMax != 100 {
		t.Errorf("IterMax: got %d, want 100", cfg.IterMax)
	}
	if cfg.Src != nil {
		t.Error("Src: got non-nil, want nil (time-seeded)")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Components < 1", func(c *Config) { c.Components = 0 }},
		{"negative Components", func(c *Config) { c.Components = -2 }},
		{"negative Alpha0", func(c *Config) { c.Alpha0 = -0.5 }},
		{"negative W0", func(c *Config) { c.W0 = -1.0 }},
		{"negative Dof0", func(c *Config) { c.Dof0 = -2.0 }},
		{"negative Beta0", func(c *Config) { c.Beta0 = -1.0 }},
		{"negative IterMax", func(c *Config) { c.IterMax = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewVariationalGaussianMixture(cfg)
			if err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestInitParamsDrawsCentersFromData(t *testing.T) {
	x, _ := twoClusterData(t, 10, rand.NewPCG(3, 4))
	cfg := DefaultConfig()
	cfg.Components = 4
	cfg.Src = rand.NewPCG(5, 6)
	model, err := NewVariationalGaussianMixture(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.initParams(x); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	k, d := model.mu.Dims()
	if k != 4 || d != 2 {
		t.Fatalf("mu shape: got %dx%d, want 4x2", k, d)
	}
	n, _ := x.Dims()
	for j := 0; j < k; j++ {
		found := false
		for i := 0; i < n; i++ {
			if floats.Equal(model.mu.RawRowView(j), x.RawRowView(i)) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("mu row %d is not a row of the input data: %v", j, model.mu.RawRowView(j))
		}
	}
}

func TestInitParamsSeedsCountsUniformly(t *testing.T) {
	x, _ := twoClusterData(t, 10, rand.NewPCG(3, 4))
	cfg := DefaultConfig()
	cfg.Components = 4
	cfg.Src = rand.NewPCG(5, 6)
	model, err := NewVariationalGaussianMixture(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.initParams(x); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	// N=20, K=4: each component starts with a soft count of 5 and the
	// prior hyperparameters shifted by it.
	for j := 0; j < 4; j++ {
		if model.size[j] != 5 {
			t.Errorf("size[%d]: got %f, want 5", j, model.size[j])
		}
		if got, want := model.alpha[j], 0.25+5; got != want {
			t.Errorf("alpha[%d]: got %f, want %f", j, got, want)
		}
		if got, want := model.beta[j], 1.0+5; got != want {
			t.Errorf("beta[%d]: got %f, want %f", j, got, want)
		}
		if got, want := model.dof[j], 2.0+5; got != want {
			t.Errorf("dof[%d]: got %f, want %f", j, got, want)
		}
	}
}

func TestResponsibilityRowsSumToOne(t *testing.T) {
	model, x, _ := fitTwoClusters(t, 3)
	r, err := model.ClassifyProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := r.Dims()
	for i := 0; i < n; i++ {
		if sum := floats.Sum(r.RawRowView(i)); math.Abs(sum-1) > 1e-6 {
			t.Errorf("responsibility row %d sums to %g, want 1", i, sum)
		}
	}
}

func TestQueriesAreIdempotent(t *testing.T) {
	model, x, _ := fitTwoClusters(t, 2)

	labels1, err := model.Classify(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r1, err := model.ClassifyProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	labels2, err := model.Classify(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := model.ClassifyProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range labels1 {
		if labels1[i] != labels2[i] {
			t.Fatalf("labels differ at %d: %d vs %d", i, labels1[i], labels2[i])
		}
	}
	if !mat.Equal(r1, r2) {
		t.Error("responsibilities differ between consecutive calls")
	}
}

func TestFitRespectsIterationBudget(t *testing.T) {
	// A one-iteration budget must still leave the model in a queryable
	// state; the loop bound is the only termination guarantee.
	x, _ := twoClusterData(t, 25, rand.NewPCG(9, 10))
	cfg := DefaultConfig()
	cfg.Components = 3
	cfg.IterMax = 1
	cfg.Src = rand.NewPCG(1, 2)
	model, err := NewVariationalGaussianMixture(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.Fit(x); err != nil {
		t.Fatalf("unexpected fit error: %v", err)
	}
	if _, err := model.Classify(x); err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}
}

func TestTwoSeparatedClusters(t *testing.T) {
	model, x, truth := fitTwoClusters(t, 2)
	labels, err := model.Classify(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Component indices are arbitrary; score both permutations.
	var direct, swapped int
	for i, l := range labels {
		if l == truth[i] {
			direct++
		} else {
			swapped++
		}
	}
	best := direct
	if swapped > best {
		best = swapped
	}
	n, _ := x.Dims()
	if acc := float64(best) / float64(n); acc < 0.95 {
		t.Errorf("accuracy %f below 0.95 (direct=%d swapped=%d)", acc, direct, swapped)
	}
}

func TestAutomaticRelevanceDetermination(t *testing.T) {
	// Five components on two true clusters: the Dirichlet prior should
	// starve at least two of them back toward alpha0.
	model, _, _ := fitTwoClusters(t, 5)
	p := model.Params()

	alpha0 := 1.0 / 5
	pruned := 0
	for j := range p.Alpha {
		if p.Alpha[j]-alpha0 < 1 {
			pruned++
		}
	}
	if pruned < 2 {
		t.Errorf("pruned components: got %d, want >= 2 (alpha=%v)", pruned, p.Alpha)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	model, x, _ := fitTwoClusters(t, 3)
	r1, err := model.ClassifyProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Components = 3
	rebuilt, err := NewVariationalGaussianMixtureFromParams(cfg, model.Params())
	if err != nil {
		t.Fatalf("unexpected rebuild error: %v", err)
	}
	r2, err := rebuilt.ClassifyProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mat.Equal(r1, r2) {
		t.Error("rebuilt model produced different responsibilities")
	}
}

func TestParamsReturnsCopies(t *testing.T) {
	model, x, _ := fitTwoClusters(t, 2)
	p := model.Params()
	p.Alpha[0] = -100
	p.Mu.Set(0, 0, 1e9)
	p.W[0].SetSym(0, 0, 1e9)

	if model.alpha[0] == -100 {
		t.Error("mutating Params.Alpha changed the model")
	}
	if model.mu.At(0, 0) == 1e9 {
		t.Error("mutating Params.Mu changed the model")
	}
	if model.w[0].At(0, 0) == 1e9 {
		t.Error("mutating Params.W changed the model")
	}
	if _, err := model.ClassifyProba(x); err != nil {
		t.Fatalf("unexpected error after mutation: %v", err)
	}
}

func TestFromParamsValidation(t *testing.T) {
	model, _, _ := fitTwoClusters(t, 2)
	cfg := DefaultConfig()
	cfg.Components = 2

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty alpha", func(p *Params) { p.Alpha = nil }},
		{"beta length", func(p *Params) { p.Beta = p.Beta[:1] }},
		{"dof length", func(p *Params) { p.Dof = append(p.Dof, 1) }},
		{"nil mu", func(p *Params) { p.Mu = nil }},
		{"mu rows", func(p *Params) { p.Mu = mat.NewDense(3, 2, nil) }},
		{"nil W entry", func(p *Params) { p.W[1] = nil }},
		{"W dimension", func(p *Params) { p.W[0] = mat.NewSymDense(3, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.Params()
			tt.mutate(&p)
			if _, err := NewVariationalGaussianMixtureFromParams(cfg, p); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestFitIsReproducibleWithFixedSeed(t *testing.T) {
	x, _ := twoClusterData(t, 50, rand.NewPCG(21, 22))

	fit := func() *mat.Dense {
		cfg := DefaultConfig()
		cfg.Components = 2
		cfg.Src = rand.NewPCG(33, 44)
		model, err := NewVariationalGaussianMixture(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := model.Fit(x); err != nil {
			t.Fatalf("unexpected fit error: %v", err)
		}
		r, err := model.ClassifyProba(x)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return r
	}

	if !mat.Equal(fit(), fit()) {
		t.Error("two fits with the same seed produced different responsibilities")
	}
}
