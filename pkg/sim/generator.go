package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mchmarny/yzlm/pkg/rating"
	"gonum.org/v1/gonum/floats"
)

// Trial is one synthetic rating graph with its hidden ground truth.
type Trial struct {
	Quality   []float64
	UserError []float64
	Ratings   []rating.Rating
}

// Generator draws synthetic trials from an explicitly seeded source.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// NewGenerator returns a generator whose output is fully determined by
// cfg and the two seed words.
func NewGenerator(cfg Config, seed1, seed2 uint64) *Generator {
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Generate draws object quality in [0, QualityMax), user error in
// [0, ErrorMax), and has every user rate every object uniformly within
// quality +/- error.
func (g *Generator) Generate() *Trial {
	t := &Trial{
		Quality:   make([]float64, g.cfg.Objects),
		UserError: make([]float64, g.cfg.Users),
		Ratings:   make([]rating.Rating, 0, g.cfg.Objects*g.cfg.Users),
	}

	for i := range t.Quality {
		t.Quality[i] = g.uniform(0, g.cfg.QualityMax)
	}
	for i := range t.UserError {
		t.UserError[i] = g.uniform(0, g.cfg.ErrorMax)
	}

	for object, q := range t.Quality {
		for user, e := range t.UserError {
			t.Ratings = append(t.Ratings, rating.Rating{
				Object: object,
				User:   user,
				Weight: g.uniform(q-e, q+e),
			})
		}
	}

	return t
}

// Set names the trial's objects o0..oN and users u0..uM so the ratings
// can be written with rating.WriteCSV.
func (t *Trial) Set() *rating.Set {
	set := &rating.Set{
		Ratings: t.Ratings,
		Objects: make([]string, len(t.Quality)),
		Users:   make([]string, len(t.UserError)),
	}
	for i := range set.Objects {
		set.Objects[i] = fmt.Sprintf("o%d", i)
	}
	for i := range set.Users {
		set.Users[i] = fmt.Sprintf("u%d", i)
	}
	return set
}

// GenerateTrial returns trial i of a run configured by cfg. The same cfg
// and index always produce the same trial.
func GenerateTrial(cfg Config, i int) *Trial {
	return NewGenerator(cfg, cfg.Seed, uint64(i)).Generate()
}

// uniform returns a value in [lo, hi), or lo when the range is empty.
func (g *Generator) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*g.rng.Float64()
}

// RMSE is the root mean squared error of estimate against truth.
func RMSE(estimate, truth []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	return floats.Distance(estimate, truth, 2) / math.Sqrt(float64(len(truth)))
}
