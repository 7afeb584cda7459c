package score

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mchmarny/yzlm/pkg/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// randomRatings has every user rate every object around a hidden quality,
// with per-user noise.
func randomRatings(seed uint64, objects, users int) []rating.Rating {
	r := rand.New(rand.NewPCG(seed, 0))
	quality := make([]float64, objects)
	for i := range quality {
		quality[i] = r.Float64() * 10
	}
	noise := make([]float64, users)
	for i := range noise {
		noise[i] = r.Float64()
	}

	list := make([]rating.Rating, 0, objects*users)
	for o, q := range quality {
		for u, e := range noise {
			list = append(list, rating.Rating{Object: o, User: u, Weight: q - e + 2*e*r.Float64()})
		}
	}
	return list
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		valid bool
	}{
		{"default", DefaultConfig(), true},
		{"zero convergence", Config{Convergence: 0, Exponent: 0.8, MinDivergence: 1e-36}, true},
		{"negative convergence", Config{Convergence: -1, Exponent: 0.8, MinDivergence: 1e-36}, false},
		{"nan convergence", Config{Convergence: math.NaN(), Exponent: 0.8, MinDivergence: 1e-36}, false},
		{"zero exponent", Config{Convergence: 1e-24, Exponent: 0, MinDivergence: 1e-36}, false},
		{"inf exponent", Config{Convergence: 1e-24, Exponent: math.Inf(1), MinDivergence: 1e-36}, false},
		{"zero min divergence", Config{Convergence: 1e-24, Exponent: 0.8, MinDivergence: 0}, false},
		{"nan min divergence", Config{Convergence: 1e-24, Exponent: 0.8, MinDivergence: math.NaN()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			_, err = New(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRun_SymmetricDisagreement(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	res, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 5},
			{Object: 0, User: 1, Weight: 5},
			{Object: 1, User: 0, Weight: 1},
			{Object: 1, User: 1, Weight: 9},
		},
		Objects:        2,
		Users:          2,
		UserReputation: []float64{1, 1},
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, uint(2))
	assert.LessOrEqual(t, res.Diff, ConvergenceDefault)
	assert.InDelta(t, 5.0, res.ObjectReputation[0], 1e-12)
	assert.InDelta(t, 5.0, res.ObjectReputation[1], 1e-12)

	// both users diverge by 16 over 2 links
	assert.Equal(t, res.UserReputation[0], res.UserReputation[1])
	assert.InEpsilon(t, math.Pow(8, -ExponentDefault), res.UserReputation[0], 1e-12)
}

func TestRun_FixedPointStopsAfterOneIteration(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	// Everyone agrees, so the warm start is already the fixed point.
	res, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 2},
			{Object: 0, User: 1, Weight: 2},
			{Object: 1, User: 0, Weight: 0.5},
			{Object: 1, User: 1, Weight: 0.5},
		},
		Objects: 2,
		Users:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, uint(1), res.Iterations)
	assert.Equal(t, 0.0, res.Diff)
	assert.Equal(t, []float64{2, 0.5}, res.ObjectReputation)
}

func TestRun_SingleUserSaturates(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)

	res, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 2},
			{Object: 1, User: 0, Weight: 4},
			{Object: 2, User: 0, Weight: 0.5},
		},
		Objects: 3,
		Users:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, uint(1), res.Iterations)
	assert.Equal(t, []float64{2, 4, 0.5}, res.ObjectReputation)
	assert.Equal(t, math.Pow(cfg.MinDivergence, -cfg.Exponent), res.UserReputation[0])
}

func TestRun_ZeroLinkUserScoresZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 10000
	e := newTestEngine(t, cfg)
	ratings := randomRatings(7, 5, 3)

	with, err := e.Run(Input{Ratings: ratings, Objects: 5, Users: 4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, with.UserReputation[3])

	without, err := e.Run(Input{Ratings: ratings, Objects: 5, Users: 3})
	require.NoError(t, err)
	assert.Equal(t, without.ObjectReputation, with.ObjectReputation)
	assert.Equal(t, without.Iterations, with.Iterations)
}

func TestRun_UnratedObjectKeepsWarmStart(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	res, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 2},
			{Object: 1, User: 1, Weight: 4},
		},
		Objects:          3,
		Users:            2,
		ObjectReputation: []float64{0, 0, 42},
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.ObjectReputation[2])
	assert.True(t, res.Converged)
}

func TestRun_WeightedAverageBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 10000
	e := newTestEngine(t, cfg)

	const objects, users = 20, 15
	ratings := randomRatings(42, objects, users)

	res, err := e.Run(Input{Ratings: ratings, Objects: objects, Users: users})
	if err != nil {
		require.ErrorIs(t, err, ErrNotConverged)
	}
	require.NotNil(t, res)

	lo := make([]float64, objects)
	hi := make([]float64, objects)
	for o := range lo {
		lo[o] = math.Inf(1)
		hi[o] = math.Inf(-1)
	}
	for _, r := range ratings {
		lo[r.Object] = math.Min(lo[r.Object], r.Weight)
		hi[r.Object] = math.Max(hi[r.Object], r.Weight)
	}

	for o, rep := range res.ObjectReputation {
		assert.GreaterOrEqual(t, rep, lo[o]-1e-9, "object %d", o)
		assert.LessOrEqual(t, rep, hi[o]+1e-9, "object %d", o)
	}
	for u, rep := range res.UserReputation {
		assert.Greater(t, rep, 0.0, "user %d", u)
	}
}

func TestRun_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 10000
	e := newTestEngine(t, cfg)
	ratings := randomRatings(3, 12, 9)

	first, err1 := e.Run(Input{Ratings: ratings, Objects: 12, Users: 9})
	second, err2 := e.Run(Input{Ratings: ratings, Objects: 12, Users: 9})

	assert.Equal(t, err1, err2)
	assert.Equal(t, first, second)
}

func TestRun_IterationCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	e := newTestEngine(t, cfg)

	res, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 5},
			{Object: 0, User: 1, Weight: 5},
			{Object: 0, User: 2, Weight: 9},
			{Object: 1, User: 0, Weight: 5},
			{Object: 1, User: 1, Weight: 5},
			{Object: 1, User: 2, Weight: 1},
		},
		Objects: 2,
		Users:   3,
	})
	require.ErrorIs(t, err, ErrNotConverged)
	require.NotNil(t, res)
	assert.False(t, res.Converged)
	assert.Equal(t, uint(1), res.Iterations)
	assert.Greater(t, res.Diff, ConvergenceDefault)
}

func TestRun_DoesNotWriteCallerSlices(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	userRep := []float64{1, 1}
	objRep := []float64{0, 0}

	_, err := e.Run(Input{
		Ratings: []rating.Rating{
			{Object: 0, User: 0, Weight: 3},
			{Object: 1, User: 1, Weight: 6},
		},
		Objects:          2,
		Users:            2,
		UserReputation:   userRep,
		ObjectReputation: objRep,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, userRep)
	assert.Equal(t, []float64{0, 0}, objRep)
}

func TestRun_InvalidInput(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ok := []rating.Rating{{Object: 0, User: 0, Weight: 1}}

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"object out of range", Input{Ratings: []rating.Rating{{Object: 1, User: 0}}, Objects: 1, Users: 1}, rating.ErrIndexOutOfRange},
		{"user out of range", Input{Ratings: []rating.Rating{{Object: 0, User: 2}}, Objects: 1, Users: 1}, rating.ErrIndexOutOfRange},
		{"negative size", Input{Ratings: ok, Objects: -1, Users: 1}, ErrSizeMismatch},
		{"user reputation size", Input{Ratings: ok, Objects: 1, Users: 1, UserReputation: []float64{1, 1}}, ErrSizeMismatch},
		{"object reputation size", Input{Ratings: ok, Objects: 1, Users: 1, ObjectReputation: []float64{}}, ErrSizeMismatch},
		{"nan weight", Input{Ratings: []rating.Rating{{Weight: math.NaN()}}, Objects: 1, Users: 1}, ErrInvalidWeight},
		{"inf weight", Input{Ratings: []rating.Rating{{Weight: math.Inf(-1)}}, Objects: 1, Users: 1}, ErrInvalidWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Run(tt.in)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRun_Empty(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	res, err := e.Run(Input{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, uint(1), res.Iterations)
	assert.Empty(t, res.ObjectReputation)
}
