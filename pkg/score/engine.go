package score

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/mchmarny/yzlm/pkg/rating"
)

const (
	// ConvergenceDefault is the reference squared-L2 stopping threshold.
	ConvergenceDefault = 1e-24
	// ExponentDefault is the reference power applied to user divergence.
	ExponentDefault = 0.8
	// MinDivergenceDefault is the additive floor on mean user divergence.
	MinDivergenceDefault = 1e-36
)

var (
	ErrInvalidConfig = errors.New("invalid engine config")
	ErrSizeMismatch  = errors.New("vector size mismatch")
	ErrInvalidWeight = errors.New("rating weight is not finite")
	ErrNotConverged  = errors.New("reputation did not converge")
)

// Config holds the constants of a reputation run.
type Config struct {
	// Convergence is the largest squared L2 change in object reputation
	// between iterations at which the loop stops.
	Convergence float64 `json:"convergence" yaml:"convergence"`
	// Exponent in (0,1) maps mean divergence to reputation as d^-Exponent.
	Exponent float64 `json:"exponent" yaml:"exponent"`
	// MinDivergence keeps the reputation of a zero-divergence user finite.
	MinDivergence float64 `json:"min_divergence" yaml:"min_divergence"`
	// MaxIterations caps the loop; 0 runs until convergence.
	MaxIterations uint `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultConfig returns the reference configuration with no iteration cap.
func DefaultConfig() Config {
	return Config{
		Convergence:   ConvergenceDefault,
		Exponent:      ExponentDefault,
		MinDivergence: MinDivergenceDefault,
	}
}

// Validate checks that the config can drive a run.
func (c Config) Validate() error {
	if math.IsNaN(c.Convergence) || c.Convergence < 0 {
		return fmt.Errorf("convergence must be >= 0, got %g: %w", c.Convergence, ErrInvalidConfig)
	}
	if !(c.Exponent > 0) || math.IsInf(c.Exponent, 0) {
		return fmt.Errorf("exponent must be positive and finite, got %g: %w", c.Exponent, ErrInvalidConfig)
	}
	if !(c.MinDivergence > 0) || math.IsInf(c.MinDivergence, 0) {
		return fmt.Errorf("min divergence must be positive and finite, got %g: %w", c.MinDivergence, ErrInvalidConfig)
	}
	return nil
}

// Input is the static rating graph and the warm start of a run.
type Input struct {
	Ratings []rating.Rating
	Objects int
	Users   int
	// UserReputation is the initial user reputation; nil means uniform 1.0.
	UserReputation []float64
	// ObjectReputation is the value kept by objects nobody with a positive
	// reputation rated; nil means zeros.
	ObjectReputation []float64
}

// Result is the outcome of a run.
type Result struct {
	ObjectReputation []float64 `json:"object_reputation" yaml:"objectReputation"`
	UserReputation   []float64 `json:"user_reputation" yaml:"userReputation"`
	Iterations       uint      `json:"iterations" yaml:"iterations"`
	Diff             float64   `json:"diff" yaml:"diff"`
	Converged        bool      `json:"converged" yaml:"converged"`
}

// Engine runs the reputation fixed-point iteration.
type Engine struct {
	cfg Config
}

// New returns an engine for the given config.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// workspace holds the buffers reused across iterations. Every estimator
// resets its accumulators before use.
type workspace struct {
	num        []float64
	wsum       []float64
	prev       []float64
	delta      []float64
	divergence []float64
}

func newWorkspace(objects, users int) *workspace {
	return &workspace{
		num:        make([]float64, objects),
		wsum:       make([]float64, objects),
		prev:       make([]float64, objects),
		delta:      make([]float64, objects),
		divergence: make([]float64, users),
	}
}

// Run computes object and user reputation for in. Inputs are copied; the
// caller's slices are never written. When MaxIterations is reached first,
// the partial result is returned together with an error wrapping
// ErrNotConverged.
func (e *Engine) Run(in Input) (*Result, error) {
	if in.Objects < 0 || in.Users < 0 {
		return nil, fmt.Errorf("objects=%d users=%d: %w", in.Objects, in.Users, ErrSizeMismatch)
	}
	if err := rating.Validate(in.Ratings, in.Objects, in.Users); err != nil {
		return nil, fmt.Errorf("invalid ratings: %w", err)
	}
	for i, r := range in.Ratings {
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			return nil, fmt.Errorf("rating %d: %w", i, ErrInvalidWeight)
		}
	}

	userRep, err := initVector(in.UserReputation, in.Users, 1)
	if err != nil {
		return nil, fmt.Errorf("user reputation: %w", err)
	}
	objectRep, err := initVector(in.ObjectReputation, in.Objects, 0)
	if err != nil {
		return nil, fmt.Errorf("object reputation: %w", err)
	}

	links, err := rating.Links(in.Users, in.Ratings)
	if err != nil {
		return nil, fmt.Errorf("error counting user links: %w", err)
	}

	ws := newWorkspace(in.Objects, in.Users)
	res := &Result{
		ObjectReputation: objectRep,
		UserReputation:   userRep,
	}

	slog.Debug("reputation run",
		"ratings", len(in.Ratings), "objects", in.Objects, "users", in.Users,
		"convergence", e.cfg.Convergence, "max_iterations", e.cfg.MaxIterations)

	objectReputation(objectRep, ws.num, ws.wsum, userRep, in.Ratings)

	for {
		Divergence(ws.divergence, objectRep, in.Ratings)
		UserReputation(userRep, ws.divergence, links, e.cfg.Exponent, e.cfg.MinDivergence)

		copy(ws.prev, objectRep)
		objectReputation(objectRep, ws.num, ws.wsum, userRep, in.Ratings)

		res.Diff = squaredDistance(ws.delta, objectRep, ws.prev)
		res.Iterations++
		slog.Debug("iteration", "n", res.Iterations, "diff", res.Diff)

		if res.Diff <= e.cfg.Convergence {
			res.Converged = true
			return res, nil
		}

		if e.cfg.MaxIterations > 0 && res.Iterations >= e.cfg.MaxIterations {
			slog.Debug("iteration cap reached", "iterations", res.Iterations, "diff", res.Diff)
			return res, fmt.Errorf("%d iterations, diff %g: %w", res.Iterations, res.Diff, ErrNotConverged)
		}
	}
}

// initVector copies v, or fills a new vector of length n with def when v is nil.
func initVector(v []float64, n int, def float64) ([]float64, error) {
	out := make([]float64, n)
	if v == nil {
		for i := range out {
			out[i] = def
		}
		return out, nil
	}
	if len(v) != n {
		return nil, fmt.Errorf("got %d values, want %d: %w", len(v), n, ErrSizeMismatch)
	}
	copy(out, v)
	return out, nil
}
