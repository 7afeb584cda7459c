package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mchmarny/yzlm/pkg/score"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Report is the outcome of a single trial.
type Report struct {
	Trial      int     `json:"trial" yaml:"trial"`
	Ratings    int     `json:"ratings" yaml:"ratings"`
	Iterations uint    `json:"iterations" yaml:"iterations"`
	Diff       float64 `json:"diff" yaml:"diff"`
	Error      float64 `json:"error" yaml:"error"`
	Converged  bool    `json:"converged" yaml:"converged"`
	Duration   string  `json:"duration" yaml:"duration"`
}

// Summary aggregates all trials of a run.
type Summary struct {
	Config          Config       `json:"config" yaml:"config"`
	Engine          score.Config `json:"engine" yaml:"engine"`
	Reports         []*Report    `json:"reports,omitempty" yaml:"reports,omitempty"`
	TotalIterations uint         `json:"total_iterations" yaml:"totalIterations"`
	MeanIterations  float64      `json:"mean_iterations" yaml:"meanIterations"`
	MeanError       float64      `json:"mean_error" yaml:"meanError"`
	StdDevError     float64      `json:"stddev_error" yaml:"stdDevError"`
	NotConverged    int          `json:"not_converged" yaml:"notConverged"`
	Duration        string       `json:"duration" yaml:"duration"`
}

// Runner executes a batch of trials against one engine.
type Runner struct {
	cfg    Config
	engine *score.Engine

	// OnReport, when set, receives every report in trial order.
	OnReport func(*Report)
}

// NewRunner returns a runner for cfg.
func NewRunner(cfg Config, engine *score.Engine) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("engine required")
	}
	return &Runner{cfg: cfg, engine: engine}, nil
}

// Run executes all trials, up to Parallel at a time. Trial i draws from a
// generator seeded with (Seed, i), so results do not depend on Parallel.
// A trial that hits the engine's iteration cap is reported, not fatal.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	reports := make([]*Report, r.cfg.Trials)

	var mu sync.Mutex
	next := 0
	emit := func(i int, rep *Report) {
		mu.Lock()
		defer mu.Unlock()
		reports[i] = rep
		for next < len(reports) && reports[next] != nil {
			if r.OnReport != nil {
				r.OnReport(reports[next])
			}
			next++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallel)

	for i := range r.cfg.Trials {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := r.trial(i)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			emit(i, rep)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return summarize(r.cfg, r.engine.Config(), reports, time.Since(start)), nil
}

func (r *Runner) trial(i int) (*Report, error) {
	start := time.Now()
	t := GenerateTrial(r.cfg, i)

	res, err := r.engine.Run(score.Input{
		Ratings: t.Ratings,
		Objects: r.cfg.Objects,
		Users:   r.cfg.Users,
	})
	if err != nil && !errors.Is(err, score.ErrNotConverged) {
		return nil, err
	}
	if err != nil {
		slog.Warn("trial did not converge", "trial", i, "iterations", res.Iterations, "diff", res.Diff)
	}

	return &Report{
		Trial:      i,
		Ratings:    len(t.Ratings),
		Iterations: res.Iterations,
		Diff:       res.Diff,
		Error:      RMSE(res.ObjectReputation, t.Quality),
		Converged:  res.Converged,
		Duration:   time.Since(start).String(),
	}, nil
}

func summarize(cfg Config, engine score.Config, reports []*Report, d time.Duration) *Summary {
	s := &Summary{
		Config:   cfg,
		Engine:   engine,
		Reports:  reports,
		Duration: d.String(),
	}

	errs := make([]float64, len(reports))
	iters := make([]float64, len(reports))
	for i, rep := range reports {
		s.TotalIterations += rep.Iterations
		if !rep.Converged {
			s.NotConverged++
		}
		errs[i] = rep.Error
		iters[i] = float64(rep.Iterations)
	}

	switch {
	case len(reports) > 1:
		s.MeanIterations = stat.Mean(iters, nil)
		s.MeanError, s.StdDevError = stat.MeanStdDev(errs, nil)
	case len(reports) == 1:
		// sample std dev is undefined for a single trial
		s.MeanIterations = iters[0]
		s.MeanError = errs[0]
	}
	return s
}
