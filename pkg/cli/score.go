package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/mchmarny/yzlm/pkg/rating"
	"github.com/mchmarny/yzlm/pkg/score"
	urfave "github.com/urfave/cli/v3"
)

const (
	convergenceFlagName   = "convergence"
	exponentFlagName      = "exponent"
	minDivergenceFlagName = "min-divergence"
	maxIterationsFlagName = "max-iterations"
	fileFlagName          = "file"
)

// engineFlags returns the flags that override the engine config section.
func engineFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.FloatFlag{
			Name:  convergenceFlagName,
			Usage: fmt.Sprintf("Squared L2 change in object reputation at which iteration stops (default: %g)", score.ConvergenceDefault),
		},
		&urfave.FloatFlag{
			Name:  exponentFlagName,
			Usage: fmt.Sprintf("Power applied to mean user divergence (default: %g)", score.ExponentDefault),
		},
		&urfave.FloatFlag{
			Name:  minDivergenceFlagName,
			Usage: fmt.Sprintf("Floor added to mean user divergence (default: %g)", score.MinDivergenceDefault),
		},
		&urfave.UintFlag{
			Name:  maxIterationsFlagName,
			Usage: "Stop after this many iterations even when not converged (default: 0, unbounded)",
		},
	}
}

func newScoreCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "score",
		Aliases:   []string{"s"},
		Usage:     "Compute object and user reputation for a ratings CSV file",
		UsageText: "yzlm score --file ratings.csv --max-iterations 1000",
		Action:    cmdScore,
		Flags: append([]urfave.Flag{
			&urfave.StringFlag{
				Name:     fileFlagName,
				Aliases:  []string{"f"},
				Usage:    "Ratings CSV file with object,user,weight records (- for stdin)",
				Required: true,
			},
		}, engineFlags()...),
	}
}

// Reputation is a named reputation value.
type Reputation struct {
	ID         string  `json:"id" yaml:"id"`
	Reputation float64 `json:"reputation" yaml:"reputation"`
	Ratings    int     `json:"ratings" yaml:"ratings"`
}

// ScoreResult is the output of the score command.
type ScoreResult struct {
	Objects    []*Reputation `json:"objects" yaml:"objects"`
	Users      []*Reputation `json:"users" yaml:"users"`
	Iterations uint          `json:"iterations" yaml:"iterations"`
	Diff       float64       `json:"diff" yaml:"diff"`
	Converged  bool          `json:"converged" yaml:"converged"`
	Engine     score.Config  `json:"engine" yaml:"engine"`
	Duration   string        `json:"duration" yaml:"duration"`
}

// engineConfig overlays the engine flags that were set on base.
func engineConfig(cmd *urfave.Command, base score.Config) score.Config {
	if cmd.IsSet(convergenceFlagName) {
		base.Convergence = cmd.Float(convergenceFlagName)
	}
	if cmd.IsSet(exponentFlagName) {
		base.Exponent = cmd.Float(exponentFlagName)
	}
	if cmd.IsSet(minDivergenceFlagName) {
		base.MinDivergence = cmd.Float(minDivergenceFlagName)
	}
	if cmd.IsSet(maxIterationsFlagName) {
		base.MaxIterations = cmd.Uint(maxIterationsFlagName)
	}
	return base
}

func readRatings(path string) (*rating.Set, error) {
	if path == "-" {
		return rating.ReadCSV(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening ratings file %s: %w", path, err)
	}
	defer f.Close()
	return rating.ReadCSV(f)
}

func cmdScore(_ context.Context, cmd *urfave.Command) error {
	start := time.Now()
	cfg := getConfig(cmd)

	engine, err := score.New(engineConfig(cmd, cfg.Config.Engine))
	if err != nil {
		return fmt.Errorf("error creating engine: %w", err)
	}

	set, err := readRatings(cmd.String(fileFlagName))
	if err != nil {
		return fmt.Errorf("error reading ratings: %w", err)
	}
	slog.Debug("ratings loaded", "ratings", len(set.Ratings), "objects", len(set.Objects), "users", len(set.Users))

	res, err := engine.Run(score.Input{
		Ratings: set.Ratings,
		Objects: len(set.Objects),
		Users:   len(set.Users),
	})
	if err != nil && !errors.Is(err, score.ErrNotConverged) {
		return fmt.Errorf("error computing reputation: %w", err)
	}
	if err != nil {
		slog.Warn("reputation did not converge", "iterations", res.Iterations, "diff", res.Diff)
	}

	out := newScoreResult(set, res, engine.Config())
	out.Duration = time.Since(start).String()

	if err := encode(stdout(cmd), cfg.Format, out); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}

// newScoreResult names the reputation vectors and orders both lists from
// the highest reputation down.
func newScoreResult(set *rating.Set, res *score.Result, engine score.Config) *ScoreResult {
	objectRatings := make([]int, len(set.Objects))
	userRatings := make([]int, len(set.Users))
	for _, r := range set.Ratings {
		objectRatings[r.Object]++
		userRatings[r.User]++
	}

	out := &ScoreResult{
		Objects:    named(set.Objects, res.ObjectReputation, objectRatings),
		Users:      named(set.Users, res.UserReputation, userRatings),
		Iterations: res.Iterations,
		Diff:       res.Diff,
		Converged:  res.Converged,
		Engine:     engine,
	}
	return out
}

func named(ids []string, rep []float64, counts []int) []*Reputation {
	list := make([]*Reputation, len(ids))
	for i, id := range ids {
		list[i] = &Reputation{ID: id, Reputation: rep[i], Ratings: counts[i]}
	}
	slices.SortStableFunc(list, func(a, b *Reputation) int {
		return cmp.Compare(b.Reputation, a.Reputation)
	})
	return list
}
