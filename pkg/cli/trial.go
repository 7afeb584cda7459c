package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mchmarny/yzlm/pkg/data"
	"github.com/mchmarny/yzlm/pkg/metrics"
	"github.com/mchmarny/yzlm/pkg/rating"
	"github.com/mchmarny/yzlm/pkg/score"
	"github.com/mchmarny/yzlm/pkg/sim"
	urfave "github.com/urfave/cli/v3"
)

const (
	objectsFlagName     = "objects"
	usersFlagName       = "users"
	trialsFlagName      = "trials"
	seedFlagName        = "seed"
	parallelFlagName    = "parallel"
	qualityMaxFlagName  = "quality-max"
	errorMaxFlagName    = "error-max"
	saveFlagName        = "save"
	metricsFileFlagName = "metrics-file"
	quietFlagName       = "quiet"
	exportFlagName      = "export"
)

var errZeroSeed = errors.New("seed must be non-zero, omit --seed for a time based seed")

func newTrialCmd() *urfave.Command {
	flags := []urfave.Flag{
		&urfave.IntFlag{
			Name:  objectsFlagName,
			Usage: "Number of objects per trial (or first positional argument)",
		},
		&urfave.IntFlag{
			Name:  usersFlagName,
			Usage: "Number of users per trial (or second positional argument)",
		},
		&urfave.IntFlag{
			Name:  trialsFlagName,
			Usage: fmt.Sprintf("Number of trials (default: %d)", sim.TrialsDefault),
		},
		&urfave.Uint64Flag{
			Name:  seedFlagName,
			Usage: "Non-zero random seed; the same seed reproduces the same trials (default: time based)",
		},
		&urfave.IntFlag{
			Name:  parallelFlagName,
			Usage: fmt.Sprintf("Number of trials to run concurrently (default: %d)", sim.ParallelDefault),
		},
		&urfave.FloatFlag{
			Name:  qualityMaxFlagName,
			Usage: fmt.Sprintf("Object quality is drawn from [0, quality-max) (default: %g)", sim.QualityMaxDefault),
		},
		&urfave.FloatFlag{
			Name:  errorMaxFlagName,
			Usage: fmt.Sprintf("User rating error is drawn from [0, error-max) (default: %g)", sim.ErrorMaxDefault),
		},
		&urfave.BoolFlag{
			Name:  saveFlagName,
			Usage: "Store the run in the trial history database",
		},
		&urfave.StringFlag{
			Name:  metricsFileFlagName,
			Usage: "Write Prometheus text format metrics for the run to this file",
		},
		&urfave.StringFlag{
			Name:  exportFlagName,
			Usage: "Write the ratings of the first trial to this CSV file (input for score --file)",
		},
		&urfave.BoolFlag{
			Name:    quietFlagName,
			Aliases: []string{"q"},
			Usage:   "Do not print per-trial progress",
		},
	}

	return &urfave.Command{
		Name:    "trial",
		Aliases: []string{"t"},
		Usage:   "Run synthetic trials and report how well reputation recovers object quality",
		UsageText: `yzlm trial 100 50                              # 100 objects, 50 users, 100 trials
   yzlm trial --objects 100 --users 50 --seed 7   # reproducible run
   yzlm trial 100 50 --parallel 8 --save          # store results in the history database`,
		Action: cmdTrial,
		Flags:  append(flags, engineFlags()...),
	}
}

// simConfig overlays positional arguments and set flags on base.
func simConfig(cmd *urfave.Command, base sim.Config) (sim.Config, error) {
	if cmd.NArg() >= 2 {
		objects, err := strconv.Atoi(cmd.Args().Get(0))
		if err != nil {
			return base, fmt.Errorf("invalid object count %q: %w", cmd.Args().Get(0), err)
		}
		users, err := strconv.Atoi(cmd.Args().Get(1))
		if err != nil {
			return base, fmt.Errorf("invalid user count %q: %w", cmd.Args().Get(1), err)
		}
		base.Objects, base.Users = objects, users
	}

	if cmd.IsSet(objectsFlagName) {
		base.Objects = cmd.Int(objectsFlagName)
	}
	if cmd.IsSet(usersFlagName) {
		base.Users = cmd.Int(usersFlagName)
	}
	if cmd.IsSet(trialsFlagName) {
		base.Trials = cmd.Int(trialsFlagName)
	}
	if cmd.IsSet(seedFlagName) {
		base.Seed = cmd.Uint64(seedFlagName)
		if base.Seed == 0 {
			return base, errZeroSeed
		}
	}
	if cmd.IsSet(parallelFlagName) {
		base.Parallel = cmd.Int(parallelFlagName)
	}
	if cmd.IsSet(qualityMaxFlagName) {
		base.QualityMax = cmd.Float(qualityMaxFlagName)
	}
	if cmd.IsSet(errorMaxFlagName) {
		base.ErrorMax = cmd.Float(errorMaxFlagName)
	}

	if base.Objects == 0 && base.Users == 0 {
		return base, fmt.Errorf("object and user counts: %w", errMissingArgs)
	}

	if base.Seed == 0 {
		base.Seed = uint64(time.Now().UnixNano())
		slog.Info("using time based seed", "seed", base.Seed)
	}

	return base, nil
}

func cmdTrial(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	started := time.Now()

	sc, err := simConfig(cmd, cfg.Config.Sim)
	if err != nil {
		return err
	}

	engine, err := score.New(engineConfig(cmd, cfg.Config.Engine))
	if err != nil {
		return fmt.Errorf("error creating engine: %w", err)
	}

	runner, err := sim.NewRunner(sc, engine)
	if err != nil {
		return fmt.Errorf("error creating trial runner: %w", err)
	}

	rec := metrics.NewRecorder()
	progress := stderr(cmd)
	quiet := cmd.Bool(quietFlagName)

	runner.OnReport = func(r *sim.Report) {
		rec.Observe(r)
		if !quiet {
			printReport(progress, r)
		}
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("error running trials: %w", err)
	}

	if !quiet {
		fmt.Fprintf(progress, "Total iterations: %d\n", summary.TotalIterations)
	}

	if path := cmd.String(metricsFileFlagName); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			return err
		}
		slog.Debug("metrics written", "path", path)
	}

	if path := cmd.String(exportFlagName); path != "" {
		if err := exportTrial(path, sc); err != nil {
			return err
		}
		slog.Debug("trial exported", "path", path)
	}

	if cmd.Bool(saveFlagName) {
		id, err := saveRun(cfg.dbPath(), started, summary)
		if err != nil {
			return err
		}
		slog.Info("run saved", "id", id)
	}

	if err := encode(stdout(cmd), cfg.Format, summary); err != nil {
		return fmt.Errorf("error encoding summary: %w", err)
	}
	return nil
}

func printReport(w io.Writer, r *sim.Report) {
	fmt.Fprintf(w, "[%d] Generated %d ratings\n", r.Trial, r.Ratings)
	fmt.Fprintf(w, "Exited in %d iterations with diff = %e\n", r.Iterations, r.Diff)
	if !r.Converged {
		fmt.Fprintln(w, "Iteration cap reached before convergence")
	}
	fmt.Fprintf(w, "Error in quality estimate: %v\n", r.Error)
	fmt.Fprintln(w, "--------")
}

func saveRun(path string, started time.Time, s *sim.Summary) (int64, error) {
	if err := data.Init(path); err != nil {
		return 0, fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(path)
	if err != nil {
		return 0, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	id, err := data.SaveRun(db, started, s)
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	return id, nil
}

func exportTrial(path string, cfg sim.Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating export file %s: %w", path, err)
	}
	defer f.Close()

	if err := rating.WriteCSV(f, sim.GenerateTrial(cfg, 0).Set()); err != nil {
		return fmt.Errorf("error exporting trial to %s: %w", path, err)
	}
	return f.Close()
}
