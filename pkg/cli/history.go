package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/yzlm/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

const (
	historyLimitDefault = 20

	limitFlagName = "limit"
	runFlagName   = "run"
)

func newHistoryCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "List stored trial runs",
		Action:  cmdHistory,
		Flags: []urfave.Flag{
			&urfave.IntFlag{
				Name:  limitFlagName,
				Usage: "Limits number of runs returned",
				Value: historyLimitDefault,
			},
			&urfave.Int64Flag{
				Name:  runFlagName,
				Usage: "Show the trial reports of a single run",
			},
		},
	}
}

func cmdHistory(_ context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	path := cfg.dbPath()

	if err := data.Init(path); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var v any
	if cmd.IsSet(runFlagName) {
		v, err = data.GetTrials(db, cmd.Int64(runFlagName))
	} else {
		v, err = data.ListRuns(db, cmd.Int(limitFlagName))
	}
	if err != nil {
		return fmt.Errorf("error querying history: %w", err)
	}

	if err := encode(stdout(cmd), cfg.Format, v); err != nil {
		return fmt.Errorf("error encoding history: %w", err)
	}
	return nil
}
