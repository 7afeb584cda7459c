package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/yzlm/pkg/config"
	"github.com/mchmarny/yzlm/pkg/data"
	"github.com/mchmarny/yzlm/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "yzlm"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName  = "debug"
	configFlagName = "config"
	dbFlagName     = "db"
	formatFlagName = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	logLevel = &slog.LevelVar{}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Config *config.Config
	DBPath string
	Format string
	Debug  bool
}

func getConfig(cmd *urfave.Command) *appConfig {
	if c, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok {
		return c
	}
	return &appConfig{Config: config.Default(), Format: formatJSON}
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Iterative reputation for users rating objects",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:    debugFlagName,
				Usage:   "Prints verbose logs (optional, default: false)",
				Sources: urfave.EnvVars("YZLM_DEBUG"),
			},
			&urfave.StringFlag{
				Name:    configFlagName,
				Aliases: []string{"c"},
				Usage:   fmt.Sprintf("Path to YAML config file with engine and sim sections (default: $HOME/.%s/%s)", appName, config.ConfigFileName),
				Sources: urfave.EnvVars("YZLM_CONFIG"),
			},
			&urfave.StringFlag{
				Name:  dbFlagName,
				Usage: fmt.Sprintf("Path to the Sqlite trial history file (default: $HOME/.%s/%s)", appName, data.DataFileName),
			},
			&urfave.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*urfave.Command{
			newScoreCmd(),
			newTrialCmd(),
			newHistoryCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			if cmd.Bool(debugFlagName) {
				initLogging(true)
			}

			format := formatJSON
			switch f := cmd.String(formatFlagName); f {
			case formatJSON, "":
			case formatYAML, "yml":
				format = formatYAML
			default:
				return ctx, fmt.Errorf("unsupported output format: %s", f)
			}

			cfg, err := loadConfig(cmd.String(configFlagName))
			if err != nil {
				return ctx, fmt.Errorf("loading config: %w", err)
			}

			cmd.Root().Metadata[appConfigKey] = &appConfig{
				Config: cfg,
				DBPath: cmd.String(dbFlagName),
				Format: format,
				Debug:  cmd.Bool(debugFlagName),
			}
			return ctx, nil
		},
	}
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logLevel.Set(level)
	slog.SetDefault(slog.New(logging.NewFileHandler(os.Stderr, logLevel)))
}

// loadConfig reads the config file at path, or the one in the home dir
// (created with defaults when missing) when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.ReadOrCreate(getHomeDir())
}

// dbPath returns the configured history file, defaulting to the home dir.
func (c *appConfig) dbPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(getHomeDir(), data.DataFileName)
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created dir", "path", dir)
	}
	return dir
}

func stdout(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

var errMissingArgs = errors.New("missing required arguments")
