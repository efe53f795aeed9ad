// Package cli implements the histonet, evelyze and histperf commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/histonet/config"
	"github.com/sbl8/histonet/logging"
)

const (
	appName = "histonet"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName    = "debug"
	logLevelFlagName = "log-level"
	formatFlagName   = "format"
	dirFlagName      = "dir"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// commonFlags returns fresh instances of the flags shared by every root
// command.
func commonFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.BoolFlag{
			Name:  debugFlagName,
			Usage: "Prints verbose logs (optional, default: false)",
		},
		&urfave.StringFlag{
			Name:  logLevelFlagName,
			Usage: "Log level [debug, info, warn, error]",
			Value: "info",
		},
		&urfave.StringFlag{
			Name:  formatFlagName,
			Usage: "Output format [json, yaml]",
			Value: formatJSON,
		},
		&urfave.StringFlag{
			Name:    dirFlagName,
			Usage:   fmt.Sprintf("Config and data directory (optional, defaults to $HOME/.%s)", appName),
			Sources: urfave.EnvVars("HISTONET_DIR"),
		},
	}
}

// NewApp returns the histonet root command.
func NewApp() *urfave.Command {
	return &urfave.Command{
		Name:    appName,
		Version: fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:   "Histogram classifiers and analysis run tooling",
		Flags:   commonFlags(),
		Commands: []*urfave.Command{
			newInitCmd(),
			newInspectCmd(),
			newPredictCmd(),
			newHistoryCmd(),
			newEvelyzeCmd(),
			newPerfCmd(),
		},
		Before: before,
	}
}

// Execute runs root with the process arguments and exits non-zero on error.
func Execute(root *urfave.Command) {
	logging.SetDefaultCLILogger("info")

	if err := root.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// asRoot turns a subcommand into a standalone program.
func asRoot(cmd *urfave.Command) *urfave.Command {
	cmd.Version = fmt.Sprintf("%s (%s - %s)", version, commit, date)
	cmd.Flags = append(cmd.Flags, commonFlags()...)
	cmd.Before = before
	return cmd
}

// NewEvelyzeApp returns the standalone evelyze command.
func NewEvelyzeApp() *urfave.Command {
	return asRoot(newEvelyzeCmd())
}

// NewPerfApp returns the standalone histperf command.
func NewPerfApp() *urfave.Command {
	cmd := asRoot(newPerfCmd())
	cmd.Name = "histperf"
	return cmd
}

func before(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
	level := cmd.String(logLevelFlagName)
	if cmd.Bool(debugFlagName) {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)

	switch f := cmd.String(formatFlagName); f {
	case formatJSON, formatYAML, "yml":
	default:
		return ctx, fmt.Errorf("unsupported output format %q", f)
	}
	return ctx, nil
}

// homeDir returns the --dir value or the per-user application directory.
func homeDir(cmd *urfave.Command) (string, error) {
	if dir := cmd.String(dirFlagName); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
		return dir, nil
	}
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return "", err
	}
	if created {
		slog.Info("created data directory", "path", dir)
	}
	return dir, nil
}

func output(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *urfave.Command, v any) error {
	w := output(cmd)
	switch cmd.String(formatFlagName) {
	case formatYAML, "yml":
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
