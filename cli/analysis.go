package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	urfave "github.com/urfave/cli/v3"

	"github.com/sbl8/histonet/analysis"
	"github.com/sbl8/histonet/config"
	"github.com/sbl8/histonet/history"
)

// Parameter flag names match the evelyze command line.
const (
	locFileFlagName        = "localizations-file"
	photonsFileFlagName    = "photons-file"
	driftFileFlagName      = "drift-file"
	offsetFlagName         = "offset"
	diameterFlagName       = "diameter"
	intTimeFlagName        = "int-time"
	suffixFlagName         = "suffix"
	maxDarkFramesFlagName  = "max-dark-frames"
	proximityFlagName      = "proximity"
	filterSingleFlagName   = "filter-single"
	normBrightnessFlagName = "norm-brightness"
	dtWindowFlagName       = "dt-window"
	moreMSFlagName         = "more-ms"
)

func newEvelyzeCmd() *urfave.Command {
	d := analysis.DefaultParams()
	return &urfave.Command{
		Name:  "evelyze",
		Usage: "Runs the evelyze analysis once and reports its execution time",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the analysis config (optional, defaults to <dir>/" + config.AnalysisFileName + ")",
			},
			&urfave.StringFlag{
				Name:  "executable",
				Usage: "Analyzer executable (optional, overrides config)",
			},
			&urfave.StringFlag{
				Name:  "ntp-server",
				Usage: "Read start and end times from an NTP-corrected clock (optional)",
			},
			&urfave.DurationFlag{
				Name:  "ntp-timeout",
				Usage: "NTP query timeout",
				Value: analysis.DefaultNTPTimeout,
			},
			&urfave.StringFlag{
				Name:  "folder",
				Usage: "Resolve the default input files under this folder (optional)",
			},
			&urfave.StringFlag{Name: locFileFlagName, Usage: "Localizations file", Value: d.LocalizationsFile},
			&urfave.StringFlag{Name: photonsFileFlagName, Usage: "Photon index file", Value: d.PhotonsFile},
			&urfave.StringFlag{Name: driftFileFlagName, Usage: "Drift file", Value: d.DriftFile},
			&urfave.IntFlag{Name: offsetFlagName, Value: d.Offset},
			&urfave.FloatFlag{Name: diameterFlagName, Value: d.Diameter},
			&urfave.IntFlag{Name: intTimeFlagName, Usage: "Integration time", Value: d.IntTime},
			&urfave.StringFlag{Name: suffixFlagName, Usage: "Output suffix", Value: d.Suffix},
			&urfave.IntFlag{Name: maxDarkFramesFlagName, Value: d.MaxDarkFrames},
			&urfave.IntFlag{Name: proximityFlagName, Value: d.Proximity},
			&urfave.BoolFlag{Name: filterSingleFlagName, Value: d.FilterSingle},
			&urfave.BoolFlag{Name: normBrightnessFlagName, Value: d.NormBrightness},
			&urfave.FloatSliceFlag{Name: dtWindowFlagName, Usage: "Time window start and end", Value: d.DTWindow},
			&urfave.IntFlag{Name: moreMSFlagName, Value: d.MoreMS},
			&urfave.StringFlag{
				Name:  "db",
				Usage: "History database path (optional, defaults to <dir>/" + history.DataFileName + ")",
			},
			&urfave.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record the run",
			},
		},
		Action: runEvelyze,
	}
}

// analysisConfig reads the analysis config, if any, and applies flag
// overrides on top of it.
func analysisConfig(cmd *urfave.Command) (*config.AnalysisConfig, error) {
	c := config.DefaultAnalysisConfig()
	path := cmd.String("config")
	if path == "" {
		dir, err := homeDir(cmd)
		if err != nil {
			return nil, err
		}
		if _, err := config.ReadOrCreate(dir, config.AnalysisFileName, c); err != nil {
			return nil, err
		}
	} else {
		loaded, err := config.LoadAnalysis(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	if cmd.IsSet("executable") {
		c.Executable = cmd.String("executable")
	}
	if cmd.IsSet("ntp-server") {
		c.NTPServer = cmd.String("ntp-server")
	}
	if cmd.IsSet("ntp-timeout") {
		c.NTPTimeout = cmd.Duration("ntp-timeout")
	}
	applyParamFlags(cmd, &c.Params)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyParamFlags(cmd *urfave.Command, p *analysis.Params) {
	if cmd.IsSet("folder") {
		f := analysis.ParamsForFolder(cmd.String("folder"))
		p.LocalizationsFile, p.PhotonsFile, p.DriftFile = f.LocalizationsFile, f.PhotonsFile, f.DriftFile
	}
	if cmd.IsSet(locFileFlagName) {
		p.LocalizationsFile = cmd.String(locFileFlagName)
	}
	if cmd.IsSet(photonsFileFlagName) {
		p.PhotonsFile = cmd.String(photonsFileFlagName)
	}
	if cmd.IsSet(driftFileFlagName) {
		p.DriftFile = cmd.String(driftFileFlagName)
	}
	if cmd.IsSet(offsetFlagName) {
		p.Offset = cmd.Int(offsetFlagName)
	}
	if cmd.IsSet(diameterFlagName) {
		p.Diameter = cmd.Float(diameterFlagName)
	}
	if cmd.IsSet(intTimeFlagName) {
		p.IntTime = cmd.Int(intTimeFlagName)
	}
	if cmd.IsSet(suffixFlagName) {
		p.Suffix = cmd.String(suffixFlagName)
	}
	if cmd.IsSet(maxDarkFramesFlagName) {
		p.MaxDarkFrames = cmd.Int(maxDarkFramesFlagName)
	}
	if cmd.IsSet(proximityFlagName) {
		p.Proximity = cmd.Int(proximityFlagName)
	}
	if cmd.IsSet(filterSingleFlagName) {
		p.FilterSingle = cmd.Bool(filterSingleFlagName)
	}
	if cmd.IsSet(normBrightnessFlagName) {
		p.NormBrightness = cmd.Bool(normBrightnessFlagName)
	}
	if cmd.IsSet(dtWindowFlagName) {
		p.DTWindow = cmd.FloatSlice(dtWindowFlagName)
	}
	if cmd.IsSet(moreMSFlagName) {
		p.MoreMS = cmd.Int(moreMSFlagName)
	}
}

func runEvelyze(ctx context.Context, cmd *urfave.Command) error {
	c, err := analysisConfig(cmd)
	if err != nil {
		return err
	}

	clock := analysis.ClockFor(c.NTPServer, c.NTPTimeout)
	clockName := "system"
	if nc, ok := clock.(*analysis.NTPClock); ok {
		clockName = "ntp:" + nc.Server
	}

	d := &analysis.Driver{
		Analyzer: &analysis.CommandAnalyzer{
			Executable: c.Executable,
			Stdout:     cmd.Root().Writer,
			Stderr:     cmd.Root().ErrWriter,
		},
		Clock: clock,
		Out:   output(cmd),
	}
	report, runErr := d.Run(ctx, c.Params)

	if !cmd.Bool("no-history") && !report.Start.IsZero() {
		if err := recordRun(cmd, history.NewRun(report, c.Executable, clockName)); err != nil {
			slog.Warn("run not recorded", "error", err)
		}
	}
	return runErr
}

func historyPath(cmd *urfave.Command) (string, error) {
	if p := cmd.String("db"); p != "" {
		return p, nil
	}
	dir, err := homeDir(cmd)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, history.DataFileName), nil
}

func recordRun(cmd *urfave.Command, run history.Run) error {
	path, err := historyPath(cmd)
	if err != nil {
		return err
	}
	if err := history.Init(path); err != nil {
		return err
	}
	db, err := history.GetDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := history.SaveRun(db, run)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	slog.Debug("run recorded", "id", id, "path", path)
	return nil
}
