package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/sbl8/histonet/config"
	"github.com/sbl8/histonet/dataset"
	"github.com/sbl8/histonet/model"
	"github.com/sbl8/histonet/runtime"
)

const defaultCheckpoint = "model.hstn"

func configFlag() *urfave.StringFlag {
	return &urfave.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the model config (optional, defaults to <dir>/" + config.ModelFileName + ")",
	}
}

// loadModelConfig resolves the model config path and reads it.
func loadModelConfig(cmd *urfave.Command) (*config.ModelConfig, string, error) {
	path := cmd.String("config")
	if path == "" {
		dir, err := homeDir(cmd)
		if err != nil {
			return nil, "", err
		}
		path = filepath.Join(dir, config.ModelFileName)
	}
	c, err := config.LoadModel(path)
	if err != nil {
		return nil, "", err
	}
	return c, filepath.Dir(path), nil
}

func newInitCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "init",
		Usage: "Writes a model config and an initialised checkpoint",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "arch",
				Usage: fmt.Sprintf("Architecture [%s]", strings.Join(model.Names(), ", ")),
				Value: model.ArchMLP,
			},
			&urfave.IntFlag{
				Name:  "bins",
				Usage: "Histogram length",
				Value: model.DefaultNumBins,
			},
			&urfave.IntFlag{
				Name:  "classes",
				Usage: "Number of output classes",
				Value: model.DefaultNumClasses,
			},
			&urfave.Int64Flag{
				Name:  "seed",
				Usage: "Parameter initialisation seed",
			},
			&urfave.StringSliceFlag{
				Name:  "label",
				Usage: "Class label, repeat once per class (optional)",
			},
			&urfave.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing model config",
			},
		},
		Action: runInit,
	}
}

func runInit(_ context.Context, cmd *urfave.Command) error {
	dir, err := homeDir(cmd)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, config.ModelFileName)
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	c := &config.ModelConfig{
		Architecture: cmd.String("arch"),
		NumBins:      cmd.Int("bins"),
		NumClasses:   cmd.Int("classes"),
		Seed:         cmd.Int64("seed"),
		Checkpoint:   defaultCheckpoint,
		Labels:       cmd.StringSlice("label"),
	}
	if len(c.Labels) == 0 {
		c.Labels = nil
	}
	if err := c.Validate(); err != nil {
		return err
	}

	clf, err := model.New(c.Architecture, c.NumBins, c.NumClasses, c.Seed)
	if err != nil {
		return err
	}
	if err := model.SaveFile(filepath.Join(dir, c.Checkpoint), clf); err != nil {
		return err
	}
	if err := config.Save(path, c); err != nil {
		return err
	}
	if _, err := config.ReadOrCreate(dir, config.AnalysisFileName, config.DefaultAnalysisConfig()); err != nil {
		return err
	}
	slog.Info("model initialised", "config", path, "architecture", c.Architecture)

	return encode(cmd, model.Describe(clf))
}

func newInspectCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "inspect",
		Usage:  "Prints the architecture and parameter shapes of the configured model",
		Flags:  []urfave.Flag{configFlag()},
		Action: runInspect,
	}
}

func runInspect(_ context.Context, cmd *urfave.Command) error {
	c, base, err := loadModelConfig(cmd)
	if err != nil {
		return err
	}
	clf, err := c.Build(base)
	if err != nil {
		return err
	}
	return encode(cmd, model.Describe(clf))
}

func newPredictCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "predict",
		Usage:     "Classifies histograms read from a CSV or binary file",
		ArgsUsage: "<file|->",
		Flags: []urfave.Flag{
			configFlag(),
			&urfave.StringFlag{
				Name:  "input-format",
				Usage: "Input format [csv, bin] (optional, detected from the extension)",
			},
			&urfave.IntFlag{
				Name:  "workers",
				Usage: "Worker goroutines (optional, overrides config)",
			},
			&urfave.IntFlag{
				Name:  "batch-size",
				Usage: "Histograms per forward pass (optional, overrides config)",
			},
			&urfave.BoolFlag{
				Name:  "stream",
				Usage: "Print predictions as they complete instead of in one document",
			},
		},
		Action: runPredict,
	}
}

// indexedPrediction pairs a prediction with its input position.
type indexedPrediction struct {
	Index int `json:"index" yaml:"index"`
	model.Prediction `yaml:",inline"`
}

func runPredict(ctx context.Context, cmd *urfave.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("expected one input file, got %d arguments", cmd.NArg())
	}
	c, base, err := loadModelConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("workers") {
		c.Engine.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("batch-size") {
		c.Engine.BatchSize = cmd.Int("batch-size")
	}

	clf, err := c.Build(base)
	if err != nil {
		return err
	}
	engine, err := runtime.NewEngine(clf, c.EngineOptions())
	if err != nil {
		return err
	}
	if err := engine.SetLabels(c.Labels); err != nil {
		return err
	}

	rows, err := dataset.ReadFile(cmd.Args().First(), cmd.String("input-format"), c.NumBins)
	if err != nil {
		return err
	}
	slog.Debug("histograms loaded", "count", len(rows))

	if cmd.Bool("stream") {
		err = streamPredictions(ctx, cmd, engine, rows)
	} else {
		err = batchPredictions(ctx, cmd, engine, rows)
	}
	if err != nil {
		return err
	}

	stats := engine.Stats()
	slog.Debug("engine stats",
		"samples", stats.TotalSamples,
		"chunks", stats.TotalChunks,
		"latency", stats.AverageLatency)
	return nil
}

func batchPredictions(ctx context.Context, cmd *urfave.Command, engine *runtime.Engine, rows [][]float32) error {
	preds, err := engine.Execute(ctx, rows)
	if err != nil {
		return err
	}
	out := make([]indexedPrediction, len(preds))
	for i, p := range preds {
		out[i] = indexedPrediction{Index: i, Prediction: p}
	}
	return encode(cmd, out)
}

func streamPredictions(ctx context.Context, cmd *urfave.Command, engine *runtime.Engine, rows [][]float32) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []float32)
	out := make(chan runtime.Result)

	go func() {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- engine.ExecuteStream(ctx, in, out) }()

	var encErr error
	for r := range out {
		if encErr == nil {
			encErr = encode(cmd, indexedPrediction{Index: r.Index, Prediction: r.Prediction})
		}
	}
	if err := <-errc; err != nil {
		return err
	}
	return encErr
}
