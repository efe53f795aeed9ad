// Package config reads and writes the YAML files that configure histonet
// models and analysis runs.
package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/histonet/analysis"
	"github.com/sbl8/histonet/model"
	"github.com/sbl8/histonet/runtime"
)

const (
	ModelFileName    = "model.yaml"
	AnalysisFileName = "analysis.yaml"

	dirMode  = 0700
	fileMode = 0600
)

// EngineConfig sizes the inference engine. Zero values select the runtime
// defaults.
type EngineConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

// ModelConfig describes which classifier to build and how to run it.
type ModelConfig struct {
	Architecture string       `yaml:"architecture"`
	NumBins      int          `yaml:"num_bins"`
	NumClasses   int          `yaml:"num_classes"`
	Seed         int64        `yaml:"seed"`
	Checkpoint   string       `yaml:"checkpoint,omitempty"`
	Labels       []string     `yaml:"labels,omitempty"`
	Engine       EngineConfig `yaml:"engine"`
}

// AnalysisConfig holds the evelyze parameters and how to run the analyzer.
type AnalysisConfig struct {
	Executable string          `yaml:"executable"`
	NTPServer  string          `yaml:"ntp_server,omitempty"`
	NTPTimeout time.Duration   `yaml:"ntp_timeout,omitempty"`
	Params     analysis.Params `yaml:"params"`
}

// DefaultModelConfig returns the configuration of the default 120-bin,
// 3-class fully-connected classifier.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		Architecture: model.ArchMLP,
		NumBins:      model.DefaultNumBins,
		NumClasses:   model.DefaultNumClasses,
	}
}

// DefaultAnalysisConfig returns the reference analysis configuration.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		Executable: analysis.DefaultExecutable,
		Params:     analysis.DefaultParams(),
	}
}

// Validate checks the model configuration without building the model.
func (c *ModelConfig) Validate() error {
	if _, ok := model.Architectures[c.Architecture]; !ok {
		return errors.Errorf("unknown architecture %q, expected one of %v", c.Architecture, model.Names())
	}
	if c.NumBins <= 0 || c.NumClasses <= 0 {
		return errors.Errorf("num_bins (%d) and num_classes (%d) must be positive", c.NumBins, c.NumClasses)
	}
	if c.Labels != nil && len(c.Labels) != c.NumClasses {
		return errors.Errorf("%d labels for %d classes", len(c.Labels), c.NumClasses)
	}
	if c.Engine.Workers < 0 || c.Engine.BatchSize < 0 {
		return errors.New("engine workers and batch_size must not be negative")
	}
	return nil
}

// Build constructs the configured classifier and loads its checkpoint, if any.
// A relative checkpoint path is resolved against baseDir.
func (c *ModelConfig) Build(baseDir string) (model.Classifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	clf, err := model.New(c.Architecture, c.NumBins, c.NumClasses, c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build model")
	}
	if c.Checkpoint != "" {
		path := c.Checkpoint
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if err := model.LoadFile(path, clf); err != nil {
			return nil, errors.Wrapf(err, "failed to load checkpoint: %s", path)
		}
		slog.Debug("checkpoint loaded", "path", path)
	}
	return clf, nil
}

// EngineOptions converts the engine section to runtime options.
func (c *ModelConfig) EngineOptions() *runtime.EngineOptions {
	return &runtime.EngineOptions{
		Workers:     c.Engine.Workers,
		BatchSize:   c.Engine.BatchSize,
		EnableStats: true,
	}
}

// Validate checks the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	if c.Executable == "" {
		return errors.New("executable required")
	}
	if c.NTPTimeout < 0 {
		return errors.New("ntp_timeout must not be negative")
	}
	return errors.Wrap(c.Params.Validate(), "invalid params")
}

// Save writes v as YAML to path.
func Save(path string, v any) error {
	if path == "" {
		return errors.New("config path required")
	}
	if v == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// Load decodes the YAML file at path into v. Unknown keys are rejected.
func Load(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "error unmarshalling config file %s", path)
	}
	return nil
}

// LoadModel reads a model configuration; keys missing from the file keep
// their defaults.
func LoadModel(path string) (*ModelConfig, error) {
	c := DefaultModelConfig()
	if err := Load(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadAnalysis reads an analysis configuration; keys missing from the file
// keep their defaults.
func LoadAnalysis(path string) (*AnalysisConfig, error) {
	c := DefaultAnalysisConfig()
	if err := Load(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadOrCreate reads the YAML file name in dirPath into v, first writing v
// there when the file does not exist. The directory is created if needed.
func ReadOrCreate(dirPath, name string, v any) (created bool, err error) {
	if dirPath == "" {
		return false, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return false, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, v); err != nil {
			return false, errors.Wrap(err, "failed to create default config")
		}
		created = true
	}

	return created, Load(path, v)
}

// GetOrCreateHomeDir returns the application directory under the user's home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
