package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// DefaultExecutable is the program CommandAnalyzer runs when none is configured.
const DefaultExecutable = "evelyze"

// Analyzer runs the evelyze routine over a parameter set.
type Analyzer interface {
	Evelyze(ctx context.Context, p Params) error
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, p Params) error

func (f AnalyzerFunc) Evelyze(ctx context.Context, p Params) error { return f(ctx, p) }

// CommandAnalyzer runs evelyze as an external process, passing the
// parameters as flags. The process inherits the environment plus Env.
type CommandAnalyzer struct {
	Executable string
	Dir        string
	Env        []string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Evelyze starts the executable and waits for it to exit. A non-zero exit
// status is returned as an error carrying the code.
func (a *CommandAnalyzer) Evelyze(ctx context.Context, p Params) error {
	exe := a.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return fmt.Errorf("analysis executable %q: %w", exe, err)
	}

	cmd := exec.CommandContext(ctx, path, p.Args()...)
	cmd.Dir = a.Dir
	cmd.Env = append(os.Environ(), a.Env...)
	cmd.Stdout = orDefault(a.Stdout, os.Stdout)
	cmd.Stderr = orDefault(a.Stderr, os.Stderr)

	slog.Debug("running analysis", "executable", path, "args", cmd.Args[1:])
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %w", exe, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("running %s: %w", exe, err)
	}
	return nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
