package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Report is the timing of one driver run.
type Report struct {
	Start   time.Time     `json:"start" yaml:"start"`
	End     time.Time     `json:"end" yaml:"end"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Params  Params        `json:"params" yaml:"params"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Seconds returns the elapsed time in seconds.
func (r Report) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// Driver times a single analyzer invocation.
type Driver struct {
	Analyzer Analyzer
	Clock    Clock
	Out      io.Writer
}

// FormatElapsed renders d the way the driver prints it.
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("Execution time: %.3f seconds", d.Seconds())
}

// Run validates p, invokes the analyzer once and prints the elapsed time to
// Out. The report is returned even when the analyzer fails; the timing line
// is only printed on success.
func (d *Driver) Run(ctx context.Context, p Params) (Report, error) {
	if d.Analyzer == nil {
		return Report{}, errors.New("analyzer required")
	}
	if err := p.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid parameters: %w", err)
	}
	clock := d.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	r := Report{Params: p, Start: clock.Now()}
	err := d.Analyzer.Evelyze(ctx, p)
	r.End = clock.Now()
	r.Elapsed = max(r.End.Sub(r.Start), 0)

	if err != nil {
		r.Error = err.Error()
		slog.Debug("analysis failed", "elapsed", r.Elapsed, "error", err)
		return r, fmt.Errorf("evelyze: %w", err)
	}

	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintln(out, FormatElapsed(r.Elapsed)); err != nil {
		return r, err
	}
	return r, nil
}
