package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/histonet/config"
	"github.com/sbl8/histonet/history"
	"github.com/sbl8/histonet/model"
)

// run executes the histonet app against dir and returns its stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := NewApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	argv := append([]string{appName, "--" + dirFlagName, dir}, args...)
	err := app.Run(context.Background(), argv)
	return buf.String(), err
}

func TestInitAndInspect(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "init", "--arch", model.ArchCNN, "--bins", "16", "--classes", "2", "--seed", "7")
	require.NoError(t, err)

	var s model.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, model.ArchCNN, s.Architecture)
	assert.Equal(t, 16, s.NumBins)
	assert.Equal(t, 2, s.NumClasses)

	assert.FileExists(t, filepath.Join(dir, config.ModelFileName))
	assert.FileExists(t, filepath.Join(dir, config.AnalysisFileName))
	assert.FileExists(t, filepath.Join(dir, defaultCheckpoint))

	c, err := config.LoadModel(filepath.Join(dir, config.ModelFileName))
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Seed)
	assert.Equal(t, defaultCheckpoint, c.Checkpoint)

	out, err = run(t, dir, "--format", "yaml", "inspect")
	require.NoError(t, err)
	var s2 model.Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &s2))
	assert.Equal(t, s, s2)
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "init")
	require.NoError(t, err)

	_, err = run(t, dir, "init")
	assert.Error(t, err)

	_, err = run(t, dir, "init", "--force", "--arch", model.ArchAttention)
	assert.NoError(t, err)
}

func TestInitInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "init", "--arch", "rnn")
	assert.Error(t, err)
	_, err = run(t, dir, "init", "--classes", "3", "--label", "a", "--label", "b")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, config.ModelFileName))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := run(t, t.TempDir(), "--format", "xml", "history")
	assert.Error(t, err)
}

func writeHistograms(t *testing.T, dir string, n, bins int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("# test histograms\n")
	for i := 0; i < n; i++ {
		vals := make([]string, bins)
		for j := range vals {
			if j == i%bins {
				vals[j] = "1"
			} else {
				vals[j] = "0"
			}
		}
		sb.WriteString(strings.Join(vals, ","))
		sb.WriteString("\n")
	}
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))
	return path
}

func TestPredict(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "init", "--bins", "8", "--classes", "2", "--label", "neg", "--label", "pos")
	require.NoError(t, err)
	input := writeHistograms(t, dir, 5, 8)

	out, err := run(t, dir, "predict", "--batch-size", "2", input)
	require.NoError(t, err)

	var preds []indexedPrediction
	require.NoError(t, json.Unmarshal([]byte(out), &preds))
	require.Len(t, preds, 5)
	for i, p := range preds {
		assert.Equal(t, i, p.Index)
		assert.Len(t, p.Probabilities, 2)
		assert.Contains(t, []string{"neg", "pos"}, p.Label)
	}
}

func TestPredictStream(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "init", "--arch", model.ArchAttention, "--bins", "8", "--classes", "2")
	require.NoError(t, err)
	input := writeHistograms(t, dir, 4, 8)

	out, err := run(t, dir, "predict", "--stream", "--workers", "2", input)
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	seen := map[int]bool{}
	for dec.More() {
		var p indexedPrediction
		require.NoError(t, dec.Decode(&p))
		assert.Len(t, p.Attention, 8)
		seen[p.Index] = true
	}
	assert.Len(t, seen, 4)
}

func TestPredictErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "predict", "missing.csv")
	assert.Error(t, err, "no model config")

	_, err = run(t, dir, "init", "--bins", "8")
	require.NoError(t, err)

	_, err = run(t, dir, "predict")
	assert.Error(t, err, "no input")

	input := writeHistograms(t, dir, 2, 9)
	_, err = run(t, dir, "predict", input)
	assert.Error(t, err, "wrong bin count")
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-evelyze")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func TestEvelyzeRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, `echo "$@" > "$(dirname "$0")/args.txt"`)

	out, err := run(t, dir, "evelyze", "--executable", exe, "--folder", "data", "--offset", "12", "--dt-window", "0,1000")
	require.NoError(t, err)
	assert.Regexp(t, `^Execution time: \d+\.\d{3} seconds\n$`, out)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "--localizations-file=data/orig58_pf.hdf5")
	assert.Contains(t, string(args), "--offset=12")
	assert.Contains(t, string(args), "--dt-window=0,1000")

	_, err = run(t, dir, "evelyze", "--executable", writeScript(t, dir, "exit 3"))
	assert.Error(t, err)

	out, err = run(t, dir, "history", "--limit", "10")
	require.NoError(t, err)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
	assert.Equal(t, history.StatusOK, runs[1].Status)
	assert.Equal(t, 12, runs[1].Params.Offset)
	assert.Equal(t, "system", runs[1].Clock)
}

func TestEvelyzeNoHistory(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "exit 0")

	_, err := run(t, dir, "evelyze", "--executable", exe, "--no-history")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, history.DataFileName))

	out, err := run(t, dir, "history")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestEvelyzeInvalidParams(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "evelyze", "--executable", writeScript(t, dir, "exit 0"), "--dt-window", "5")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, history.DataFileName))
}

func TestPerf(t *testing.T) {
	dir := t.TempDir()
	for _, test := range []string{"vector", "linear", "conv", "activation"} {
		out, err := run(t, dir, "perf", "--test", test, "--size", "32", "--iter", "10")
		require.NoError(t, err, test)
		assert.Contains(t, out, "Histonet Performance Analysis Tool")
	}

	out, err := run(t, dir, "perf", "--test", "model", "--iter", "1")
	require.NoError(t, err)
	for _, arch := range model.Names() {
		assert.Contains(t, out, arch)
	}

	_, err = run(t, dir, "perf", "--test", "matrix")
	assert.Error(t, err)
}

func TestPerfActivationSelection(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "perf", "--test", "activation", "--size", "16", "--iter", "2",
		"--op", "TANH", "--op", "relu")
	require.NoError(t, err)
	assert.Contains(t, out, "tanh")
	assert.Contains(t, out, "relu")
	assert.NotContains(t, out, "sigmoid")

	_, err = run(t, dir, "perf", "--test", "activation", "--op", "gelu")
	assert.Error(t, err)
}

func TestStandaloneApps(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	app := NewEvelyzeApp()
	app.Writer = &buf
	err := app.Run(context.Background(), []string{"evelyze", "--dir", dir, "--no-history",
		"--executable", writeScript(t, dir, "exit 0")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Execution time:")

	buf.Reset()
	perf := NewPerfApp()
	perf.Writer = &buf
	require.NoError(t, perf.Run(context.Background(), []string{"histperf", "--test", "vector", "--size", "16", "--iter", "2"}))
	assert.Contains(t, buf.String(), "Dot Product")
}
