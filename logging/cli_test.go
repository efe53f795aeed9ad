package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCLILogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := NewCLILogger(level)
		require.NotNil(t, logger)
	}
}

func TestCLIHandlerColors(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger)
		color string
	}{
		{"info", func(l *slog.Logger) { l.Info("msg") }, colorGreen},
		{"warn", func(l *slog.Logger) { l.Warn("msg") }, colorYellow},
		{"error", func(l *slog.Logger) { l.Error("msg") }, colorRed},
		{"debug", func(l *slog.Logger) { l.Debug("msg") }, colorGray},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewCLIHandler(&buf, slog.LevelDebug)))
			out := buf.String()
			assert.True(t, strings.HasPrefix(out, tt.color), out)
			assert.Contains(t, out, "msg")
			assert.Contains(t, out, colorReset)
		})
	}
}

func TestCLIHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelWarn))
	logger.Info("hidden")
	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	var lv slog.LevelVar
	lv.Set(slog.LevelError)
	buf.Reset()
	logger = slog.New(NewCLIHandler(&buf, &lv))
	logger.Warn("hidden")
	assert.Zero(t, buf.Len())
	lv.Set(slog.LevelInfo)
	logger.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestCLIHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHandler(&buf, slog.LevelInfo).WithoutColor()
	logger := slog.New(h).With("arch", "cnn").WithGroup("engine").WithGroup("pool")

	logger.Info("executed", "samples", 12)
	assert.Equal(t, "[engine.pool] executed: arch=cnn samples=12\n", buf.String())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}
