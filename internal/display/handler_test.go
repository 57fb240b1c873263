package display

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return NewLogger(buf, "ralph-agent", Options{Level: level, NoColor: true})
}

func TestHandlerLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)

	logger.Info("Creating branch", "branch", "ralph/issue-42-fix-login-bug")

	line := strings.TrimRight(buf.String(), "\n")
	pattern := regexp.MustCompile(`^\[ralph-agent\] \d{2}:\d{2}:\d{2} INFO    Creating branch branch=ralph/issue-42-fix-login-bug$`)
	assert.Regexp(t, pattern, line)
}

func TestHandlerLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger)
		label string
	}{
		{"info", func(l *slog.Logger) { l.Info("m") }, "INFO    "},
		{"warning", func(l *slog.Logger) { l.Warn("m") }, "WARNING "},
		{"error", func(l *slog.Logger) { l.Error("m") }, "ERROR   "},
		{"debug", func(l *slog.Logger) { l.Debug("m") }, "DEBUG   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(newTestLogger(&buf, slog.LevelDebug))
			assert.Contains(t, buf.String(), tt.label+"m")
		})
	}
}

func TestHandlerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNamedOverridesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Named(newTestLogger(&buf, slog.LevelInfo), "cline")

	logger.Info("[cline stdout] hello")
	assert.True(t, strings.HasPrefix(buf.String(), "[cline] "), buf.String())
	assert.NotContains(t, buf.String(), "logger=")
}

func TestHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, slog.LevelInfo).WithGroup("agent")

	logger.Info("done", "reason", "stuck pattern")
	assert.Contains(t, buf.String(), `agent.reason="stuck pattern"`)
}

func TestSection(t *testing.T) {
	var buf bytes.Buffer
	Section(newTestLogger(&buf, slog.LevelInfo), "Coding attempt 1/3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], SectionRule)
	assert.Contains(t, lines[1], "Coding attempt 1/3")
	assert.Contains(t, lines[2], SectionRule)
}

func TestColorEnabledRespectsFlagAndEnv(t *testing.T) {
	assert.False(t, ColorEnabled(true))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(false))
}
