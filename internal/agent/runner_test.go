package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daydemir/ralph-agent/internal/display"
)

// withFastWatchdog shrinks the polling constants for the duration of a test
func withFastWatchdog(t *testing.T) {
	t.Helper()
	oldPoll, oldBuffer, oldDrain := pollInterval, deadlineBuffer, drainTimeout
	pollInterval = 10 * time.Millisecond
	deadlineBuffer = 0
	drainTimeout = 2 * time.Second
	t.Cleanup(func() {
		pollInterval, deadlineBuffer, drainTimeout = oldPoll, oldBuffer, oldDrain
	})
}

// writeScript writes an executable fake cline into a temp dir
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cline")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

type fakeUsage struct {
	mu     sync.Mutex
	values []float64
	calls  int
}

func (f *fakeUsage) Usage(context.Context) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0, false
	}
	i := f.calls
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	f.calls++
	return f.values[i], true
}

func noEnv(string) string { return "" }

func newTestCline(t *testing.T, binary string, opts Options) *Cline {
	t.Helper()
	opts.Binary = binary
	if opts.StateDir == "" {
		opts.StateDir = filepath.Join(t.TempDir(), ".cline-test")
	}
	if opts.Model == "" {
		opts.Model = "deepseek/deepseek-v3.2"
	}
	if opts.Usage == nil {
		opts.Usage = NoUsage{}
	}
	if opts.Getenv == nil {
		opts.Getenv = noEnv
	}
	c, err := NewCline(opts)
	require.NoError(t, err)
	return c
}

func TestRunEmptyPromptStartsNothing(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	c := newTestCline(t, writeScript(t, "touch "+marker), Options{})

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := c.Run(context.Background(), Request{Prompt: prompt})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	}
	assert.NoFileExists(t, marker)
}

func TestRunSuccess(t *testing.T) {
	withFastWatchdog(t)

	script := writeScript(t, `echo "dir=$CLINE_DIR"
echo "perms=$CLINE_COMMAND_PERMISSIONS"
echo "args=$*"
echo ""
echo "working" >&2`)

	var logs bytes.Buffer
	logger := display.NewLogger(&logs, "ralph-agent", display.Options{Level: slog.LevelDebug, NoColor: true})
	usage := &fakeUsage{values: []float64{1.00, 1.25}}
	c := newTestCline(t, script, Options{Logger: logger, Usage: usage})

	workDir := t.TempDir()
	res, err := c.Run(context.Background(), Request{Prompt: "fix the bug", Timeout: 120 * time.Second, WorkDir: workDir})
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, 0, res.ExitCode)
	assert.Len(t, res.RunID, 8)
	assert.Contains(t, res.Stdout, "dir="+c.StateDir())
	assert.Contains(t, res.Stdout, `perms={"allow":["npm *"`)
	assert.Contains(t, res.Stdout, "args=-y --timeout 120 -c "+workDir+" fix the bug")
	assert.Equal(t, "working", res.Stderr)

	require.NotNil(t, res.CostUSD)
	assert.InDelta(t, 0.25, *res.CostUSD, 1e-9)

	out := logs.String()
	assert.Contains(t, out, "[cline] ")
	assert.Contains(t, out, "[cline stdout] args=")
	assert.Contains(t, out, "[cline stderr] working")
	assert.Contains(t, out, "Cline finished (exit_code=0)")
	// blank lines are captured but not logged
	assert.NotContains(t, out, "[cline stdout] \n")
}

func TestRunCostClampedAtZero(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, "exit 0"), Options{Usage: &fakeUsage{values: []float64{5, 4}}})
	res, err := c.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	require.NotNil(t, res.CostUSD)
	assert.Equal(t, 0.0, *res.CostUSD)
}

func TestRunNoCostWithoutUsage(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, "exit 0"), Options{})
	res, err := c.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Nil(t, res.CostUSD)
}

func TestRunNonZeroExit(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, `echo partial
echo "boom" >&2
exit 3`), Options{})

	res, err := c.Run(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Nil(t, res)

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, KindExit, aerr.Kind)
	assert.Equal(t, 3, aerr.ExitCode)
	assert.Equal(t, "partial", aerr.Stdout)
	assert.Equal(t, "boom", aerr.Stderr)
	assert.Contains(t, err.Error(), "Cline exited with code 3")
}

func TestRunStuckPatternKillsProcess(t *testing.T) {
	withFastWatchdog(t)

	tests := []struct {
		name string
		body string
		line string
	}{
		{
			name: "stdout confirmation prompt",
			body: "echo 'Do you want to proceed? (Y/n)'\nexec sleep 30",
			line: "Do you want to proceed? (Y/n)",
		},
		{
			name: "stderr auth prompt",
			body: "echo \"Please run 'cline auth' first\" >&2\nexec sleep 30",
			line: "Please run 'cline auth' first",
		},
		{
			name: "case insensitive",
			body: "echo 'PRESS ENTER TO CONTINUE'\nexec sleep 30",
			line: "PRESS ENTER TO CONTINUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCline(t, writeScript(t, tt.body), Options{})

			start := time.Now()
			_, err := c.Run(context.Background(), Request{Prompt: "p", Timeout: time.Minute})
			require.Error(t, err)
			assert.Less(t, time.Since(start), 20*time.Second)

			assert.ErrorIs(t, err, ErrStuck)
			var aerr *Error
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, KindStuck, aerr.Kind)
			assert.Equal(t, -1, aerr.ExitCode)
			assert.Contains(t, err.Error(), "Detected stuck pattern")
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestRunStuckPatternWhileStillWriting(t *testing.T) {
	withFastWatchdog(t)
	pollInterval = time.Second

	body := "echo 'Do you want to proceed? (Y/n)'\nwhile true; do echo waiting; sleep 0.05; done"
	c := newTestCline(t, writeScript(t, body), Options{})

	start := time.Now()
	_, err := c.Run(context.Background(), Request{Prompt: "p", Timeout: time.Minute})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)

	assert.ErrorIs(t, err, ErrStuck)
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, KindStuck, aerr.Kind)
	assert.Equal(t, -1, aerr.ExitCode)
	assert.Contains(t, err.Error(), "Do you want to proceed? (Y/n)")
	assert.NotContains(t, aerr.Stdout, "waiting")
}

func TestRunStuckPatternThenExit(t *testing.T) {
	withFastWatchdog(t)
	pollInterval = time.Second

	c := newTestCline(t, writeScript(t, "echo 'waiting for approval'\nexit 0"), Options{})

	_, err := c.Run(context.Background(), Request{Prompt: "p", Timeout: time.Minute})
	assert.ErrorIs(t, err, ErrStuck)
	assert.Contains(t, err.Error(), "waiting for approval")
}

func TestBuildEnvUsesInjectedEnviron(t *testing.T) {
	environ := func() []string {
		return []string{"PATH=/usr/bin", "OPENROUTER_API_KEY=old", "OPENROUTER_API_KEY=sk-env"}
	}
	stateDir := filepath.Join(t.TempDir(), ".cline-env")
	c, err := NewCline(Options{
		Binary:   writeScript(t, "exit 0"),
		StateDir: stateDir,
		Model:    "m",
		Usage:    NoUsage{},
		Environ:  environ,
	})
	require.NoError(t, err)

	env, err := c.buildEnv()
	require.NoError(t, err)
	assert.Equal(t, "PATH=/usr/bin", env[0])
	assert.Contains(t, env, "CLINE_DIR="+c.StateDir())
	assert.NotContains(t, strings.Join(env, "\n"), "HOME=")

	data, err := os.ReadFile(filepath.Join(c.StateDir(), "data", "secrets.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sk-env")
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, "echo starting\nexec sleep 30"), Options{})

	start := time.Now()
	_, err := c.Run(context.Background(), Request{Prompt: "p", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)

	assert.ErrorIs(t, err, ErrTimeout)
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, KindTimeout, aerr.Kind)
	assert.Equal(t, -1, aerr.ExitCode)
	assert.Contains(t, aerr.Stdout, "starting")
}

func TestRunContextCanceled(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, "exec sleep 30"), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, Request{Prompt: "p", Timeout: time.Minute})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunStartFailure(t *testing.T) {
	withFastWatchdog(t)

	script := writeScript(t, "exit 0")
	c := newTestCline(t, script, Options{})
	require.NoError(t, os.Remove(script))

	_, err := c.Run(context.Background(), Request{Prompt: "p"})
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, KindStart, aerr.Kind)
	assert.Equal(t, -1, aerr.ExitCode)
}

func TestBuildArgsPlanFlag(t *testing.T) {
	script := writeScript(t, "exit 0")

	tests := []struct {
		name      string
		model     string
		planModel string
		wantPlan  bool
	}{
		{"distinct planner", "minimax/minimax-m2.5", "z-ai/glm-5", true},
		{"same planner", "deepseek/deepseek-v3.2", "deepseek/deepseek-v3.2", false},
		{"no planner", "deepseek/deepseek-v3.2", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCline(t, script, Options{Model: tt.model, PlanModel: tt.planModel})
			args := c.buildArgs("do it", 90*time.Second, "")

			assert.Equal(t, tt.wantPlan, contains(args, "-p"))
			assert.Equal(t, []string{"-y", "--timeout", "90"}, args[:3])
			assert.Equal(t, "do it", args[len(args)-1])
			assert.False(t, contains(args, "-c"))
		})
	}
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func TestRunDefaultTimeout(t *testing.T) {
	withFastWatchdog(t)

	c := newTestCline(t, writeScript(t, `echo "args=$*"`), Options{})
	res, err := c.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "--timeout 600")
}

func TestNewClineBinaryNotFound(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".cline-missing")

	_, err := NewCline(Options{
		StateDir: stateDir,
		Model:    "m",
		Binary:   "definitely-not-a-real-cline-binary",
		Getenv:   noEnv,
	})
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	assert.Contains(t, err.Error(), "npm install -g cline")
	assert.NoDirExists(t, stateDir)
}

func TestStateOverwrittenOnEachConstruction(t *testing.T) {
	script := writeScript(t, "exit 0")
	stateDir := filepath.Join(t.TempDir(), ".cline-coder")

	newTestCline(t, script, Options{StateDir: stateDir, Model: "first/model"})
	newTestCline(t, script, Options{StateDir: stateDir, Model: "second/model", PlanModel: "planner/model"})

	data, err := os.ReadFile(filepath.Join(stateDir, "data", "globalState.json"))
	require.NoError(t, err)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, true, state["welcomeViewCompleted"])
	assert.Equal(t, "openrouter", state["actModeApiProvider"])
	assert.Equal(t, "openrouter", state["planModeApiProvider"])
	assert.Equal(t, "second/model", state["actModeOpenRouterModelId"])
	assert.Equal(t, "planner/model", state["planModeOpenRouterModelId"])
	assert.NotContains(t, string(data), "first/model")
}

func TestStateSecretsAndMCP(t *testing.T) {
	script := writeScript(t, "exit 0")
	stateDir := filepath.Join(t.TempDir(), ".cline-coder")
	mcp := filepath.Join(t.TempDir(), "cline_mcp_settings.json")
	secretsPath := filepath.Join(stateDir, "data", "secrets.json")
	mcpDest := filepath.Join(stateDir, "data", "settings", "cline_mcp_settings.json")

	t.Run("no key, no descriptor", func(t *testing.T) {
		newTestCline(t, script, Options{StateDir: stateDir, MCPSettingsPath: mcp})
		assert.NoFileExists(t, secretsPath)
		assert.NoFileExists(t, mcpDest)
	})

	t.Run("key and descriptor written", func(t *testing.T) {
		require.NoError(t, os.WriteFile(mcp, []byte(`{"mcpServers":{"v":1}}`), 0644))
		getenv := func(k string) string {
			if k == "OPENROUTER_API_KEY" {
				return "sk-or-test"
			}
			return ""
		}
		newTestCline(t, script, Options{StateDir: stateDir, MCPSettingsPath: mcp, Getenv: getenv})

		data, err := os.ReadFile(secretsPath)
		require.NoError(t, err)
		assert.JSONEq(t, `{"openRouterApiKey":"sk-or-test"}`, string(data))

		copied, err := os.ReadFile(mcpDest)
		require.NoError(t, err)
		assert.Equal(t, `{"mcpServers":{"v":1}}`, string(copied))
	})

	t.Run("descriptor overwritten", func(t *testing.T) {
		require.NoError(t, os.WriteFile(mcp, []byte(`{"mcpServers":{"v":2}}`), 0644))
		newTestCline(t, script, Options{StateDir: stateDir, MCPSettingsPath: mcp})

		copied, err := os.ReadFile(mcpDest)
		require.NoError(t, err)
		assert.Equal(t, `{"mcpServers":{"v":2}}`, string(copied))
	})
}

func TestHeartbeatFormat(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "no usage",
			got:      heartbeat(30*time.Second, 12, 0, false, 0, false, 0, false),
			expected: "Cline running: 30s elapsed | 12 output lines",
		},
		{
			name:     "interval and run spend",
			got:      heartbeat(60*time.Second, 40, 1.5, true, 1.25, true, 1.0, true),
			expected: "Cline running: 60s elapsed | 40 output lines | +$0.2500 this interval / $0.5000 this run",
		},
		{
			name:     "first usage reading",
			got:      heartbeat(90*time.Second, 0, 2, true, 0, false, 0, false),
			expected: "Cline running: 90s elapsed | 0 output lines | usage=$2.0000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestResultSuccess(t *testing.T) {
	for code, want := range map[int]bool{0: true, 1: false, -1: false, 137: false} {
		r := &Result{ExitCode: code}
		assert.Equal(t, want, r.Success(), "exit code %d", code)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindStart, Message: "failed to start Cline", Err: errors.New("no such file")}
	assert.Equal(t, "failed to start Cline: no such file", err.Error())
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.True(t, strings.HasPrefix(KindStuck.String(), "stuck"))
}
