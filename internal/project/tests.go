// Package project runs the target repository's own tooling: its test suite
// and the dev server the screenshot agent browses.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/utils"
)

// waitDelay bounds how long output pipes are drained after a kill
const waitDelay = 5 * time.Second

// TestRunner runs the configured test command in the repository root
type TestRunner struct {
	Dir     string
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewTestRunner returns a TestRunner logging as "project"
func NewTestRunner(dir, command string, timeout time.Duration, logger *slog.Logger) *TestRunner {
	if logger == nil {
		logger = display.Discard()
	}
	return &TestRunner{Dir: dir, Command: command, Timeout: timeout, Logger: display.Named(logger, "project")}
}

// Run executes the suite and reports whether it passed along with its
// combined output (stdout, newline, stderr)
func (t *TestRunner) Run(ctx context.Context) (bool, string) {
	fields := strings.Fields(t.Command)
	if len(fields) == 0 {
		return false, "No test command configured"
	}
	t.Logger.Info("Running tests: " + t.Command)

	tctx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(tctx, fields[0], fields[1:]...)
	cmd.Dir = t.Dir
	utils.SetProcessGroup(cmd)
	cmd.Cancel = func() error { return utils.KillProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("Tests timed out after %ds", int(t.Timeout.Seconds()))
		t.Logger.Warn(msg)
		return false, msg
	}

	output := stdout.String() + "\n" + stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			t.Logger.Warn(fmt.Sprintf("Tests failed (exit %d)", exitErr.ExitCode()))
		} else {
			t.Logger.Warn("Tests could not be run", "error", err)
			output += err.Error()
		}
		t.Logger.Debug("Test output:\n" + output)
		return false, output
	}

	t.Logger.Info("Tests passed")
	return true, output
}
