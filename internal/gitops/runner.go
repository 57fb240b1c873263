// Package gitops wraps the git and gh CLIs. Every operation returns an
// explicit error; nothing is silently ignored unless documented as
// best-effort.
package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CmdResult is the captured outcome of one command
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command in dir. A non-zero exit is reported through
// ExitCode; the error is reserved for commands that could not run at all.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (CmdResult, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (CmdResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CmdResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// Error is returned when a git or gh operation fails
type Error struct {
	Message  string
	Stderr   string
	ExitCode int
}

func (e *Error) Error() string {
	return e.Message
}

// run executes tool with args. With check set, a non-zero exit becomes *Error.
func run(ctx context.Context, r Runner, logger *slog.Logger, dir string, check bool, tool string, args ...string) (CmdResult, error) {
	cmdline := tool + " " + strings.Join(args, " ")
	logger.Debug("Running: " + cmdline)

	res, err := r.Run(ctx, dir, tool, args...)
	if err != nil {
		return res, &Error{
			Message:  fmt.Sprintf("%s failed to run: %v", cmdline, err),
			Stderr:   res.Stderr,
			ExitCode: -1,
		}
	}
	if check && res.ExitCode != 0 {
		logger.Error(fmt.Sprintf("%s command failed: %s", tool, cmdline))
		logger.Error("stderr: " + res.Stderr)
		return res, &Error{
			Message:  fmt.Sprintf("%s failed (exit %d): %s", cmdline, res.ExitCode, strings.TrimSpace(res.Stderr)),
			Stderr:   res.Stderr,
			ExitCode: res.ExitCode,
		}
	}
	return res, nil
}
