// Package agent supervises the external Cline CLI: it prepares an isolated
// state directory, launches the process, drains both output streams, kills
// the process on timeout or when it blocks on an interactive prompt, and
// reports a typed result.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/utils"
)

// DefaultTimeout applies when a request does not set one
const DefaultTimeout = 600 * time.Second

// Watchdog tuning. Variables so tests can shrink them.
var (
	pollInterval   = time.Second
	deadlineBuffer = 30 * time.Second
	heartbeatEvery = 30
	drainTimeout   = 5 * time.Second
)

// Runner invokes an external coding agent
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request describes one agent invocation
type Request struct {
	Prompt  string
	Timeout time.Duration
	WorkDir string
}

// Result is produced once per successful invocation
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	CostUSD  *float64
	RunID    string
}

// Success reports whether the process exited cleanly
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Options configures a Cline runner
type Options struct {
	StateDir        string
	Model           string
	PlanModel       string // defaults to Model
	MCPSettingsPath string
	Policy          *Policy // defaults to DefaultPolicy()
	Binary          string  // defaults to "cline"
	Usage           UsageProbe
	Logger          *slog.Logger
	// Environ is the base environment of the subprocess; defaults to
	// os.Environ. Getenv reads OPENROUTER_API_KEY and defaults to a lookup
	// in Environ, so both come from the same source unless set separately.
	Environ func() []string
	Getenv  func(string) string
}

// Cline runs the Cline CLI with an isolated state directory
type Cline struct {
	binary    string
	stateDir  string
	model     string
	planModel string
	policy    Policy
	usage     UsageProbe
	environ   func() []string
	logger    *slog.Logger
}

// NewCline resolves the binary and prepares the state directory. The binary
// check happens first so a missing install never touches disk.
func NewCline(opts Options) (*Cline, error) {
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = lookupIn(environ)
	}
	logger := opts.Logger
	if logger == nil {
		logger = display.Discard()
	}
	logger = display.Named(logger, "cline")

	binary := opts.Binary
	if binary == "" {
		binary = "cline"
	}
	resolved, err := utils.ResolveBinaryPath(binary)
	if err != nil {
		return nil, ErrBinaryNotFound
	}

	if opts.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	stateDir, err := filepath.Abs(opts.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	planModel := opts.PlanModel
	if planModel == "" {
		planModel = opts.Model
	}

	apiKey := getenv("OPENROUTER_API_KEY")
	if err := setupState(stateDir, opts.Model, planModel, opts.MCPSettingsPath, apiKey, logger); err != nil {
		return nil, err
	}

	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	usage := opts.Usage
	if usage == nil {
		usage = NewOpenRouterProbe(apiKey, logger)
	}

	return &Cline{
		binary:    resolved,
		stateDir:  stateDir,
		model:     opts.Model,
		planModel: planModel,
		policy:    policy,
		usage:     usage,
		environ:   environ,
		logger:    logger,
	}, nil
}

// lookupIn returns a getenv over environ, last assignment winning
func lookupIn(environ func() []string) func(string) string {
	return func(name string) string {
		value := ""
		for _, kv := range environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k == name {
				value = v
			}
		}
		return value
	}
}

// Model returns the act-mode model id
func (c *Cline) Model() string { return c.model }

// StateDir returns the absolute isolated state directory
func (c *Cline) StateDir() string { return c.stateDir }

// buildArgs returns the command line after the binary name
func (c *Cline) buildArgs(prompt string, timeout time.Duration, workDir string) []string {
	args := []string{"-y", "--timeout", strconv.Itoa(int(timeout / time.Second))}

	// Plan mode only when planning and acting use different models
	if c.planModel != c.model {
		args = append(args, "-p")
	}

	if workDir != "" {
		args = append(args, "-c", workDir)
	}

	return append(args, prompt)
}

func (c *Cline) buildEnv() ([]string, error) {
	perms, err := c.policy.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode command permissions: %w", err)
	}
	env := append([]string(nil), c.environ()...)
	env = append(env,
		"CLINE_DIR="+c.stateDir,
		"CLINE_COMMAND_PERMISSIONS="+perms,
	)
	return env, nil
}

// Run executes one invocation. Non-zero exit, timeout and stuck detection
// all return *Error carrying the captured output.
func (c *Cline) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	secs := int(timeout / time.Second)

	runID := uuid.NewString()[:8]
	log := c.logger.With("run", runID)

	env, err := c.buildEnv()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(c.binary, c.buildArgs(req.Prompt, timeout, req.WorkDir)...)
	cmd.Dir = req.WorkDir
	cmd.Env = env
	cmd.WaitDelay = drainTimeout
	utils.SetProcessGroup(cmd)

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	log.Info(fmt.Sprintf("Running Cline (act=%s, plan=%s, timeout=%ds)", c.model, c.planModel, secs))
	log.Debug("Cline state", "CLINE_DIR", c.stateDir, "prompt_chars", len(req.Prompt))

	// Baseline for per-run spend
	baseline, baselineOK := c.usage.Usage(ctx)

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return nil, &Error{
			Kind:     KindStart,
			Message:  "failed to start Cline",
			ExitCode: -1,
			Err:      err,
		}
	}
	start := time.Now()

	var stdout, stderr lineBuffer
	var flag stuckFlag

	var readers errgroup.Group
	readers.Go(func() error { return readStream(outR, &stdout, "stdout", &flag, log) })
	readers.Go(func() error { return readStream(errR, &stderr, "stderr", &flag, log) })
	readersDone := make(chan error, 1)
	go func() { readersDone <- readers.Wait() }()

	exited := make(chan struct{})
	go func() {
		// Wait returns once the process is gone and the copy goroutines
		// finish; closing the writers then lets the readers hit EOF.
		_ = cmd.Wait()
		outW.Close()
		errW.Close()
		close(exited)
	}()

	fail := func(kind Kind, msg string) *Error {
		return &Error{
			Kind:     kind,
			Message:  msg,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: -1,
		}
	}
	kill := func() {
		if err := utils.KillProcessGroup(cmd); err != nil {
			log.Warn("Failed to kill Cline", "error", err)
		}
		<-exited
	}

	deadline := start.Add(timeout + deadlineBuffer)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastUsage, lastOK := baseline, baselineOK
	polls := 0

watch:
	for {
		select {
		case <-exited:
			break watch

		case <-ctx.Done():
			log.Warn("Killing Cline: context canceled")
			kill()
			return nil, fmt.Errorf("cline run canceled: %w", ctx.Err())

		case now := <-ticker.C:
			if !now.Before(deadline) {
				kill()
				log.Error(fmt.Sprintf("Cline timed out after %ds", secs))
				return nil, fail(KindTimeout, fmt.Sprintf("Cline timed out after %d seconds", secs))
			}

			if reason, stuck := flag.Get(); stuck {
				log.Warn("Killing Cline: " + reason)
				kill()
				return nil, fail(KindStuck, "Cline appears stuck: "+reason)
			}

			polls++
			if polls%heartbeatEvery == 0 {
				current, ok := c.usage.Usage(ctx)
				log.Info(heartbeat(now.Sub(start), stdout.Len(), current, ok, lastUsage, lastOK, baseline, baselineOK))
				if ok {
					lastUsage, lastOK = current, true
				}
			}
		}
	}

	// Process exited; give the readers a bounded window to drain
	select {
	case err := <-readersDone:
		if err != nil {
			log.Warn("Output reader failed", "error", err)
		}
	case <-time.After(drainTimeout):
		log.Warn("Output readers did not finish draining")
	}

	// A prompt seen just before the process exited on its own is still stuck
	if reason, stuck := flag.Get(); stuck {
		log.Warn("Cline exited after: " + reason)
		return nil, fail(KindStuck, "Cline appears stuck: "+reason)
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		RunID:    runID,
	}

	if final, ok := c.usage.Usage(ctx); ok && baselineOK {
		cost := final - baseline
		if cost < 0 {
			cost = 0
		}
		result.CostUSD = &cost
		log.Info(fmt.Sprintf("Cline run cost: $%.6f USD", cost))
	}

	log.Info(fmt.Sprintf("Cline finished (exit_code=%d)", exitCode))

	if !result.Success() {
		log.Error(fmt.Sprintf("Cline failed with exit code %d. stderr: %s", exitCode, utils.Truncate(result.Stderr, 500)))
		return nil, &Error{
			Kind:     KindExit,
			Message:  fmt.Sprintf("Cline exited with code %d", exitCode),
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: exitCode,
		}
	}

	return result, nil
}

// heartbeat formats the periodic liveness line
func heartbeat(elapsed time.Duration, lines int, current float64, ok bool, last float64, lastOK bool, baseline float64, baselineOK bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cline running: %ds elapsed | %d output lines", int(elapsed.Seconds()), lines)
	switch {
	case ok && lastOK:
		fmt.Fprintf(&b, " | +$%.4f this interval", current-last)
		if baselineOK {
			fmt.Fprintf(&b, " / $%.4f this run", current-baseline)
		}
	case ok:
		fmt.Fprintf(&b, " | usage=$%.4f", current)
	}
	return b.String()
}
