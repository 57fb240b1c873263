// Package screenshot drives a browser-capable agent to capture before/after
// screenshots of a frontend fix and reads back its visual verdict.
package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/issue"
	"github.com/daydemir/ralph-agent/internal/prompts"
	"github.com/daydemir/ralph-agent/internal/utils"
)

// Well-known file names inside the screenshots directory
const (
	BeforeFile  = "before.png"
	VerdictFile = "visual_verdict.txt"
)

// MaxAfterScreenshots bounds how many after_NN.png files the vision agent is asked for
const MaxAfterScreenshots = 3

const issueBodyLimit = 2000

// Shooter captures screenshots through an agent with browser tools
type Shooter struct {
	Runner  agent.Runner
	Prompts *prompts.Loader
	AppURL  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewShooter returns a Shooter logging as "screenshot"
func NewShooter(runner agent.Runner, loader *prompts.Loader, appURL string, timeout time.Duration, logger *slog.Logger) *Shooter {
	if logger == nil {
		logger = display.Discard()
	}
	return &Shooter{
		Runner:  runner,
		Prompts: loader,
		AppURL:  appURL,
		Timeout: timeout,
		Logger:  display.Named(logger, "screenshot"),
	}
}

func (s *Shooter) vars(iss *issue.Issue) prompts.Vars {
	return prompts.Vars{
		"ISSUE_NUMBER": fmt.Sprintf("%d", iss.Number),
		"ISSUE_TITLE":  iss.Title,
		"ISSUE_BODY":   utils.Truncate(iss.Body, issueBodyLimit),
		"APP_URL":      s.AppURL,
	}
}

// Take asks the agent for a single screenshot saved at path. It returns the
// path of a valid screenshot, or "" when none was produced. Agent failures
// are logged and never returned.
func (s *Shooter) Take(ctx context.Context, path, label string, iss *issue.Issue) string {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.Logger.Warn("Failed to create screenshot directory", "error", err)
		return ""
	}

	vars := s.vars(iss)
	vars["LABEL"] = strings.ToUpper(label)
	vars["OUTPUT_PATH"] = path
	prompt, err := s.Prompts.Render(prompts.Screenshot, vars)
	if err != nil {
		s.Logger.Warn("Failed to render screenshot prompt", "error", err)
		return ""
	}

	s.Logger.Info(fmt.Sprintf("Taking %s screenshot: %s", label, path))
	started := time.Now()
	if _, err := s.Runner.Run(ctx, agent.Request{Prompt: prompt, Timeout: s.Timeout}); err != nil {
		s.Logger.Warn(fmt.Sprintf("Screenshot capture failed (%s)", label), "error", err)
		return ""
	}

	return Validate(path, started.Add(-time.Second), s.Logger)
}

// TakeAfterWithReview asks the vision agent to capture after_NN.png files in
// dir and write a visual verdict. It returns the screenshots to embed and the
// verdict text ("" when none was written).
func (s *Shooter) TakeAfterWithReview(ctx context.Context, dir string, iss *issue.Issue, frontendDiff string) ([]string, string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.Logger.Warn("Failed to create screenshot directory", "error", err)
		return nil, ""
	}
	verdictPath := filepath.Join(dir, VerdictFile)
	_ = os.Remove(verdictPath)

	vars := s.vars(iss)
	vars["FRONTEND_DIFF"] = frontendDiff
	vars["SCREENSHOTS_DIR"] = dir
	vars["VERDICT_PATH"] = verdictPath
	vars["MAX_SCREENSHOTS"] = fmt.Sprintf("%d", MaxAfterScreenshots)
	prompt, err := s.Prompts.Render(prompts.AfterReview, vars)
	if err != nil {
		s.Logger.Warn("Failed to render after-review prompt", "error", err)
		return nil, ""
	}

	s.Logger.Info("Taking after screenshots with visual review")
	if _, err := s.Runner.Run(ctx, agent.Request{Prompt: prompt, Timeout: s.Timeout}); err != nil {
		s.Logger.Warn("After screenshot review failed", "error", err)
	}

	verdict := ReadVerdict(dir)
	paths := SelectedPaths(verdictPath, dir)
	if len(paths) == 0 {
		paths = FallbackPaths(dir)
		if len(paths) > 0 {
			s.Logger.Info(fmt.Sprintf("No SELECTED line in verdict, using %d screenshot(s) from %s", len(paths), dir))
		}
	}

	if verdict != "" {
		s.Logger.Info("Visual verdict: " + firstLine(verdict))
	} else {
		s.Logger.Warn("Vision agent did not write a verdict")
	}
	return paths, verdict
}

// Validate returns path when it holds a non-empty file. A missing file is
// recovered from a PNG written at or after since in the same directory.
func Validate(path string, since time.Time, logger *slog.Logger) string {
	if logger == nil {
		logger = display.Discard()
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.Size() == 0 {
			logger.Warn("Screenshot file is empty: " + path)
			return ""
		}
		logger.Info("Screenshot saved: " + path)
		return path
	}
	return recoverMisnamed(path, since, logger)
}

// recoverMisnamed renames the most recently written PNG in path's directory
// onto path. before.png is never a candidate.
func recoverMisnamed(path string, since time.Time, logger *slog.Logger) string {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Screenshot not found: " + path)
		return ""
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") || name == BeforeFile {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 || info.ModTime().Before(since) {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = filepath.Join(dir, name), info.ModTime()
		}
	}
	if best == "" {
		logger.Warn("Screenshot not found: " + path)
		return ""
	}

	if err := os.Rename(best, path); err != nil {
		logger.Warn("Failed to rename screenshot", "from", best, "error", err)
		return ""
	}
	logger.Warn(fmt.Sprintf("Screenshot saved as %s instead of %s, renamed", filepath.Base(best), filepath.Base(path)))
	return path
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
