package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/config"
	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/gitops"
	"github.com/daydemir/ralph-agent/internal/issue"
	"github.com/daydemir/ralph-agent/internal/prompts"
	"github.com/daydemir/ralph-agent/internal/screenshot"
	"github.com/daydemir/ralph-agent/internal/utils"
)

// ScreenshotsDir is committed with the fix so the PR can embed the images
const ScreenshotsDir = "screenshots"

const continueOutputLimit = 3000

// Fixer turns an issue into a pull request
type Fixer struct {
	Config   *config.Config
	Issue    *issue.Issue
	RepoRoot string
	Repo     Repo
	Hub      Hub
	Agents   Agents
	Tests    TestSuite
	// Server is nil when the project has no dev server to start
	Server DevServer
	// Shooter is nil when screenshots are disabled
	Shooter    Shooter
	Prompts    *prompts.Loader
	OutputPath string
	Logger     *slog.Logger
}

// FixResult summarizes a successful run
type FixResult struct {
	Branch        string
	PRURL         string
	PRNumber      string
	TestsPassed   bool
	Attempts      int
	Before        string
	After         []string
	VisualVerdict string
}

// Run executes the whole fix. Any error is reported on the issue before it
// is returned.
func (f *Fixer) Run(ctx context.Context) (*FixResult, error) {
	display.Section(f.Logger, "Ralph Agent starting")

	res, err := f.run(ctx)
	if err != nil {
		f.Logger.Error("Fix failed", "error", err)
		f.commentIssue(ctx, FormatSummary(StatusFailed, f.Issue.Number, SummaryDetails{Err: err}))
		return nil, err
	}

	display.Section(f.Logger, "Ralph Agent complete")
	return res, nil
}

func (f *Fixer) run(ctx context.Context) (*FixResult, error) {
	iss := f.Issue
	f.Logger.Info(fmt.Sprintf("Processing issue #%d: %s", iss.Number, iss.Title))
	if labels := iss.Labels(); len(labels) > 0 {
		f.Logger.Info("Labels: " + strings.Join(labels, ", "))
	}

	branch, err := f.Repo.CreateBranch(ctx, iss.BranchName())
	if err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}
	res := &FixResult{Branch: branch}

	f.commentIssue(ctx, FormatSummary(StatusStarted, iss.Number, SummaryDetails{}))

	shotsDir := filepath.Join(f.RepoRoot, ScreenshotsDir)
	screenshots := iss.IsFrontend() && f.Shooter != nil
	if screenshots {
		display.Section(f.Logger, "BEFORE SCREENSHOT")
		if f.Server != nil {
			if err := f.Server.Start(ctx); err != nil {
				f.Logger.Warn("Dev server failed to start, skipping screenshots", "error", err)
				screenshots = false
			} else {
				defer f.Server.Stop()
			}
		}
		if screenshots {
			res.Before = f.Shooter.Take(ctx, filepath.Join(shotsDir, screenshot.BeforeFile), "before", iss)
		}
	} else {
		f.Logger.Info("Not a frontend issue, skipping server and screenshots")
	}

	res.Attempts, res.TestsPassed, err = f.code(ctx)
	if err != nil {
		return nil, err
	}

	if !res.TestsPassed {
		res.TestsPassed, _ = f.Tests.Run(ctx)
	}
	if res.TestsPassed {
		f.Logger.Info("Final test run: passing")
	} else {
		f.Logger.Warn("Final test run: failing")
	}

	if screenshots {
		display.Section(f.Logger, "AFTER SCREENSHOTS")
		if f.Server != nil {
			if err := f.Server.Restart(ctx); err != nil {
				f.Logger.Warn("Dev server failed to restart, skipping after screenshots", "error", err)
				screenshots = false
			}
		}
		if screenshots {
			res.After, res.VisualVerdict = f.Shooter.TakeAfterWithReview(ctx, shotsDir, iss,
				f.Repo.FrontendDiff(ctx, f.Config.Project.BaseBranch))
		}
	}

	display.Section(f.Logger, "CREATING PR")
	message := fmt.Sprintf("fix(#%d): %s\n\nAutomated fix by Ralph Agent.\nResolves #%d", iss.Number, iss.Title, iss.Number)
	if err := f.Repo.CommitAndPush(ctx, message, branch); err != nil {
		return nil, fmt.Errorf("commit/push failed: %w", err)
	}

	title := fmt.Sprintf("fix(#%d): %s", iss.Number, iss.Title)
	res.PRURL, err = f.Hub.CreatePR(ctx, title, f.prBody(ctx, res), f.Config.Project.BaseBranch, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}
	res.PRNumber = gitops.PRNumber(res.PRURL)

	if err := gitops.WriteOutputs(f.OutputPath, map[string]string{
		"pr_number": res.PRNumber,
		"pr_url":    res.PRURL,
		"branch":    branch,
	}); err != nil {
		f.Logger.Warn("Failed to write step outputs", "error", err)
	}

	f.commentIssue(ctx, FormatSummary(StatusPRCreated, iss.Number, SummaryDetails{
		PRURL:       res.PRURL,
		TestsPassed: res.TestsPassed,
		Attempts:    res.Attempts,
	}))
	return res, nil
}

// code runs the TDD loop. It returns how many agent attempts were made and
// whether the loop already saw the tests pass.
func (f *Fixer) code(ctx context.Context) (int, bool, error) {
	iss := f.Issue
	maxAttempts := f.Config.Retries.MaxCodingAttempts
	vars := prompts.Vars{
		"ISSUE_NUMBER":    strconv.Itoa(iss.Number),
		"ISSUE_TITLE":     iss.Title,
		"ISSUE_BODY":      iss.Body,
		"SCREENSHOTS_DIR": filepath.Join(f.RepoRoot, ScreenshotsDir),
	}

	used := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		display.Section(f.Logger, fmt.Sprintf("CODING ATTEMPT %d/%d", attempt, maxAttempts))

		name := prompts.TDD
		if attempt > 1 {
			passed, output := f.Tests.Run(ctx)
			if passed {
				f.Logger.Info(fmt.Sprintf("Tests passing after attempt %d", attempt-1))
				return used, true, nil
			}
			name = prompts.Continue
			vars["GIT_DIFF"] = f.Repo.WorkingDiff(ctx)
			vars["TEST_OUTPUT"] = utils.Truncate(output, continueOutputLimit)
		}
		prompt, err := f.Prompts.Render(name, vars)
		if err != nil {
			return used, false, err
		}

		model, planModel := f.models(attempt)
		runner, err := f.Agents.New(RunnerSpec{StateDir: coderStateDir, Model: model, PlanModel: planModel})
		if err != nil {
			return used, false, err
		}

		used = attempt
		if _, err := runner.Run(ctx, agent.Request{Prompt: prompt, Timeout: f.Config.Timeouts.Coding(), WorkDir: f.RepoRoot}); err != nil {
			if ctx.Err() != nil {
				return used, false, ctx.Err()
			}
			f.Logger.Warn(fmt.Sprintf("Coding attempt %d failed: %v", attempt, err))
		}
	}
	return used, false, nil
}

// models picks the coder and planner for an attempt. Hard issues and the
// final attempt get the stronger coder.
func (f *Fixer) models(attempt int) (string, string) {
	m := f.Config.Models
	coder, planner := m.CoderDefault, m.PlannerDefault
	if f.Issue.IsHard() {
		planner = m.PlannerHard
	}
	if f.Issue.IsHard() || attempt == f.Config.Retries.MaxCodingAttempts {
		coder = m.CoderHard
	}
	return coder, planner
}

func (f *Fixer) prBody(ctx context.Context, res *FixResult) string {
	iss := f.Issue
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated Fix for #%d\n\n", iss.Number)
	fmt.Fprintf(&b, "**Issue:** %s\n\n", iss.Title)

	b.WriteString("### Changes\n\n")
	files, err := f.Repo.ChangedFiles(ctx, f.Config.Project.BaseBranch)
	if err != nil {
		f.Logger.Warn("Failed to list changed files", "error", err)
	}
	if len(files) == 0 {
		b.WriteString("_See the diff for details._\n\n")
	}
	for _, file := range files {
		fmt.Fprintf(&b, "- `%s`\n", file)
	}
	if len(files) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("### Test Status\n\n")
	if res.TestsPassed {
		b.WriteString("All tests passing")
	} else {
		b.WriteString("Some tests may be failing")
	}
	fmt.Fprintf(&b, " (coding attempts: %d)\n\n", res.Attempts)

	if res.Before != "" || len(res.After) > 0 {
		repo, err := f.Hub.RepoName(ctx)
		if err != nil {
			f.Logger.Warn("Could not determine repository name, screenshots not embedded", "error", err)
		} else {
			b.WriteString(screenshot.EmbedMarkdown(res.Before, res.After, res.Branch, repo))
			b.WriteString("\n\n")
		}
	}
	if res.VisualVerdict != "" {
		fmt.Fprintf(&b, "### Visual QA\n\n%s\n\n", res.VisualVerdict)
	}

	b.WriteString("---\n*Generated by Ralph Autofix Agent*")
	return b.String()
}

func (f *Fixer) commentIssue(ctx context.Context, body string) {
	if err := f.Hub.CommentIssue(ctx, f.Issue.Number, body); err != nil {
		f.Logger.Warn("Failed to post issue comment (non-blocking)", "error", err)
	}
}
