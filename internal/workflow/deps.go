// Package workflow sequences the two CI entry points: the fixer, which turns
// an issue into a pull request, and the reviewer, which reviews that pull
// request with a fresh agent and loops back to fix what it rejects.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/issue"
)

// Repo is the git surface the workflows drive
type Repo interface {
	CreateBranch(ctx context.Context, name string) (string, error)
	CommitAndPush(ctx context.Context, message, branch string) error
	Diff(ctx context.Context, base string) (string, error)
	ChangedFiles(ctx context.Context, base string) ([]string, error)
	WorkingDiff(ctx context.Context) string
	FrontendDiff(ctx context.Context, base string) string
}

// Hub is the GitHub surface the workflows drive
type Hub interface {
	CreatePR(ctx context.Context, title, body, base, head string) (string, error)
	CommentIssue(ctx context.Context, number int, body string) error
	CommentPR(ctx context.Context, pr, body string) error
	LabelPR(ctx context.Context, pr, label string) error
	RepoName(ctx context.Context) (string, error)
}

// TestSuite runs the project's tests
type TestSuite interface {
	Run(ctx context.Context) (bool, string)
}

// DevServer is the app the screenshot agent browses
type DevServer interface {
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context) error
}

// Shooter captures screenshots for frontend issues
type Shooter interface {
	Take(ctx context.Context, path, label string, iss *issue.Issue) string
	TakeAfterWithReview(ctx context.Context, dir string, iss *issue.Issue, frontendDiff string) ([]string, string)
}

// RunnerSpec names one agent identity: its own state directory and models
type RunnerSpec struct {
	StateDir  string
	Model     string
	PlanModel string
	ReadOnly  bool
	// Browser gives the agent the Playwright MCP server
	Browser bool
}

// Agents builds a runner per identity
type Agents interface {
	New(spec RunnerSpec) (agent.Runner, error)
}

// ClineAgents builds Cline runners rooted at the repository
type ClineAgents struct {
	RepoRoot        string
	MCPSettingsPath string
	Usage           agent.UsageProbe
	Logger          *slog.Logger
	Getenv          func(string) string
}

// New prepares the state directory for spec and returns its runner
func (a *ClineAgents) New(spec RunnerSpec) (agent.Runner, error) {
	opts := agent.Options{
		StateDir:  filepath.Join(a.RepoRoot, spec.StateDir),
		Model:     spec.Model,
		PlanModel: spec.PlanModel,
		Usage:     a.Usage,
		Logger:    a.Logger,
		Getenv:    a.Getenv,
	}
	if spec.Browser {
		opts.MCPSettingsPath = a.MCPSettingsPath
	}
	if spec.ReadOnly {
		p := agent.ReadOnlyPolicy()
		opts.Policy = &p
	}
	return agent.NewCline(opts)
}

// State directory names, relative to the repository root
const (
	coderStateDir  = ".cline-coder"
	VisionStateDir = ".cline-vision"
)

func reviewerStateDir(i int) string { return fmt.Sprintf(".cline-reviewer-%d", i) }
func fixerStateDir(i int) string    { return fmt.Sprintf(".cline-fixer-%d", i) }
