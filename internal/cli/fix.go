package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/gitops"
	"github.com/daydemir/ralph-agent/internal/issue"
	"github.com/daydemir/ralph-agent/internal/project"
	"github.com/daydemir/ralph-agent/internal/prompts"
	"github.com/daydemir/ralph-agent/internal/screenshot"
	"github.com/daydemir/ralph-agent/internal/workflow"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Fix the issue from the environment and open a pull request",
	Long: `Create a branch for the issue, run the Cline CLI in a test-driven loop
until the tests pass or attempts run out, capture before/after screenshots
for frontend issues, then commit, push and open a pull request.

Reads: ISSUE_NUMBER, ISSUE_TITLE, ISSUE_BODY, ISSUE_LABELS, OPENROUTER_API_KEY
Writes pr_number, pr_url and branch to $GITHUB_OUTPUT.`,
	Args: cobra.NoArgs,
	RunE: runFix,
}

func init() {
	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger("ralph-agent")

	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	iss, err := issue.FromEnv(os.Getenv)
	if err != nil {
		return err
	}
	apiKey, err := issue.RequireEnv(os.Getenv, "OPENROUTER_API_KEY")
	if err != nil {
		return err
	}

	git := gitops.NewGit(root, display.Named(logger, "git"))
	if err := git.Setup(ctx); err != nil {
		return err
	}

	loader := prompts.NewLoader(os.Getenv)
	agents := &workflow.ClineAgents{
		RepoRoot: root,
		Usage:    agent.NewOpenRouterProbe(apiKey, logger),
		Logger:   logger,
		Getenv:   os.Getenv,
	}

	f := &workflow.Fixer{
		Config:     cfg,
		Issue:      iss,
		RepoRoot:   root,
		Repo:       git,
		Hub:        newHub(root, git, logger),
		Agents:     agents,
		Tests:      project.NewTestRunner(root, cfg.Project.TestCommand, cfg.Timeouts.Test(), logger),
		Prompts:    loader,
		OutputPath: os.Getenv("GITHUB_OUTPUT"),
		Logger:     logger,
	}

	if iss.IsFrontend() {
		mcp, err := workflow.MCPSettingsPath(root, os.Getenv)
		if err != nil {
			return err
		}
		agents.MCPSettingsPath = mcp
		vision, err := agents.New(workflow.RunnerSpec{
			StateDir: workflow.VisionStateDir,
			Model:    cfg.Models.Vision,
			Browser:  true,
		})
		if err != nil {
			return err
		}
		f.Shooter = screenshot.NewShooter(vision, loader, cfg.Project.Server.AppURL(), cfg.Timeouts.Screenshot(), logger)
		if cfg.Project.Server.Enabled {
			f.Server = project.NewServer(root, cfg.Project.Server, logger)
		}
	}

	_, err = f.Run(ctx)
	return err
}
