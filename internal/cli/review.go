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
	"github.com/daydemir/ralph-agent/internal/workflow"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review the fix PR with a fresh agent and apply requested changes",
	Long: `Review the pull request with a read-only Cline instance. When the
reviewer asks for changes, a separate fixer applies them, the tests are
healed, and the result is pushed for another review round.

The PR is labeled review-passed or review-needs-attention and gets a
summary comment.

Reads: ISSUE_NUMBER, ISSUE_TITLE, ISSUE_BODY, ISSUE_LABELS, PR_NUMBER,
BRANCH, OPENROUTER_API_KEY`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger("self-review")

	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	iss, err := issue.FromEnv(os.Getenv)
	if err != nil {
		return err
	}
	pr, err := issue.RequireEnv(os.Getenv, "PR_NUMBER")
	if err != nil {
		return err
	}
	branch, err := issue.RequireEnv(os.Getenv, "BRANCH")
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
	usage := agent.NewOpenRouterProbe(apiKey, logger)

	r := &workflow.Reviewer{
		Config:   cfg,
		Issue:    iss,
		PR:       pr,
		Branch:   branch,
		RepoRoot: root,
		Repo:     git,
		Hub:      newHub(root, git, logger),
		Agents: &workflow.ClineAgents{
			RepoRoot: root,
			Usage:    usage,
			Logger:   logger,
			Getenv:   os.Getenv,
		},
		Tests:   project.NewTestRunner(root, cfg.Project.TestCommand, cfg.Timeouts.Test(), logger),
		Usage:   usage,
		Prompts: prompts.NewLoader(os.Getenv),
		Logger:  logger,
	}

	_, err = r.Run(ctx)
	return err
}
