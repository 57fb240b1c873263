package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version      = "0.1.0"
	cfgFile      string
	repoRootFlag string
	verbose      bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "ralph-agent",
	Short: "Issue-to-PR automation that supervises the Cline CLI",
	Long: `Ralph Agent turns a GitHub issue into a pull request by driving the
Cline CLI through a test-driven loop, then reviews the result with a
fresh agent.

Both commands read the issue from ISSUE_NUMBER, ISSUE_TITLE, ISSUE_BODY
and ISSUE_LABELS and are meant to run inside GitHub Actions:
  ralph-agent fix       Implement the fix and open a PR
  ralph-agent review    Review the PR named by PR_NUMBER and BRANCH
  ralph-agent config    Show the resolved configuration`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, canceled on shutdown signals
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <repo-root>/.github/agent_config.yml)")
	rootCmd.PersistentFlags().StringVar(&repoRootFlag, "repo-root", "", "repository root (default is $RALPH_REPO_ROOT or the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", os.Getenv("CI") != "", "debug logging (default on in CI)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("ralph-agent version %s\n", version))
}
