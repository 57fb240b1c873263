package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daydemir/ralph-agent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the resolved configuration",
	Long: `Show the agent configuration after defaults and RALPH_* environment
overrides are applied.

Examples:
  ralph-agent config                    Show all config
  ralph-agent config models.reviewer    Get a specific value`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.RepoRoot(repoRootFlag, os.Getenv)
		if err != nil {
			return err
		}
		path := config.ResolvePath(cfgFile, root, os.Getenv)

		if len(args) == 1 {
			return getConfigValue(cmd, path, args[0])
		}
		return showConfig(cmd, path)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func showConfig(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, out)
	return nil
}

func getConfigValue(cmd *cobra.Command, path, key string) error {
	v, err := config.Read(path)
	if err != nil {
		return err
	}

	value := v.Get(key)
	if value == nil {
		return fmt.Errorf("key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
