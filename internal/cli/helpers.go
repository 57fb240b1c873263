package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/daydemir/ralph-agent/internal/config"
	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/gitops"
)

// newLogger builds the stdout logger for a command
func newLogger(name string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return display.NewLogger(os.Stdout, name, display.Options{
		Level:   level,
		NoColor: !display.ColorEnabled(noColor),
	})
}

// loadConfig resolves the repository root and loads the agent config from it
func loadConfig() (string, *config.Config, error) {
	root, err := config.RepoRoot(repoRootFlag, os.Getenv)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(config.ResolvePath(cfgFile, root, os.Getenv))
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// hub adapts the gh client to the workflow surface, resolving the repository
// name through the local clone
type hub struct {
	*gitops.GitHub
	git *gitops.Git
}

func (h hub) RepoName(ctx context.Context) (string, error) {
	return h.GitHub.RepoName(ctx, h.git)
}

func newHub(root string, git *gitops.Git, logger *slog.Logger) hub {
	return hub{GitHub: gitops.NewGitHub(root, display.Named(logger, "gh")), git: git}
}
