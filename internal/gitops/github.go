package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// GitHub drives the gh CLI
type GitHub struct {
	Dir    string
	Runner Runner
	Logger *slog.Logger
}

// NewGitHub creates a GitHub client for dir using os/exec
func NewGitHub(dir string, logger *slog.Logger) *GitHub {
	return &GitHub{Dir: dir, Runner: ExecRunner{}, Logger: logger}
}

func (h *GitHub) run(ctx context.Context, args ...string) (CmdResult, error) {
	return run(ctx, h.Runner, h.Logger, h.Dir, true, "gh", args...)
}

// CreatePR opens a pull request and returns its URL
func (h *GitHub) CreatePR(ctx context.Context, title, body, base, head string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errors.New("PR title cannot be empty.")
	}
	if strings.TrimSpace(head) == "" {
		return "", errors.New("PR head branch cannot be empty.")
	}

	res, err := h.run(ctx, "pr", "create",
		"--title", strings.TrimSpace(title),
		"--body", body,
		"--base", strings.TrimSpace(base),
		"--head", strings.TrimSpace(head),
	)
	if err != nil {
		return "", err
	}

	url := strings.TrimSpace(res.Stdout)
	if url == "" {
		return "", &Error{Message: "gh pr create succeeded but returned no URL.", ExitCode: -1}
	}
	h.Logger.Info("PR created: " + url)
	return url, nil
}

// CommentIssue posts a comment on an issue
func (h *GitHub) CommentIssue(ctx context.Context, number int, body string) error {
	if _, err := h.run(ctx, "issue", "comment", strconv.Itoa(number), "--body", body); err != nil {
		return err
	}
	h.Logger.Info(fmt.Sprintf("Posted comment on issue #%d", number))
	return nil
}

// CommentPR posts a comment on a pull request
func (h *GitHub) CommentPR(ctx context.Context, pr, body string) error {
	if _, err := h.run(ctx, "pr", "comment", pr, "--body", body); err != nil {
		return err
	}
	h.Logger.Info("Posted comment on PR #" + pr)
	return nil
}

// LabelPR adds label to a pull request. The label is created first if the
// repository lacks it; that step is best-effort.
func (h *GitHub) LabelPR(ctx context.Context, pr, label string) error {
	if res, err := run(ctx, h.Runner, h.Logger, h.Dir, false, "gh", "label", "create", label, "--force"); err != nil || res.ExitCode != 0 {
		h.Logger.Debug("Could not create label, assuming it exists", "label", label)
	}
	if _, err := h.run(ctx, "pr", "edit", pr, "--add-label", label); err != nil {
		return err
	}
	h.Logger.Info(fmt.Sprintf("Added label '%s' to PR #%s", label, pr))
	return nil
}

// RepoName returns owner/name, asking gh first and falling back to
// parsing origin's URL
func (h *GitHub) RepoName(ctx context.Context, git *Git) (string, error) {
	res, err := run(ctx, h.Runner, h.Logger, h.Dir, false, "gh", "repo", "view", "--json", "nameWithOwner", "-q", ".nameWithOwner")
	if err == nil && res.ExitCode == 0 {
		if name := strings.TrimSpace(res.Stdout); name != "" {
			return name, nil
		}
	}

	url, err := git.RemoteURL(ctx)
	if err != nil {
		return "", err
	}
	return ParseRepoName(url)
}
