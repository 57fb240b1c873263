package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/daydemir/ralph-agent/internal/utils"
)

// Bot identity used for commits
const (
	DefaultUserName  = "Ralph Bot"
	DefaultUserEmail = "ralph-bot@users.noreply.github.com"
)

// maxBranchAttempts bounds the -vN suffix search
const maxBranchAttempts = 20

// workingDiffLimit caps WorkingDiff output
const workingDiffLimit = 5000

// FrontendGlobs select files that affect what the app looks like
var FrontendGlobs = []string{"*.html", "*.css", "*.js", "*.jsx", "*.ts", "*.tsx", "*.vue", "*.svelte"}

// sensitiveNames are base-name patterns that must never be committed
var sensitiveNames = []string{".env", "*.pem", "*.key", "id_rsa*", "secrets.json", "credentials.json"}

// sensitiveDirs are directory patterns whose contents must never be committed
var sensitiveDirs = []string{".cline-*"}

// LocalExcludes keeps agent state directories out of `git add -A`
var LocalExcludes = []string{".cline-*/"}

// Git runs git in a repository
type Git struct {
	Dir    string
	Runner Runner
	Logger *slog.Logger
}

// NewGit creates a Git for dir using os/exec
func NewGit(dir string, logger *slog.Logger) *Git {
	return &Git{Dir: dir, Runner: ExecRunner{}, Logger: logger}
}

func (g *Git) run(ctx context.Context, args ...string) (CmdResult, error) {
	return run(ctx, g.Runner, g.Logger, g.Dir, true, "git", args...)
}

func (g *Git) try(ctx context.Context, args ...string) (CmdResult, error) {
	return run(ctx, g.Runner, g.Logger, g.Dir, false, "git", args...)
}

// ConfigureUser sets the commit identity for this repository
func (g *Git) ConfigureUser(ctx context.Context, name, email string) error {
	if _, err := g.run(ctx, "config", "user.name", name); err != nil {
		return err
	}
	if _, err := g.run(ctx, "config", "user.email", email); err != nil {
		return err
	}
	g.Logger.Info(fmt.Sprintf("Git user configured: %s <%s>", name, email))
	return nil
}

// Setup configures the bot identity and keeps agent state out of commits
func (g *Git) Setup(ctx context.Context) error {
	if err := g.ConfigureUser(ctx, DefaultUserName, DefaultUserEmail); err != nil {
		return err
	}
	return g.ExcludeLocal(LocalExcludes...)
}

// ExcludeLocal appends patterns to .git/info/exclude, skipping ones already present
func (g *Git) ExcludeLocal(patterns ...string) error {
	excludePath := filepath.Join(g.Dir, ".git", "info", "exclude")
	if err := os.MkdirAll(filepath.Dir(excludePath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(excludePath), err)
	}

	existing, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read exclude file: %w", err)
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var b strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteByte('\n')
	}
	added := 0
	for _, p := range patterns {
		if present[p] {
			continue
		}
		b.WriteString(p + "\n")
		present[p] = true
		added++
	}
	if added == 0 {
		return nil
	}

	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open exclude file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write exclude file: %w", err)
	}
	return nil
}

// remoteBranchExists reports whether origin has a head named name
func (g *Git) remoteBranchExists(ctx context.Context, name string) (bool, error) {
	res, err := g.run(ctx, "ls-remote", "--heads", "origin", name)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// CreateBranch creates and checks out name, or name-v2 .. name-v20 when
// earlier candidates already exist on origin. It returns the branch created.
func (g *Git) CreateBranch(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("Branch name cannot be empty.")
	}

	fetch, err := g.try(ctx, "fetch", "origin")
	if err != nil {
		return "", err
	}
	if fetch.ExitCode != 0 {
		g.Logger.Warn("git fetch origin failed, continuing", "stderr", strings.TrimSpace(fetch.Stderr))
	}

	candidate := ""
	for attempt := 1; attempt <= maxBranchAttempts; attempt++ {
		c := name
		if attempt > 1 {
			c = fmt.Sprintf("%s-v%d", name, attempt)
		}
		exists, err := g.remoteBranchExists(ctx, c)
		if err != nil {
			return "", err
		}
		if !exists {
			candidate = c
			break
		}
		g.Logger.Info("Branch already exists on origin, trying next", "branch", c)
	}
	if candidate == "" {
		return "", &Error{
			Message:  fmt.Sprintf("Could not find a free branch name for %s after %d attempts", name, maxBranchAttempts),
			ExitCode: -1,
		}
	}

	if _, err := g.run(ctx, "checkout", "-b", candidate); err != nil {
		return "", err
	}
	g.Logger.Info("Created and checked out branch: " + candidate)
	return candidate, nil
}

// CommitAndPush stages everything, commits and pushes branch to origin.
// A non-fast-forward rejection is retried once after pull --rebase.
func (g *Git) CommitAndPush(ctx context.Context, message, branch string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("Commit message cannot be empty.")
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return errors.New("Branch name cannot be empty.")
	}

	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return err
	}

	status, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return &Error{Message: "No changes to commit. The agent may not have produced any code changes.", ExitCode: -1}
	}

	staged, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return err
	}
	if bad := SensitiveFiles(splitLines(staged.Stdout)); len(bad) > 0 {
		if _, err := g.try(ctx, "reset", "-q"); err != nil {
			g.Logger.Warn("Failed to unstage files", "error", err)
		}
		return &Error{
			Message:  fmt.Sprintf("Refusing to commit sensitive files: %s", strings.Join(bad, ", ")),
			ExitCode: -1,
		}
	}

	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return err
	}
	g.Logger.Info("Committed: " + utils.Truncate(message, 80))

	push, err := g.try(ctx, "push", "origin", branch)
	if err != nil {
		return err
	}
	if push.ExitCode != 0 {
		if !isNonFastForward(push.Stderr) {
			return &Error{
				Message:  fmt.Sprintf("git push origin %s failed (exit %d): %s", branch, push.ExitCode, strings.TrimSpace(push.Stderr)),
				Stderr:   push.Stderr,
				ExitCode: push.ExitCode,
			}
		}
		g.Logger.Warn("Push rejected (non-fast-forward), rebasing onto origin/" + branch)
		if _, err := g.run(ctx, "pull", "--rebase", "origin", branch); err != nil {
			return err
		}
		if _, err := g.run(ctx, "push", "origin", branch); err != nil {
			return err
		}
	}

	g.Logger.Info("Pushed to origin/" + branch)
	return nil
}

func isNonFastForward(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "non-fast-forward") || strings.Contains(s, "fetch first")
}

// SensitiveFiles returns the paths that match a sensitive name or live
// under a sensitive directory
func SensitiveFiles(paths []string) []string {
	var bad []string
	for _, p := range paths {
		if isSensitive(p) {
			bad = append(bad, p)
		}
	}
	return bad
}

func isSensitive(p string) bool {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return false
	}
	segments := strings.Split(p, "/")
	base := segments[len(segments)-1]
	for _, pattern := range sensitiveNames {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	for _, dir := range segments[:len(segments)-1] {
		for _, pattern := range sensitiveDirs {
			if ok, _ := path.Match(pattern, dir); ok {
				return true
			}
		}
	}
	return false
}

// Diff returns the diff between base and HEAD
func (g *Git) Diff(ctx context.Context, base string) (string, error) {
	res, err := g.run(ctx, "diff", base+"...HEAD")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// ChangedFiles lists files changed between base and HEAD
func (g *Git) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	res, err := g.run(ctx, "diff", base+"...HEAD", "--name-only")
	if err != nil {
		return nil, err
	}
	files := splitLines(res.Stdout)
	g.Logger.Info(fmt.Sprintf("Changed files: %d", len(files)))
	return files, nil
}

// WorkingDiff returns uncommitted changes, falling back to the short status
// when nothing is tracked yet. Best-effort: failures yield "".
func (g *Git) WorkingDiff(ctx context.Context) string {
	diff := ""
	if res, err := g.try(ctx, "diff", "HEAD"); err == nil {
		diff = strings.TrimSpace(res.Stdout)
	}
	if diff == "" {
		if res, err := g.try(ctx, "status", "--short"); err == nil {
			diff = strings.TrimSpace(res.Stdout)
		}
	}
	return utils.Truncate(diff, workingDiffLimit)
}

// FrontendDiff returns changes to frontend files on this branch, falling
// back to uncommitted frontend changes. Best-effort: failures yield "".
func (g *Git) FrontendDiff(ctx context.Context, base string) string {
	args := append([]string{"diff", base + "..HEAD", "--"}, FrontendGlobs...)
	diff := ""
	if res, err := g.try(ctx, args...); err == nil {
		diff = strings.TrimSpace(res.Stdout)
	}
	if diff == "" {
		args = append([]string{"diff", "HEAD", "--"}, FrontendGlobs...)
		if res, err := g.try(ctx, args...); err == nil {
			diff = strings.TrimSpace(res.Stdout)
		}
	}
	return diff
}

// RemoteURL returns origin's URL
func (g *Git) RemoteURL(ctx context.Context) (string, error) {
	res, err := g.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
