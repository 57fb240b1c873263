package gitops

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PRNumber extracts the number from a pull request URL
// Example: "https://github.com/user/repo/pull/42/" -> "42"
func PRNumber(url string) string {
	parts := strings.Split(strings.TrimRight(strings.TrimSpace(url), "/"), "/")
	return parts[len(parts)-1]
}

// ParseRepoName turns a remote URL into owner/name. Handles https and
// scp-style ssh remotes, with or without .git.
func ParseRepoName(remoteURL string) (string, error) {
	url := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(remoteURL), "/"), ".git")
	if i := strings.Index(url, "@"); i >= 0 && !strings.Contains(url, "://") {
		// git@github.com:owner/name
		url = strings.Replace(url[i+1:], ":", "/", 1)
	}
	parts := strings.Split(url, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("cannot parse repository name from remote URL %q", remoteURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

// WriteOutputs appends step outputs to the GITHUB_OUTPUT file at path.
// An empty path (not running in Actions) is a no-op. Multi-line values use
// the heredoc delimiter form.
func WriteOutputs(path string, outputs map[string]string) error {
	if path == "" {
		return nil
	}

	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := outputs[k]
		if strings.Contains(v, "\n") {
			delim := "ghadelimiter_" + uuid.NewString()
			fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", k, delim, v, delim)
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write GITHUB_OUTPUT: %w", err)
	}
	return nil
}
