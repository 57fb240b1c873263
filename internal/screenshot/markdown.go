package screenshot

import (
	"fmt"
	"path/filepath"
	"strings"
)

const rawBaseURL = "https://raw.githubusercontent.com"

// RelativePath returns the part of path from its "screenshots" directory
// onward, or the file name when there is none
func RelativePath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, p := range parts {
		if p == "screenshots" {
			return strings.Join(parts[i:], "/")
		}
	}
	return parts[len(parts)-1]
}

// EmbedMarkdown renders the PR body section for the screenshots committed to
// branch in repo ("owner/name"). before may be "".
func EmbedMarkdown(before string, afters []string, branch, repo string) string {
	if before == "" && len(afters) == 0 {
		return "_No screenshots were captured._"
	}

	url := func(p string) string {
		return fmt.Sprintf("%s/%s/%s/%s", rawBaseURL, repo, branch, RelativePath(p))
	}

	var b strings.Builder
	b.WriteString("### Screenshots\n\n")
	if before != "" {
		fmt.Fprintf(&b, "**Before:**\n\n![Before](%s)\n\n", url(before))
	}
	switch len(afters) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "**After:**\n\n![After](%s)\n\n", url(afters[0]))
	default:
		b.WriteString("**After:**\n\n")
		for i, p := range afters {
			fmt.Fprintf(&b, "![After %d](%s)\n\n", i+1, url(p))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
