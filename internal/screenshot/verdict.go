package screenshot

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/daydemir/ralph-agent/internal/utils"
)

// Status is the vision agent's judgement of the after screenshots
type Status string

const (
	FeatureFound    Status = "FEATURE_FOUND"
	FeatureNotFound Status = "FEATURE_NOT_FOUND"
	VisualIssue     Status = "ISSUE"
	Unknown         Status = "UNKNOWN"
)

// Verdict is a parsed visual_verdict.txt
type Verdict struct {
	Status   Status
	Selected []string
}

var selectedRe = regexp.MustCompile(`(?i)SELECTED:\s*(.+)`)

// ReadVerdict returns the trimmed verdict file in dir, or ""
func ReadVerdict(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, VerdictFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ParseVerdict extracts the status token and the SELECTED file names
func ParseVerdict(text string) Verdict {
	v := Verdict{Status: Unknown}
	upper := strings.ToUpper(text)
	// FEATURE_NOT_FOUND first: it is the more specific token
	for _, s := range []Status{FeatureNotFound, FeatureFound, VisualIssue} {
		if strings.Contains(upper, string(s)) {
			v.Status = s
			break
		}
	}

	if m := selectedRe.FindStringSubmatch(text); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				v.Selected = append(v.Selected, name)
			}
		}
	}
	return v
}

// SelectedPaths resolves the SELECTED names in the verdict file against dir,
// skipping files that are missing or empty
func SelectedPaths(verdictPath, dir string) []string {
	data, err := os.ReadFile(verdictPath)
	if err != nil {
		return nil
	}
	var paths []string
	for _, name := range ParseVerdict(string(data)).Selected {
		p := filepath.Join(dir, filepath.Base(name))
		if utils.NonEmptyFile(p) {
			paths = append(paths, p)
		}
	}
	return paths
}

// FallbackPaths picks after_*.png files sorted by name, or any other
// non-empty PNG except before.png when there are none
func FallbackPaths(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var after, other []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") || name == BeforeFile {
			continue
		}
		p := filepath.Join(dir, name)
		if !utils.NonEmptyFile(p) {
			continue
		}
		if strings.HasPrefix(name, "after_") {
			after = append(after, p)
		} else {
			other = append(other, p)
		}
	}

	if len(after) > 0 {
		sort.Strings(after)
		return after
	}
	sort.Strings(other)
	return other
}
