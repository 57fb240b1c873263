package workflow

import (
	"regexp"
	"strings"
)

// Verdict is the reviewer's decision
type Verdict string

const (
	VerdictLGTM         Verdict = "LGTM"
	VerdictNeedsChanges Verdict = "NEEDS CHANGES"
)

var markdownNoise = regexp.MustCompile("[*_`>#\\-]")

// ParseVerdict reads the verdict from review output. Markdown emphasis,
// quotes and headings are ignored, so "**Verdict: LGTM**" and
// "> Verdict: NEEDS CHANGES" both parse. explicit is false when no verdict
// was found and the lenient LGTM default applied.
//
// This is a heuristic, not a grammar: a verdict quoted inside a code block
// is read like any other line.
func ParseVerdict(output string) (v Verdict, explicit bool) {
	clean := strings.ToLower(markdownNoise.ReplaceAllString(output, " "))

	for _, line := range strings.Split(clean, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "verdict") || !strings.Contains(line, ":") {
			continue
		}
		_, after, _ := strings.Cut(line, ":")
		after = strings.TrimSpace(after)
		if strings.Contains(after, "needs changes") || strings.Contains(after, "needs_changes") ||
			strings.Contains(line, "needs changes") {
			return VerdictNeedsChanges, true
		}
		if strings.Contains(after, "lgtm") {
			return VerdictLGTM, true
		}
	}

	// "needs changes" off the verdict line still counts when "verdict" is
	// within 100 characters before or 50 after it
	if idx := strings.Index(clean, "needs changes"); idx != -1 {
		lo, hi := max(0, idx-100), min(len(clean), idx+50)
		if strings.Contains(clean[lo:hi], "verdict") {
			return VerdictNeedsChanges, true
		}
	}

	return VerdictLGTM, false
}
