package workflow

import (
	"fmt"
	"strings"

	"github.com/daydemir/ralph-agent/internal/utils"
)

// Issue comment statuses
const (
	StatusStarted   = "started"
	StatusPRCreated = "pr_created"
	StatusFailed    = "failed"
)

// Review outcomes shown in the PR comment heading
const (
	ReviewPassed         = "PASSED"
	ReviewNeedsAttention = "NEEDS ATTENTION"
)

const reviewSummaryLimit = 3000

// SummaryDetails fills in a status comment
type SummaryDetails struct {
	PRURL       string
	TestsPassed bool
	Attempts    int
	Err         error
}

// FormatSummary renders the issue comment for status
func FormatSummary(status string, issueNumber int, d SummaryDetails) string {
	var lines []string
	switch status {
	case StatusStarted:
		lines = []string{
			fmt.Sprintf("**Ralph Agent** is working on issue #%d...", issueNumber),
			"",
			"I'll create a PR when the fix is ready.",
		}
	case StatusPRCreated:
		tests := "passing"
		if !d.TestsPassed {
			tests = "partially passing"
		}
		lines = []string{
			"**Ralph Agent** has created a fix: " + d.PRURL,
			"",
			"- Tests: " + tests,
		}
		if d.Attempts > 0 {
			lines = append(lines, fmt.Sprintf("- Coding attempts: %d", d.Attempts))
		}
	case StatusFailed:
		errText := "unknown error"
		if d.Err != nil {
			errText = d.Err.Error()
		}
		lines = []string{
			fmt.Sprintf("**Ralph Agent** failed to fix issue #%d.", issueNumber),
			"",
			"Error: " + errText,
		}
	default:
		lines = []string{"**Ralph Agent** status: " + status}
	}
	return strings.Join(lines, "\n")
}

// FormatReviewSummary renders the self-review PR comment. Long output is cut
// with a pointer to the workflow logs.
func FormatReviewSummary(output, verdict string) string {
	if len(output) > reviewSummaryLimit {
		output = utils.Truncate(output, reviewSummaryLimit) + "\n\n... (truncated, see workflow logs for full output)"
	}
	return strings.Join([]string{
		"## Ralph Self-Review: " + verdict,
		"",
		"This review was performed by a **separate AI instance** with fresh context.",
		"",
		"---",
		"",
		output,
		"",
		"---",
		"*Automated review by Ralph Agent*",
	}, "\n")
}
