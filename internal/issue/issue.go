// Package issue parses and validates the GitHub issue a run works on.
package issue

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/daydemir/ralph-agent/internal/utils"
)

// Well-known labels
const (
	LabelFrontend = "frontend"
	LabelHard     = "hard"
)

// BranchPrefix namespaces every branch this tool creates
const BranchPrefix = "ralph/issue-"

var (
	ErrMissingNumber = errors.New("Issue number is missing or empty.")
	ErrMissingTitle  = errors.New("Issue title is missing or empty. Cannot proceed without knowing what to fix.")
	ErrMissingBody   = errors.New("Issue body is missing or empty. Cannot proceed without a description of the problem.")
)

// Issue is a validated, immutable issue record
type Issue struct {
	Number int
	Title  string
	Body   string
	labels map[string]struct{}
}

// Parse validates raw issue fields. labels is a comma-separated list;
// entries are trimmed, lower-cased and deduplicated.
func Parse(number, title, body, labels string) (*Issue, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrMissingNumber
	}
	n, err := strconv.Atoi(number)
	if err != nil {
		return nil, fmt.Errorf("Issue number must be a positive integer, got: '%s'", number)
	}
	if n <= 0 {
		return nil, fmt.Errorf("Issue number must be a positive integer, got: %d", n)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrMissingBody
	}

	return &Issue{
		Number: n,
		Title:  title,
		Body:   body,
		labels: parseLabels(labels),
	}, nil
}

func parseLabels(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range strings.Split(raw, ",") {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}

// HasLabel reports whether the issue carries label (case-insensitive)
func (i *Issue) HasLabel(label string) bool {
	_, ok := i.labels[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// Labels returns the label set sorted
func (i *Issue) Labels() []string {
	out := make([]string, 0, len(i.labels))
	for l := range i.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// IsFrontend reports whether the issue needs visual QA
func (i *Issue) IsFrontend() bool { return i.HasLabel(LabelFrontend) }

// IsHard reports whether the issue should use the stronger models
func (i *Issue) IsHard() bool { return i.HasLabel(LabelHard) }

// BranchName returns the base branch name for this issue
// Example: issue 42 "Fix login bug" -> "ralph/issue-42-fix-login-bug"
func (i *Issue) BranchName() string {
	slug := utils.Slugify(i.Title)
	if slug == "" {
		return fmt.Sprintf("%s%d", BranchPrefix, i.Number)
	}
	return fmt.Sprintf("%s%d-%s", BranchPrefix, i.Number, slug)
}

// FromEnv parses the ISSUE_* variables
func FromEnv(getenv func(string) string) (*Issue, error) {
	number, err := RequireEnv(getenv, "ISSUE_NUMBER")
	if err != nil {
		return nil, err
	}
	title, err := RequireEnv(getenv, "ISSUE_TITLE")
	if err != nil {
		return nil, err
	}
	body, err := RequireEnv(getenv, "ISSUE_BODY")
	if err != nil {
		return nil, err
	}
	return Parse(number, title, body, getenv("ISSUE_LABELS"))
}

// RequireEnv returns the trimmed value of name or an error naming it
func RequireEnv(getenv func(string) string, name string) (string, error) {
	value := strings.TrimSpace(getenv(name))
	if value == "" {
		return "", fmt.Errorf("Required environment variable '%s' is missing or empty. Check your GitHub Actions workflow configuration.", name)
	}
	return value, nil
}
