package issue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		number  string
		title   string
		body    string
		wantErr string
	}{
		{name: "valid", number: "42", title: "Fix login bug", body: "Login fails"},
		{name: "whitespace around number", number: "  7 ", title: "t", body: "b"},
		{name: "empty number", number: " ", title: "t", body: "b", wantErr: "number is missing"},
		{name: "non-numeric number", number: "abc", title: "t", body: "b", wantErr: "positive integer, got: 'abc'"},
		{name: "zero", number: "0", title: "t", body: "b", wantErr: "positive integer, got: 0"},
		{name: "negative", number: "-3", title: "t", body: "b", wantErr: "positive integer, got: -3"},
		{name: "float", number: "4.2", title: "t", body: "b", wantErr: "positive integer"},
		{name: "empty title", number: "1", title: "   ", body: "b", wantErr: "title is missing"},
		{name: "empty body", number: "1", title: "t", body: "\n\t", wantErr: "body is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss, err := Parse(tt.number, tt.title, tt.body, "")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, iss)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.title), iss.Title)
		})
	}
}

func TestParseTrimsFields(t *testing.T) {
	iss, err := Parse("42", "  Fix UI bug  ", "\n Button is broken \n", "frontend,bug")
	require.NoError(t, err)

	assert.Equal(t, 42, iss.Number)
	assert.Equal(t, "Fix UI bug", iss.Title)
	assert.Equal(t, "Button is broken", iss.Body)
	assert.Equal(t, []string{"bug", "frontend"}, iss.Labels())
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   string
		expected []string
		frontend bool
		hard     bool
	}{
		{"none", "", []string{}, false, false},
		{"single", "frontend", []string{"frontend"}, true, false},
		{"multiple with spaces", "frontend,bug,help wanted", []string{"bug", "frontend", "help wanted"}, true, false},
		{"stripped and lowercased", "  Frontend  ,  BUG  ", []string{"bug", "frontend"}, true, false},
		{"whitespace only", "   ,  ,  ", []string{}, false, false},
		{"deduplicated", "Hard,hard,HARD", []string{"hard"}, false, true},
		{"other labels", "bug,backend,performance", []string{"backend", "bug", "performance"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss, err := Parse("1", "Title", "Body", tt.labels)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, iss.Labels())
			assert.Equal(t, tt.frontend, iss.IsFrontend())
			assert.Equal(t, tt.hard, iss.IsHard())
		})
	}
}

func TestHasLabelCaseInsensitive(t *testing.T) {
	iss, err := Parse("1", "Title", "Body", "Needs-Review")
	require.NoError(t, err)
	assert.True(t, iss.HasLabel("needs-review"))
	assert.True(t, iss.HasLabel("NEEDS-REVIEW"))
	assert.False(t, iss.HasLabel("review"))
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name     string
		number   string
		title    string
		expected string
	}{
		{"simple title", "42", "Fix login bug", "ralph/issue-42-fix-login-bug"},
		{"punctuation", "7", "Crash: can't save (again)!", "ralph/issue-7-crash-can-t-save-again"},
		{"no usable characters", "9", "!!!", "ralph/issue-9"},
		{
			"long title is capped",
			"100",
			"This is a very long issue title that keeps going well past fifty characters",
			"ralph/issue-100-this-is-a-very-long-issue-title-that-keeps-going-w",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss, err := Parse(tt.number, tt.title, "body", "")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, iss.BranchName())
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		"ISSUE_NUMBER": "42",
		"ISSUE_TITLE":  "Fix login bug",
		"ISSUE_BODY":   "Login fails",
		"ISSUE_LABELS": "Frontend",
	}
	getenv := func(k string) string { return env[k] }

	iss, err := FromEnv(getenv)
	require.NoError(t, err)
	assert.Equal(t, 42, iss.Number)
	assert.True(t, iss.IsFrontend())

	delete(env, "ISSUE_BODY")
	_, err = FromEnv(getenv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'ISSUE_BODY'")
}

func TestRequireEnv(t *testing.T) {
	getenv := func(k string) string {
		if k == "PR_NUMBER" {
			return " 12 "
		}
		return "  "
	}

	v, err := RequireEnv(getenv, "PR_NUMBER")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	_, err = RequireEnv(getenv, "BRANCH")
	assert.ErrorContains(t, err, "Required environment variable 'BRANCH' is missing or empty")
}
