package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single invalid config field
type ValidationError struct {
	Field    string      // dotted key like "retries.max_coding_attempts"
	Expected string      // what was expected: "a positive integer"
	Actual   interface{} // what was found
	Message  string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError
}

// Add appends a new validation error to the collection
func (v *ValidationErrors) Add(field, expected string, actual interface{}, msg string) {
	v.Errors = append(v.Errors, ValidationError{
		Field:    field,
		Expected: expected,
		Actual:   actual,
		Message:  msg,
	})
}

// HasErrors returns true if there are any validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Fields returns the offending keys in order
func (v *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// Error lists every offending field so a single CI log line is actionable
func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return "no validation errors"
	}

	if len(v.Errors) == 1 {
		e := v.Errors[0]
		return fmt.Sprintf("invalid agent config: %s: %s", e.Field, e.Message)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("invalid agent config (%d errors):", len(v.Errors)))
	for _, e := range v.Errors {
		sb.WriteString(fmt.Sprintf("\n  - %s: %s (expected %s, found %s)", e.Field, e.Message, e.Expected, formatActual(e.Actual)))
	}
	return sb.String()
}

// formatActual formats the actual value for display
func formatActual(actual interface{}) string {
	if actual == nil {
		return "nothing"
	}
	switch v := actual.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", actual)
	}
}

func validate(cfg *Config, verr *ValidationErrors) {
	seen := make(map[string]bool, len(verr.Errors))
	for _, e := range verr.Errors {
		seen[e.Field] = true
	}

	requireString := func(field, value string) {
		if seen[field] || strings.TrimSpace(value) != "" {
			return
		}
		verr.Add(field, "a model id", value, "must not be empty")
	}
	requirePositive := func(field string, value int) {
		if seen[field] || value > 0 {
			return
		}
		verr.Add(field, "a positive integer", value, "must be greater than zero")
	}

	m := cfg.Models
	requireString("models.coder_default", m.CoderDefault)
	requireString("models.coder_hard", m.CoderHard)
	requireString("models.planner_default", m.PlannerDefault)
	requireString("models.planner_hard", m.PlannerHard)
	requireString("models.vision", m.Vision)
	requireString("models.reviewer", m.Reviewer)
	requireString("models.fixer", m.Fixer)

	r := cfg.Retries
	requirePositive("retries.max_coding_attempts", r.MaxCodingAttempts)
	requirePositive("retries.max_review_iterations", r.MaxReviewIterations)
	requirePositive("retries.max_heal_attempts", r.MaxHealAttempts)

	t := cfg.Timeouts
	requirePositive("timeouts.coding_seconds", t.CodingSeconds)
	requirePositive("timeouts.review_seconds", t.ReviewSeconds)
	requirePositive("timeouts.fix_seconds", t.FixSeconds)
	requirePositive("timeouts.screenshot_seconds", t.ScreenshotSeconds)
	requirePositive("timeouts.test_seconds", t.TestSeconds)

	s := cfg.Project.Server
	if s.Port <= 0 || s.Port > 65535 {
		verr.Add("project.server.port", "a TCP port", s.Port, "must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.Project.BaseBranch) == "" {
		verr.Add("project.base_branch", "a branch name", cfg.Project.BaseBranch, "must not be empty")
	}
}
