package display

import (
	"fmt"

	"github.com/fatih/color"
)

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolPending = "○"
)

// SectionRule is the banner line printed around workflow phases
const SectionRule = "============================================================"

// Theme holds all color functions for consistent styling
type Theme struct {
	// Logger name and banners (prominent)
	Name    func(a ...interface{}) string
	Section func(a ...interface{}) string

	// Agent output (subdued)
	Timestamp func(a ...interface{}) string
	Attr      func(a ...interface{}) string

	// Levels
	Debug   func(a ...interface{}) string
	Info    func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Success func(a ...interface{}) string

	Bold func(a ...interface{}) string
	Dim  func(a ...interface{}) string
}

// DefaultTheme creates the default color theme
func DefaultTheme() *Theme {
	return &Theme{
		// Orchestration - bright cyan for visibility
		Name:    color.New(color.FgCyan, color.Bold).SprintFunc(),
		Section: color.New(color.FgCyan).SprintFunc(),

		// Timestamps and key=value pairs stay gray
		Timestamp: color.New(color.FgHiBlack).SprintFunc(),
		Attr:      color.New(color.FgHiBlack).SprintFunc(),

		Debug:   color.New(color.FgHiBlack).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Error:   color.New(color.FgRed, color.Bold).SprintFunc(),
		Success: color.New(color.FgGreen).SprintFunc(),

		Bold: color.New(color.Bold).SprintFunc(),
		Dim:  color.New(color.FgHiBlack).SprintFunc(),
	}
}

// NoColorTheme creates a theme without colors (for --no-color flag or non-TTY)
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		if s, ok := a[0].(string); ok {
			return s
		}
		return fmt.Sprint(a...)
	}
	return &Theme{
		Name:      identity,
		Section:   identity,
		Timestamp: identity,
		Attr:      identity,
		Debug:     identity,
		Info:      identity,
		Warning:   identity,
		Error:     identity,
		Success:   identity,
		Bold:      identity,
		Dim:       identity,
	}
}
