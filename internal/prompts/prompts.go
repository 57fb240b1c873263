package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.md
var embeddedPrompts embed.FS

// Template names
const (
	TDD         = "tdd"
	Continue    = "continue"
	Heal        = "heal"
	Review      = "review"
	ReviewFix   = "review_fix"
	Screenshot  = "screenshot"
	AfterReview = "after_review"
)

// Vars maps placeholder names to values; {{KEY}} is replaced by Vars["KEY"]
type Vars map[string]string

// Loader reads templates from an override directory, falling back to the
// embedded set
type Loader struct {
	Dir string
}

// NewLoader honors RALPH_PROMPTS_DIR
func NewLoader(getenv func(string) string) *Loader {
	return &Loader{Dir: getenv("RALPH_PROMPTS_DIR")}
}

// Get returns the raw template, preferring the override directory
func (l *Loader) Get(name string) (string, error) {
	if !strings.HasSuffix(name, ".md") {
		name = name + ".md"
	}

	if l != nil && l.Dir != "" {
		if content, err := os.ReadFile(filepath.Join(l.Dir, name)); err == nil {
			return string(content), nil
		}
	}

	content, err := embeddedPrompts.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	return string(content), nil
}

// Render loads name and substitutes vars. Placeholders without a value are
// left as is.
func (l *Loader) Render(name string, vars Vars) (string, error) {
	content, err := l.Get(name)
	if err != nil {
		return "", err
	}
	return Substitute(content, vars), nil
}

// Substitute replaces {{KEY}} placeholders. Keys are applied in sorted order
// so the result does not depend on map iteration.
func Substitute(content string, vars Vars) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
