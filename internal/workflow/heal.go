package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/daydemir/ralph-agent/internal/agent"
	"github.com/daydemir/ralph-agent/internal/issue"
	"github.com/daydemir/ralph-agent/internal/prompts"
	"github.com/daydemir/ralph-agent/internal/utils"
)

const healOutputLimit = 5000

// HealOptions configures a heal loop
type HealOptions struct {
	// MaxAttempts counts test runs; the agent gets MaxAttempts-1 chances
	MaxAttempts int
	Timeout     time.Duration
	WorkDir     string
}

// Heal runs the tests and, while they fail and attempts remain, asks runner
// to fix them. It reports whether the tests ended green. Agent failures are
// logged and the loop carries on.
func Heal(ctx context.Context, runner agent.Runner, tests TestSuite, loader *prompts.Loader, iss *issue.Issue, opts HealOptions, logger *slog.Logger) bool {
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		passed, output := tests.Run(ctx)
		if passed {
			logger.Info(fmt.Sprintf("Tests passed on heal attempt %d", attempt))
			return true
		}
		logger.Warn(fmt.Sprintf("Tests failed (heal attempt %d/%d)", attempt, opts.MaxAttempts))

		if attempt == opts.MaxAttempts || ctx.Err() != nil {
			break
		}

		prompt, err := loader.Render(prompts.Heal, prompts.Vars{
			"ISSUE_NUMBER": strconv.Itoa(iss.Number),
			"ISSUE_TITLE":  iss.Title,
			"TEST_OUTPUT":  utils.Truncate(output, healOutputLimit),
		})
		if err != nil {
			logger.Error("Failed to render heal prompt", "error", err)
			return false
		}
		if _, err := runner.Run(ctx, agent.Request{Prompt: prompt, Timeout: opts.Timeout, WorkDir: opts.WorkDir}); err != nil {
			logger.Error(fmt.Sprintf("Heal attempt %d failed: %v", attempt, err))
		}
	}
	return false
}
