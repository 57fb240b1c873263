package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daydemir/ralph-agent/internal/cli"
	"github.com/daydemir/ralph-agent/internal/display"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := display.NewLogger(os.Stderr, "ralph-agent", display.Options{NoColor: !display.ColorEnabled(false)})
		logger.Error(err.Error())
		os.Exit(1)
	}
}
