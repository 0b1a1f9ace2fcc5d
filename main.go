package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/010DevX101/setup-seal/internal/actions"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reporter := actions.New()
	if err := execute(ctx, reporter, os.Args[1:]); err != nil {
		reporter.Fail(err)
		stop()
		os.Exit(1)
	}
}
