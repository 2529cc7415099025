package main

import (
	"context"
	"os"
	"os/signal"

	"unity/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.NewRootCommand(commands.DefaultRuntime).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
