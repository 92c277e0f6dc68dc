package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/retirectl/retirectl/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := cli.NewRetirectlCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
