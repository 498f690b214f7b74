package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/de-tools/variance-atlas/pkg/runtime/terminal"
	"github.com/joho/godotenv"
)

func main() {
	// Missing .env is fine; ATLAS_ variables may come from the environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := terminal.NewCLI(terminal.Options{
		Output: os.Stdout,
	})

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
