// Command vancodes manages NGP VAN codes (tags and source codes) from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vancodes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, c := newRootCmd()
	execErr := root.ExecuteContext(ctx)
	if err := c.close(); err != nil && execErr == nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return execErr
}
