// Command wheel records options wheel trades and reports on them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wheel-tracker/internal/cli"
	"wheel-tracker/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(logging.NewLogger())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
