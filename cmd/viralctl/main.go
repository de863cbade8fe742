/*
Command viralctl operates a viralscope deployment.

Usage:

	viralctl [command]

Available Commands:

	seed-rules      Create or update rules from a YAML file
	validate-rules  Recalibrate rule weights from recent outcomes
	job-token       Print a signed token for the validate-rules job endpoint
	migrate         Manage the database schema
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"viralscope/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
