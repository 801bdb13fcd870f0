// File: cmd/stitch/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stitchcd/stitch/cmd"
	"github.com/stitchcd/stitch/internal/observability"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// main is the entry point of the application.
func main() {
	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM)
	// so an aborted CI job still flushes logs and artifacts on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		// A canceled run exits non-zero too: an interrupted review must not
		// report success to the pipeline that invoked it.
		stop()
		osExit(1)
	}
}
