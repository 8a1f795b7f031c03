// File: cmd/explorer/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/explorer-cli/cmd"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
)

var (
	realExit = os.Exit
	// osExit is swapped out in tests.
	osExit = realExit
)

func main() {
	defer handlePanic()

	// Ctrl+C cancels the context; agents stop at their next iteration and still
	// write their reports.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps the command result to a process status. An interrupted run
// is a clean exit.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(os.Stderr, "panic: %v\n\n%s\n", r, debug.Stack())
		osExit(2)
	}
}
