package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main sends the test event (or serves the stub) and exits.
// A finished probe exits 0 whatever the outcome; 1 means the command itself
// could not run (bad flags or configuration).
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
