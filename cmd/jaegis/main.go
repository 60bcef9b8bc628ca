// cmd/jaegis/main.go
//
// Entry point for the jaegis CLI. Everything interesting lives in
// internal/cli; main only owns the process: signals, stdio and the exit code.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/jaegis/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	stop()
	os.Exit(code)
}
