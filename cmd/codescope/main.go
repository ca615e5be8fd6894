package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/codescope/internal/cli"
)

func main() {
	// Stdout carries command output and the MCP protocol; logs go to stderr
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
