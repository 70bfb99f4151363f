package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashtonliu88/diff-digest/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
