package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/wb-go/wbf/zlog"
)

func main() {
	// Context & signals: the process runs until interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		zlog.Logger.Fatal().Err(err).Msg("thumbnailer failed")
	}
}
