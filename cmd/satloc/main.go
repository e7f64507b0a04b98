// Command satloc fetches a satellite's element set by NORAD catalog number,
// propagates its ground track and renders it on a map.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalsfoundry/satloc/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		logging.NewFromEnv().Error(ctx, "satloc failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}
