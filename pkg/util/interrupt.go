package util

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// InterruptContext returns a context cancelled on SIGINT or SIGTERM.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// WaitForInterruptWithCallback blocks until an interrupt arrives or ctx is done, then runs
// callback.
func WaitForInterruptWithCallback(ctx context.Context, callback func()) {
	waitForInterruptContext(ctx, callback)
}

func waitForInterruptContext(parent context.Context, callback func()) {
	ctx, stop := InterruptContext(parent)
	defer stop()

	<-ctx.Done()
	slog.Info("Received interrupt; running shutdown callback")

	if callback != nil {
		callback()
	}
}
