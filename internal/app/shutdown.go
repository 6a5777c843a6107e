package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torrent-rating-notifier/internal/observability"
)

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM and, when
// runTimeout > 0, after runTimeout. Cancellation interrupts the lookup in
// flight; titles already recorded stay recorded.
func GracefulShutdown(parent context.Context, logger *observability.Logger, runTimeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, runTimeout)
		prev := cancel
		cancel = func() {
			cancelTimeout()
			prev()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
