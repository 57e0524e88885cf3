package store

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithShutdownSignal returns a child of parent that is cancelled on SIGTERM or
// SIGINT. onSignal, if non-nil, runs before the cancellation. The returned
// stop function releases the signal subscription and must be called.
func WithShutdownSignal(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(sigChan)
		cancel()
		<-done
	}
	return ctx, stop
}
