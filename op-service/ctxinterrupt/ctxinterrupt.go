// Package ctxinterrupt cancels contexts on process interrupt signals.
package ctxinterrupt

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// DefaultInterruptSignals is the set of signals that cancel the context.
var DefaultInterruptSignals = []os.Signal{
	os.Interrupt,
	os.Kill,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// WithCancelOnInterrupt returns a context that is cancelled when the process receives an interrupt signal.
// A second signal is left to the default handler, so it terminates the process.
func WithCancelOnInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	return withSignals(ctx, DefaultInterruptSignals...)
}

func withSignals(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		select {
		case <-ch:
			signal.Stop(ch)
			cancel()
		case <-ctx.Done():
			signal.Stop(ch)
		}
	}()
	return ctx, cancel
}
