package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"soulbench/internal/orchestrator"
)

// interrupter escalates repeated interrupts. With a stop flag, the first
// requests a stop at the next round boundary and the second cancels.
// Without one, the first cancels.
type interrupter struct {
	stop   *orchestrator.Stop
	cancel context.CancelFunc

	mu       sync.Mutex
	received int
}

func (i *interrupter) interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.received++
	if i.stop != nil && i.received == 1 {
		i.stop.Request()
		return
	}
	i.cancel()
}

// signalContext derives a context for a command that is interrupted by
// process signals. The returned interrupt func feeds the same escalation,
// for interrupts that arrive as key presses instead of signals.
func signalContext(parent context.Context, stop *orchestrator.Stop) (context.Context, func(), context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	in := &interrupter{stop: stop, cancel: cancel}
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, stopSignals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-signals:
				in.interrupt()
			}
		}
	}()
	var once sync.Once
	return ctx, in.interrupt, func() {
		once.Do(func() {
			signal.Stop(signals)
			close(done)
			cancel()
		})
	}
}
