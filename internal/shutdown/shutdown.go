// Package shutdown turns host termination signals into an orderly stop of
// the recorder.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Kakofonix/astrec/internal/logger"
)

// Stopper is the part of the recorder the coordinator needs. Done must be
// closed once the last recording has been finalized.
type Stopper interface {
	Stop()
	Done() <-chan struct{}
}

// DefaultSignals are the signals that trigger a graceful stop.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// Coordinator waits for a termination signal and stops the recorder.
type Coordinator struct {
	stopper    Stopper
	signals    []os.Signal
	sigCh      chan os.Signal
	subscribed bool
	Logger     *logger.Logger
}

// New creates a coordinator for stopper. Without signals, DefaultSignals
// are used.
func New(stopper Stopper, signals ...os.Signal) *Coordinator {
	if len(signals) == 0 {
		signals = DefaultSignals
	}
	return &Coordinator{
		stopper: stopper,
		signals: signals,
		Logger:  logger.Discard(),
	}
}

// Start subscribes to the signals. Call it before the recorder starts so a
// signal arriving while the group is joined is queued for Run instead of
// killing the process. Run calls it when it was not called before.
func (c *Coordinator) Start() {
	if c.sigCh != nil {
		return
	}
	c.sigCh = make(chan os.Signal, 1)
	c.subscribed = true
	signal.Notify(c.sigCh, c.signals...)
}

// Run blocks until a signal arrives, ctx is cancelled or the recorder stops
// on its own. In the first two cases it requests a stop and waits until the
// recorder reports Done, so the process never exits with a half-written file.
func (c *Coordinator) Run(ctx context.Context) error {
	c.Start()
	if c.subscribed {
		defer signal.Stop(c.sigCh)
	}

	select {
	case sig := <-c.sigCh:
		c.Logger.Info("[shutdown] Received signal %v, stopping ASTERIX recording...", sig)
	case <-ctx.Done():
		c.Logger.Info("[shutdown] Context cancelled, stopping ASTERIX recording...")
	case <-c.stopper.Done():
		c.Logger.Debug("[shutdown] Recorder stopped on its own")
		return nil
	}

	c.stopper.Stop()
	<-c.stopper.Done()
	c.Logger.Info("[shutdown] Shutdown complete.")
	return nil
}
