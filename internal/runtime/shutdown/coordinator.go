// Package shutdown turns OS interrupts into a looper.Signal.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"resident/internal/looper"
	logx "resident/pkg/logx"
	"resident/pkg/systemd"
)

// Reason records what started a shutdown.
type Reason string

const (
	ReasonInterrupt Reason = "interrupt" // SIGINT / Ctrl-C
	ReasonTerminate Reason = "terminate" // SIGTERM
	ReasonContext   Reason = "context"   // parent context done
	ReasonSignal    Reason = "signal"    // the Signal was set elsewhere
	ReasonManual    Reason = "manual"
	// ReasonLoopsDone: every loop returned before any interrupt.
	ReasonLoopsDone Reason = "loops_done"
)

// Coordinator waits for an interrupt and sets the Signal exactly once.
// It never joins loops; the host does that after Wait returns.
type Coordinator struct {
	sig      *looper.Signal
	log      logx.Logger
	notifier systemd.Notifier
	signals  <-chan os.Signal
	osch     chan os.Signal

	once      sync.Once
	closeOnce sync.Once
	mu        sync.Mutex
	reason    Reason
}

type Option func(*Coordinator)

func WithLogger(log logx.Logger) Option { return func(c *Coordinator) { c.log = log } }

// WithNotifier sets the service-manager notifier (default: systemd.Daemon).
func WithNotifier(n systemd.Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

// WithSignals replaces os/signal delivery, mainly for tests.
func WithSignals(ch <-chan os.Signal) Option { return func(c *Coordinator) { c.signals = ch } }

// New registers for SIGINT/SIGTERM unless WithSignals is given. The handler stays
// installed until Close, so a second interrupt during the join does not kill the process.
func New(sig *looper.Signal, opts ...Option) *Coordinator {
	c := &Coordinator{sig: sig, notifier: systemd.Daemon{}}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.signals == nil {
		c.osch = make(chan os.Signal, 1)
		signal.Notify(c.osch, os.Interrupt, syscall.SIGTERM)
		c.signals = c.osch
	}
	return c
}

// Close restores default signal handling. Call it after every loop has joined.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		if c.osch != nil {
			signal.Stop(c.osch)
		}
	})
}

// Wait blocks until SIGINT/SIGTERM, ctx is done or the Signal is set elsewhere,
// then triggers shutdown and returns the reason.
func (c *Coordinator) Wait(ctx context.Context) Reason {
	var r Reason
	select {
	case s := <-c.signals:
		r = ReasonInterrupt
		if s == syscall.SIGTERM {
			r = ReasonTerminate
		}
	case <-ctx.Done():
		r = ReasonContext
	case <-c.sig.Done():
		r = ReasonSignal
	}
	c.Trigger(r)
	return c.Reason()
}

// Trigger starts shutdown. Only the first call has any effect.
func (c *Coordinator) Trigger(r Reason) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = r
		c.mu.Unlock()

		switch r {
		case ReasonInterrupt, ReasonTerminate:
			c.log.Info("received interrupt", logx.String("reason", string(r)))
		default:
			c.log.Info("shutdown requested", logx.String("reason", string(r)))
		}
		c.sig.Set()
		if _, err := systemd.Stopping(c.notifier); err != nil {
			c.log.Warn("sd_notify stopping failed", logx.Err(err))
		}
	})
}

// Reason returns the trigger reason, or "" before shutdown started.
func (c *Coordinator) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
