package looper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

var (
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrScheduleNeverFires = errors.New("schedule never fires")
	ErrInvalidConfig      = errors.New("invalid loop config")
	// ErrHandler marks a loop that terminated because its handler failed.
	ErrHandler = errors.New("loop handler failed")
)

// TickFunc handles one cron tick. The connection is released when it returns.
type TickFunc func(ctx context.Context, now time.Time, conn resource.Conn) error

// PollFunc handles one poll and returns the delay before the next one.
// A delay <= 0 re-runs the poll immediately.
type PollFunc func(ctx context.Context, now time.Time, conn resource.Conn) (time.Duration, error)

// ShutdownFunc runs once when a loop observes the Signal.
type ShutdownFunc func(ctx context.Context)

// Looper is one cron or poll loop. Build it with NewCron or NewPoll.
type Looper struct {
	name     string
	kind     Kind
	wake     time.Duration
	provider resource.Provider
	clock    Clock
	log      logx.Logger
	obs      Observer

	// first returns the initial wake instant.
	first func(now time.Time) time.Time
	// next returns the wake instant after a due iteration.
	next func(now time.Time, hint time.Duration, skipped bool) time.Time
	fire PollFunc

	onShutdown ShutdownFunc
}

type common struct {
	name       string
	kind       Kind
	wake       time.Duration
	provider   resource.Provider
	onShutdown ShutdownFunc
	log        logx.Logger
	obs        Observer
	clock      Clock
}

func newLooper(c common) (*Looper, error) {
	if c.name == "" {
		c.name = string(c.kind)
	}
	if c.wake <= 0 {
		return nil, fmt.Errorf("%w: %s: wake interval must be > 0", ErrInvalidConfig, c.name)
	}
	if c.provider == nil {
		return nil, fmt.Errorf("%w: %s: provider required", ErrInvalidConfig, c.name)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.obs == nil {
		c.obs = nopObserver{}
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	return &Looper{
		name:       c.name,
		kind:       c.kind,
		wake:       c.wake,
		provider:   c.provider,
		clock:      c.clock,
		log:        c.log.With(logx.String("loop", c.name), logx.String("kind", string(c.kind))),
		obs:        c.obs,
		onShutdown: c.onShutdown,
	}, nil
}

func (l *Looper) Name() string { return l.name }

func (l *Looper) Kind() Kind { return l.kind }

// Run loops until sig is set, then invokes the shutdown callback once and returns nil.
// It returns an ErrHandler error if the handler fails or panics; the loop is not restarted.
//
// The signal is only checked at the top of an iteration: a running handler or a sleep
// is never interrupted. Handlers get a context that carries sig's values but is not
// cancelled by it.
func (l *Looper) Run(sig *Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrHandler, l.name, r)
			l.log.Error("loop panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			l.obs.Failed(l.name, l.kind, err)
		}
	}()

	ctx := context.WithoutCancel(sig.Context())
	next := l.first(l.clock.Now())
	l.log.Debug("loop started", logx.Time("next", next), logx.Duration("wake", l.wake))

	for {
		if sig.IsSet() {
			l.log.Info("graceful stop")
			if l.onShutdown != nil {
				l.onShutdown(ctx)
			}
			l.obs.Stopped(l.name, l.kind)
			return nil
		}

		now := l.clock.Now()
		if !now.Before(next) {
			hint, skipped, err := l.once(ctx, now)
			if err != nil {
				l.log.Error("handler failed; loop terminated", logx.Err(err))
				l.obs.Failed(l.name, l.kind, err)
				return fmt.Errorf("%w: %s: %w", ErrHandler, l.name, err)
			}
			now = l.clock.Now()
			next = l.next(now, hint, skipped)
		}

		d := clampSleep(next.Sub(now), l.wake)
		if d == 0 {
			continue
		}
		l.obs.Slept(l.name, l.kind, d)
		l.clock.Sleep(d)
	}
}

// once acquires a connection and fires the handler with it.
// An acquisition failure is not an error: the iteration is reported as skipped.
func (l *Looper) once(ctx context.Context, now time.Time) (hint time.Duration, skipped bool, err error) {
	conn, err := l.provider.Acquire(ctx)
	if err != nil {
		l.log.Warn("resource unavailable; iteration skipped", logx.Err(err), logx.Time("due", now))
		l.obs.Skipped(l.name, l.kind, err)
		return 0, true, nil
	}
	defer conn.Release()

	hint, err = l.fire(ctx, now, conn)
	if err != nil {
		return 0, false, err
	}
	l.obs.Fired(l.name, l.kind)
	return hint, false, nil
}

// Start runs the loop in its own goroutine.
func (l *Looper) Start(sig *Signal) *Handle {
	h := &Handle{name: l.name, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = l.Run(sig)
	}()
	return h
}

// Handle is the completion handle of a started loop.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Join waits for the loop to terminate and returns its error.
func (h *Handle) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinAll waits for every handle and joins their errors.
func JoinAll(ctx context.Context, handles ...*Handle) error {
	var errs []error
	for _, h := range handles {
		if err := h.Join(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
