package looper

import (
	"fmt"
	"time"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// PollConfig configures a poll loop.
type PollConfig struct {
	Name         string
	WakeInterval time.Duration
	// ErrorBackoff replaces the handler's delay when acquisition fails.
	ErrorBackoff time.Duration

	Provider   resource.Provider
	OnPoll     PollFunc
	OnShutdown ShutdownFunc

	Logger   logx.Logger
	Observer Observer
	Clock    Clock
}

// NewPoll validates cfg and builds a poll loop. The first poll happens immediately.
func NewPoll(cfg PollConfig) (*Looper, error) {
	if cfg.OnPoll == nil {
		return nil, fmt.Errorf("%w: %s: poll handler required", ErrInvalidConfig, cfg.Name)
	}
	if cfg.ErrorBackoff <= 0 {
		return nil, fmt.Errorf("%w: %s: error back-off must be > 0", ErrInvalidConfig, cfg.Name)
	}

	l, err := newLooper(common{
		name:       cfg.Name,
		kind:       KindPoll,
		wake:       cfg.WakeInterval,
		provider:   cfg.Provider,
		onShutdown: cfg.OnShutdown,
		log:        cfg.Logger,
		obs:        cfg.Observer,
		clock:      cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	backoff := cfg.ErrorBackoff
	l.first = func(now time.Time) time.Time { return now }
	l.next = func(now time.Time, hint time.Duration, skipped bool) time.Time {
		if skipped {
			return now.Add(backoff)
		}
		if hint <= 0 {
			// Drain: fire again right away.
			return now
		}
		return now.Add(hint)
	}
	l.fire = cfg.OnPoll
	return l, nil
}
