package looper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// Six fields, seconds first. Descriptors (@hourly, @every 30s) are accepted too.
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a six-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: expression required", ErrInvalidSchedule)
	}
	sched, err := scheduleParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// CronConfig configures a cron loop.
type CronConfig struct {
	Name         string
	Schedule     string
	WakeInterval time.Duration
	// Location the schedule is evaluated in; nil means UTC.
	Location *time.Location

	Provider   resource.Provider
	OnTick     TickFunc
	OnShutdown ShutdownFunc

	Logger   logx.Logger
	Observer Observer
	Clock    Clock
}

// NewCron validates cfg and builds a cron loop. Errors here are startup failures.
func NewCron(cfg CronConfig) (*Looper, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.OnTick == nil {
		return nil, fmt.Errorf("%w: %s: tick handler required", ErrInvalidConfig, cfg.Name)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	l, err := newLooper(common{
		name:       cfg.Name,
		kind:       KindCron,
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
	if sched.Next(l.clock.Now().In(loc)).IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrScheduleNeverFires, cfg.Schedule)
	}

	upcoming := func(now time.Time) time.Time {
		t := sched.Next(now.In(loc))
		if t.IsZero() {
			l.log.Warn("schedule has no upcoming instant; re-checking after wake interval", logx.String("schedule", cfg.Schedule))
			return now.Add(l.wake)
		}
		return t
	}
	onTick := cfg.OnTick

	l.first = upcoming
	// Missed ticks are never replayed: the next tick is always after now.
	l.next = func(now time.Time, _ time.Duration, _ bool) time.Time { return upcoming(now) }
	l.fire = func(ctx context.Context, now time.Time, conn resource.Conn) (time.Duration, error) {
		return 0, onTick(ctx, now, conn)
	}
	return l, nil
}
