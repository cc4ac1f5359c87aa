package looper

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

var t0 = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

// fakeClock advances only when the loop sleeps (or a test calls advance).
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int, d time.Duration)
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	fn := c.onSleep
	c.mu.Unlock()
	if fn != nil {
		fn(n, d)
	}
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeProvider fails the next `fail` acquisitions, then succeeds.
type fakeProvider struct {
	mu       sync.Mutex
	fail     int
	acquired int
	released int
}

func (p *fakeProvider) Acquire(context.Context) (resource.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return nil, fmt.Errorf("%w: pool timed out", resource.ErrAcquire)
	}
	p.acquired++
	return &fakeConn{p: p}, nil
}

func (p *fakeProvider) Stats() resource.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return resource.Stats{MaxConns: 2, InUse: p.acquired - p.released}
}

func (p *fakeProvider) Close() {}

func (p *fakeProvider) counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

type fakeConn struct {
	p    *fakeProvider
	once sync.Once
}

func (c *fakeConn) Dialect() resource.Dialect { return resource.DialectSQLite }

func (c *fakeConn) Exec(context.Context, string, ...any) (int64, error) { return 0, nil }

func (c *fakeConn) QueryRow(context.Context, string, ...any) resource.Row { return nil }

func (c *fakeConn) Release() {
	c.once.Do(func() {
		c.p.mu.Lock()
		c.p.released++
		c.p.mu.Unlock()
	})
}

type countingObserver struct {
	mu sync.Mutex

	fired, skipped, slept, stopped, failed int
}

func (o *countingObserver) Fired(string, Kind) { o.inc(&o.fired) }

func (o *countingObserver) Skipped(string, Kind, error) { o.inc(&o.skipped) }

func (o *countingObserver) Slept(string, Kind, time.Duration) { o.inc(&o.slept) }

func (o *countingObserver) Stopped(string, Kind) { o.inc(&o.stopped) }

func (o *countingObserver) Failed(string, Kind, error) { o.inc(&o.failed) }

func (o *countingObserver) inc(n *int) {
	o.mu.Lock()
	*n++
	o.mu.Unlock()
}

// logBuffer captures JSON log lines from a synchronously running loop.
type logBuffer struct{ bytes.Buffer }

func newLogBuffer() (*logBuffer, logx.Logger) {
	b := &logBuffer{}
	return b, logx.NewWriter(b, "debug")
}

func (b *logBuffer) count(level, msg string) int {
	n := 0
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, `"level":"`+level+`"`) && strings.Contains(line, msg) {
			n++
		}
	}
	return n
}
