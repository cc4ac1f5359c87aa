package looper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resident/internal/resource"
)

func TestClampSleep(t *testing.T) {
	t.Parallel()
	wake := 60 * time.Second
	tests := []struct {
		until time.Duration
		want  time.Duration
	}{
		{until: 7 * time.Second, want: 7 * time.Second},
		{until: 60 * time.Second, want: 60 * time.Second},
		{until: 10 * time.Minute, want: 60 * time.Second},
		{until: 0, want: 0},
		{until: -3 * time.Second, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampSleep(tt.until, wake), "clampSleep(%v)", tt.until)
	}
}

func TestShutdownLatencyBoundedByWakeInterval(t *testing.T) {
	t.Parallel()
	const wake = 50 * time.Millisecond
	var shutdownAt atomic.Int64

	l, err := NewCron(CronConfig{
		Name:         "yearly",
		Schedule:     "0 0 0 1 1 *",
		WakeInterval: wake,
		Provider:     &fakeProvider{},
		OnTick:       func(context.Context, time.Time, resource.Conn) error { return nil },
		OnShutdown:   func(context.Context) { shutdownAt.Store(time.Now().UnixNano()) },
	})
	require.NoError(t, err)

	sig := NewSignal(context.Background())
	h := l.Start(sig)
	time.Sleep(120 * time.Millisecond)

	setAt := time.Now()
	sig.Set()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Join(ctx))

	latency := time.Duration(shutdownAt.Load() - setAt.UnixNano())
	assert.LessOrEqual(t, latency, wake+50*time.Millisecond)
}

func TestShutdownInvokedOnceRegardlessOfSetCount(t *testing.T) {
	t.Parallel()
	var shutdowns atomic.Int32

	l, err := NewPoll(PollConfig{
		Name:         "worker",
		WakeInterval: 5 * time.Millisecond,
		ErrorBackoff: time.Second,
		Provider:     &fakeProvider{},
		OnPoll: func(context.Context, time.Time, resource.Conn) (time.Duration, error) {
			return time.Second, nil
		},
		OnShutdown: func(context.Context) { shutdowns.Add(1) },
	})
	require.NoError(t, err)

	sig := NewSignal(context.Background())
	h := l.Start(sig)
	for i := 0; i < 5; i++ {
		go sig.Set()
	}
	sig.Set()

	require.NoError(t, h.Join(context.Background()))
	sig.Set()
	assert.EqualValues(t, 1, shutdowns.Load())
}

func TestHandlerErrorTerminatesOnlyThatLoop(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var failingShutdowns, healthyShutdowns, healthyPolls atomic.Int32

	failing, err := NewPoll(PollConfig{
		Name:         "failing",
		WakeInterval: 5 * time.Millisecond,
		ErrorBackoff: time.Second,
		Provider:     &fakeProvider{},
		OnPoll: func(context.Context, time.Time, resource.Conn) (time.Duration, error) {
			return 0, boom
		},
		OnShutdown: func(context.Context) { failingShutdowns.Add(1) },
	})
	require.NoError(t, err)

	healthy, err := NewPoll(PollConfig{
		Name:         "healthy",
		WakeInterval: 5 * time.Millisecond,
		ErrorBackoff: time.Second,
		Provider:     &fakeProvider{},
		OnPoll: func(context.Context, time.Time, resource.Conn) (time.Duration, error) {
			healthyPolls.Add(1)
			return 5 * time.Millisecond, nil
		},
		OnShutdown: func(context.Context) { healthyShutdowns.Add(1) },
	})
	require.NoError(t, err)

	sig := NewSignal(context.Background())
	hf := failing.Start(sig)
	hh := healthy.Start(sig)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = hf.Join(ctx)
	require.ErrorIs(t, err, ErrHandler)
	require.ErrorIs(t, err, boom)

	assert.Eventually(t, func() bool { return healthyPolls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	select {
	case <-hh.Done():
		t.Fatal("healthy loop stopped because another loop failed")
	default:
	}

	sig.Set()
	assert.NoError(t, hh.Join(ctx))
	assert.EqualValues(t, 0, failingShutdowns.Load())
	assert.EqualValues(t, 1, healthyShutdowns.Load())

	err = JoinAll(ctx, hf, hh)
	assert.ErrorIs(t, err, boom)
}

func TestPanicIsRecoveredAndConnectionReleased(t *testing.T) {
	t.Parallel()
	prov := &fakeProvider{}
	obs := &countingObserver{}

	l, err := NewPoll(PollConfig{
		Name:         "panicky",
		WakeInterval: time.Second,
		ErrorBackoff: time.Second,
		Provider:     prov,
		Observer:     obs,
		OnPoll: func(context.Context, time.Time, resource.Conn) (time.Duration, error) {
			panic("bad payload")
		},
	})
	require.NoError(t, err)

	h := l.Start(NewSignal(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = h.Join(ctx)
	require.ErrorIs(t, err, ErrHandler)
	assert.Contains(t, err.Error(), "bad payload")

	acquired, released := prov.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, obs.failed)
}

func TestHandlerContextNotCancelledBySignal(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(t0)
	sig := NewSignal(context.Background())
	var ctxErr error

	l, err := NewPoll(PollConfig{
		WakeInterval: time.Minute,
		ErrorBackoff: time.Minute,
		Provider:     &fakeProvider{},
		Clock:        clock,
		OnPoll: func(ctx context.Context, _ time.Time, _ resource.Conn) (time.Duration, error) {
			sig.Set()
			ctxErr = ctx.Err()
			return time.Minute, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(sig))
	assert.NoError(t, ctxErr)
	assert.Equal(t, "poll", l.Name())
}
