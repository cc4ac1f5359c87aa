package looper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resident/internal/resource"
)

func TestNewPollRejectsBadConfig(t *testing.T) {
	t.Parallel()
	poll := func(context.Context, time.Time, resource.Conn) (time.Duration, error) { return 0, nil }
	tests := []PollConfig{
		{WakeInterval: 0, ErrorBackoff: time.Minute, Provider: &fakeProvider{}, OnPoll: poll},
		{WakeInterval: time.Minute, ErrorBackoff: 0, Provider: &fakeProvider{}, OnPoll: poll},
		{WakeInterval: time.Minute, ErrorBackoff: time.Minute, OnPoll: poll},
		{WakeInterval: time.Minute, ErrorBackoff: time.Minute, Provider: &fakeProvider{}},
	}
	for i, cfg := range tests {
		_, err := NewPoll(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
}

// Scenario B: one failed acquisition, then hints 0, 0, 60s.
func TestPollBackoffThenDrain(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(t0)
	sig := NewSignal(context.Background())
	clock.onSleep = func(n int, _ time.Duration) {
		if n == 2 {
			sig.Set()
		}
	}
	logs, log := newLogBuffer()
	hints := []time.Duration{0, 0, 60 * time.Second}
	var polls []time.Time

	l, err := NewPoll(PollConfig{
		Name:         "worker1",
		WakeInterval: 60 * time.Second,
		ErrorBackoff: 60 * time.Second,
		Provider:     &fakeProvider{fail: 1},
		Clock:        clock,
		Logger:       log,
		OnPoll: func(_ context.Context, now time.Time, _ resource.Conn) (time.Duration, error) {
			h := hints[len(polls)]
			polls = append(polls, now)
			return h, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(sig))

	// skip+warn at t0, sleep 60; poll->0; poll->0; poll->60, sleep 60.
	assert.Equal(t, 1, logs.count("warn", "iteration skipped"))
	assert.Equal(t, []time.Time{t0.Add(time.Minute), t0.Add(time.Minute), t0.Add(time.Minute)}, polls)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, clock.Sleeps())
}

func TestPollZeroHintsRunBackToBack(t *testing.T) {
	t.Parallel()
	const n = 5
	clock := newFakeClock(t0)
	sig := NewSignal(context.Background())
	clock.onSleep = func(int, time.Duration) { sig.Set() }
	polls := 0

	l, err := NewPoll(PollConfig{
		WakeInterval: 10 * time.Second,
		ErrorBackoff: time.Minute,
		Provider:     &fakeProvider{},
		Clock:        clock,
		OnPoll: func(context.Context, time.Time, resource.Conn) (time.Duration, error) {
			polls++
			if polls <= n {
				return 0, nil
			}
			return 30 * time.Second, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(sig))

	assert.Equal(t, n+1, polls)
	// No sleep between the zero-hint polls; the first sleep is capped by the wake interval.
	assert.Equal(t, []time.Duration{10 * time.Second}, clock.Sleeps())
}

func TestPollFirstRunIsImmediate(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(t0)
	sig := NewSignal(context.Background())
	var first time.Time

	l, err := NewPoll(PollConfig{
		WakeInterval: time.Minute,
		ErrorBackoff: time.Minute,
		Provider:     &fakeProvider{},
		Clock:        clock,
		OnPoll: func(_ context.Context, now time.Time, _ resource.Conn) (time.Duration, error) {
			first = now
			sig.Set()
			return time.Hour, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(sig))
	assert.Equal(t, t0, first)
}

func TestPollResumesAfterRepeatedAcquisitionFailures(t *testing.T) {
	t.Parallel()
	const k = 4
	clock := newFakeClock(t0)
	sig := NewSignal(context.Background())
	obs := &countingObserver{}
	logs, log := newLogBuffer()
	var polls []time.Time

	l, err := NewPoll(PollConfig{
		WakeInterval: 30 * time.Second,
		ErrorBackoff: 60 * time.Second,
		Provider:     &fakeProvider{fail: k},
		Clock:        clock,
		Observer:     obs,
		Logger:       log,
		OnPoll: func(_ context.Context, now time.Time, _ resource.Conn) (time.Duration, error) {
			polls = append(polls, now)
			sig.Set()
			return time.Minute, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(sig))

	assert.Equal(t, k, obs.skipped)
	assert.Equal(t, k, logs.count("warn", "iteration skipped"))
	require.Len(t, polls, 1)
	// Each failure backs off 60s, slept in two wake-capped halves.
	assert.Equal(t, t0.Add(k*time.Minute), polls[0])
	for _, d := range clock.Sleeps() {
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}
