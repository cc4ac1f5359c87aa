package looper

import "time"

// Clock is the time source of a loop. Sleep is never interrupted.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// clampSleep bounds a wait to [0, wake].
// A negative wait means the next instant already passed: fire again without sleeping.
func clampSleep(until, wake time.Duration) time.Duration {
	if until <= 0 {
		return 0
	}
	if until > wake {
		return wake
	}
	return until
}
