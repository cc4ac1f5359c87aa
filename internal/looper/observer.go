package looper

import "time"

type Kind string

const (
	KindCron Kind = "cron"
	KindPoll Kind = "poll"
)

// Observer receives loop events. Implementations must be safe for concurrent use
// since every loop calls the same Observer from its own goroutine.
type Observer interface {
	Fired(loop string, kind Kind)
	Skipped(loop string, kind Kind, err error)
	Slept(loop string, kind Kind, d time.Duration)
	Stopped(loop string, kind Kind)
	Failed(loop string, kind Kind, err error)
}

type nopObserver struct{}

func (nopObserver) Fired(string, Kind)                {}
func (nopObserver) Skipped(string, Kind, error)       {}
func (nopObserver) Slept(string, Kind, time.Duration) {}
func (nopObserver) Stopped(string, Kind)              {}
func (nopObserver) Failed(string, Kind, error)        {}
