package app

import (
	"fmt"
	"time"

	"resident/internal/config"
	"resident/internal/jobs"
	"resident/internal/looper"
	logx "resident/pkg/logx"
)

// buildLoops constructs every configured loop. Any error aborts startup.
func (a *App) buildLoops() ([]*looper.Looper, error) {
	specs, err := a.cfg.ResolveLoops()
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	out := make([]*looper.Looper, 0, len(specs))
	for _, s := range specs {
		l, err := a.buildLoop(s, loc)
		if err != nil {
			return nil, fmt.Errorf("loop %q: %w", s.Name, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (a *App) buildLoop(s config.Loop, loc *time.Location) (*looper.Looper, error) {
	log := a.root.With(logx.String("comp", "loop"))
	jobLog := log.With(logx.String("loop", s.Name), logx.String("job", s.Job))

	switch s.Kind {
	case config.KindCron:
		job := jobs.NewBatchJob(s.BatchCode, jobLog, jobs.WithInterval(s.BatchInterval))
		return looper.NewCron(looper.CronConfig{
			Name:         s.Name,
			Schedule:     s.Schedule,
			WakeInterval: s.WakeInterval,
			Location:     loc,
			Provider:     a.pool,
			OnTick:       job.Tick,
			OnShutdown:   job.Shutdown,
			Logger:       log,
			Observer:     a.metrics,
		})
	case config.KindPoll:
		job := jobs.NewQueueJob(s.IdleBackoff, jobLog, jobs.WithDrainRate(s.DrainRatePerSec))
		return looper.NewPoll(looper.PollConfig{
			Name:         s.Name,
			WakeInterval: s.WakeInterval,
			ErrorBackoff: s.ErrorBackoff,
			Provider:     a.pool,
			OnPoll:       job.Poll,
			OnShutdown:   job.Shutdown,
			Logger:       log,
			Observer:     a.metrics,
		})
	default:
		return nil, fmt.Errorf("unknown kind %q", s.Kind)
	}
}
