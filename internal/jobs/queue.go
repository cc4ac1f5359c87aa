package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// QueueJob pops one task per poll. A found task asks for an immediate re-poll;
// an empty queue or an error asks for the idle back-off.
type QueueJob struct {
	idle    time.Duration
	limiter *rate.Limiter
	log     logx.Logger
	handle  func(ctx context.Context, task json.RawMessage) error

	processed atomic.Uint64
}

type QueueOption func(*QueueJob)

// WithDrainRate caps back-to-back pops while the queue is non-empty.
func WithDrainRate(perSec float64) QueueOption {
	return func(j *QueueJob) {
		if perSec > 0 {
			j.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithHandler processes each popped payload. Without one, payloads are only logged.
func WithHandler(fn func(ctx context.Context, task json.RawMessage) error) QueueOption {
	return func(j *QueueJob) { j.handle = fn }
}

func NewQueueJob(idle time.Duration, log logx.Logger, opts ...QueueOption) *QueueJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	j := &QueueJob{idle: idle, log: log}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Poll is a looper.PollFunc.
func (j *QueueJob) Poll(ctx context.Context, now time.Time, conn resource.Conn) (time.Duration, error) {
	j.log.Debug("queue poll", logx.Time("now", now))

	raw, err := j.pop(ctx, conn)
	switch {
	case errors.Is(err, resource.ErrNoRows), err == nil && raw == nil:
		j.log.Info("no data")
		return j.idle, nil
	case err != nil:
		j.log.Warn("get_task error", logx.Err(err))
		return j.idle, nil
	}

	j.log.Info("task received", logx.String("data_json", string(raw)))
	if j.handle != nil {
		if err := j.handle(ctx, json.RawMessage(raw)); err != nil {
			return 0, err
		}
	}
	j.processed.Add(1)

	if j.limiter != nil {
		return j.limiter.ReserveN(now, 1).DelayFrom(now), nil
	}
	return 0, nil
}

// Shutdown is a looper.ShutdownFunc.
func (j *QueueJob) Shutdown(context.Context) {
	j.log.Debug("queue job stopped", logx.Uint64("processed", j.processed.Load()))
}

// Processed returns the number of tasks popped so far.
func (j *QueueJob) Processed() uint64 { return j.processed.Load() }

func (j *QueueJob) pop(ctx context.Context, conn resource.Conn) ([]byte, error) {
	var raw []byte
	var err error
	switch conn.Dialect() {
	case resource.DialectPostgres:
		err = conn.QueryRow(ctx, pgPopTask).Scan(&raw)
	case resource.DialectSQLite:
		err = conn.QueryRow(ctx, sqlitePopTask).Scan(&raw)
	default:
		err = unsupported(conn.Dialect())
	}
	return raw, err
}
