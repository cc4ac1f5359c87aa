// Package jobs holds the handlers bound to loops: a cron batch that enqueues
// tasks when its batch row is due, and a poll worker that drains them.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// DefaultBatchInterval seeds new sqlite batch rows.
const DefaultBatchInterval = time.Minute

// Task is the payload enqueued by a due batch.
type Task struct {
	ID    string    `json:"id"`
	Now   time.Time `json:"now"`
	Batch string    `json:"batch,omitempty"`
}

// BatchJob claims its batch row on every tick and enqueues a Task when the row was due.
type BatchJob struct {
	code     string
	interval time.Duration
	log      logx.Logger
	newID    func() string

	enqueued atomic.Uint64
}

type BatchOption func(*BatchJob)

// WithInterval sets the interval seeded for a new batch row (sqlite).
func WithInterval(d time.Duration) BatchOption {
	return func(j *BatchJob) {
		if d > 0 {
			j.interval = d
		}
	}
}

func WithIDFunc(fn func() string) BatchOption {
	return func(j *BatchJob) {
		if fn != nil {
			j.newID = fn
		}
	}
}

func NewBatchJob(code string, log logx.Logger, opts ...BatchOption) *BatchJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	j := &BatchJob{
		code:     strings.TrimSpace(code),
		interval: DefaultBatchInterval,
		log:      log.With(logx.String("batch", code)),
		newID:    func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Tick is a looper.TickFunc. A failed due-check is logged and swallowed;
// a failed enqueue is returned and ends the loop.
func (j *BatchJob) Tick(ctx context.Context, now time.Time, conn resource.Conn) error {
	j.log.Info("batch tick", logx.Time("now", now))

	due, err := j.claim(ctx, now, conn)
	if err != nil {
		j.log.Warn("is_batch error", logx.Err(err))
		return nil
	}
	if !due {
		j.log.Info("is_batch is false")
		return nil
	}

	task := Task{ID: j.newID(), Now: now, Batch: j.code}
	if err := j.enqueue(ctx, now, conn, task); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	j.enqueued.Add(1)
	j.log.Debug("task enqueued", logx.String("task_id", task.ID))
	return nil
}

// Shutdown is a looper.ShutdownFunc.
func (j *BatchJob) Shutdown(context.Context) {
	j.log.Debug("batch job stopped", logx.Uint64("enqueued", j.enqueued.Load()))
}

// Enqueued returns the number of tasks inserted so far.
func (j *BatchJob) Enqueued() uint64 { return j.enqueued.Load() }

func (j *BatchJob) claim(ctx context.Context, now time.Time, conn resource.Conn) (bool, error) {
	var code string
	var err error
	switch conn.Dialect() {
	case resource.DialectPostgres:
		err = conn.QueryRow(ctx, pgClaimBatch, j.code).Scan(&code)
	case resource.DialectSQLite:
		if _, err := conn.Exec(ctx, sqliteSeedBatch, j.code, j.interval.Milliseconds()); err != nil {
			return false, err
		}
		ms := now.UnixMilli()
		err = conn.QueryRow(ctx, sqliteClaimBatch, ms, j.code, ms).Scan(&code)
	default:
		return false, unsupported(conn.Dialect())
	}
	if errors.Is(err, resource.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (j *BatchJob) enqueue(ctx context.Context, now time.Time, conn resource.Conn, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	switch conn.Dialect() {
	case resource.DialectPostgres:
		_, err = conn.Exec(ctx, pgAddTask, string(payload))
	case resource.DialectSQLite:
		_, err = conn.Exec(ctx, sqliteAddTask, string(payload), now.UnixMilli())
	default:
		err = unsupported(conn.Dialect())
	}
	return err
}
