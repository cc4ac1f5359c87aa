// Package app wires config, logging, the resource pool and every loop into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"resident/internal/config"
	"resident/internal/looper"
	"resident/internal/observability/metrics"
	"resident/internal/resource"
	"resident/internal/runtime/shutdown"
	"resident/internal/runtime/supervisor"
	logx "resident/pkg/logx"
	"resident/pkg/systemd"
)

// Options are process-level inputs. The zero value reads the environment and
// listens for OS signals.
type Options struct {
	ConfigPath string
	Getenv     func(string) string

	// LogOutput replaces stdout as the primary log sink.
	LogOutput io.Writer
	Notifier  systemd.Notifier
	// Signals replaces os/signal delivery.
	Signals <-chan os.Signal
}

type App struct {
	opts Options

	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	root logx.Logger
	log  logx.Logger

	pool    resource.Provider
	metrics *metrics.Metrics
	loops   []*looper.Looper
}

// New loads config, opens the pool and builds every loop. Nothing runs yet:
// a bad schedule or endpoint fails here before any loop starts.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Notifier == nil {
		opts.Notifier = systemd.Daemon{}
	}

	cfgm := config.NewManager(opts.ConfigPath, opts.Getenv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.NewTo(cfg.Logx(), opts.LogOutput)
	log = log.With(logx.String("instance", uuid.NewString()))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	rc, err := cfg.ResourceSettings()
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	pool, err := resource.Open(ctx, rc, log.With(logx.String("comp", "resource")))
	if err != nil {
		log.Error("resource open failed", logx.Err(err))
		_ = logs.Close()
		return nil, err
	}

	a := &App{
		opts:    opts,
		cfgm:    cfgm,
		cfg:     cfg,
		logs:    logs,
		root:    log,
		log:     log.With(logx.String("comp", "app")),
		pool:    pool,
		metrics: metrics.New(pool),
	}

	loops, err := a.buildLoops()
	if err != nil {
		a.log.Error("loop setup failed", logx.Err(err))
		a.close()
		return nil, err
	}
	a.loops = loops
	return a, nil
}

func (a *App) Loops() []*looper.Looper { return a.loops }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run starts every loop, waits for an interrupt (or ctx, or every loop exiting),
// sets the stop signal and joins all loops. It returns the first loop error.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	sig := looper.NewSignal(context.Background())
	sup := supervisor.New(sig.Context(), supervisor.WithLogger(a.root.With(logx.String("comp", "supervisor"))))
	coord := shutdown.New(sig,
		shutdown.WithLogger(a.log),
		shutdown.WithNotifier(a.opts.Notifier),
		shutdown.WithSignals(a.opts.Signals),
	)
	defer coord.Close()

	var loopsWG sync.WaitGroup
	for _, l := range a.loops {
		l := l
		loopsWG.Add(1)
		sup.Go("loop."+l.Name(), func(context.Context) error {
			defer loopsWG.Done()
			return l.Run(sig)
		})
	}
	go func() {
		loopsWG.Wait()
		coord.Trigger(shutdown.ReasonLoopsDone)
	}()

	a.startAux(sup)

	if _, err := systemd.Ready(a.opts.Notifier); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	_, _ = systemd.Status(a.opts.Notifier, fmt.Sprintf("%d loops running", len(a.loops)))
	a.log.Info("resident started", logx.Int("loops", len(a.loops)), logx.String("config", a.cfgm.Path()))

	reason := coord.Wait(ctx)

	start := time.Now()
	err := sup.Stop(context.Background())
	a.log.Info("all loops joined", logx.String("reason", string(reason)), logx.Duration("took", time.Since(start)))
	if err != nil && !errors.Is(err, looper.ErrHandler) {
		// Only loops publish errors; aux tasks run under restart loops.
		a.log.Error("unexpected task error", logx.Err(err))
	}
	return err
}

// startAux runs the config watcher, logging reload and the metrics server.
// All of them stop when the signal is set.
func (a *App) startAux(sup *supervisor.Supervisor) {
	sub := a.cfgm.Subscribe(4)
	sup.GoRestart("config.watch", a.cfgm.Watch)
	sup.GoRestart("config.apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.logs.Apply(cfg.Logx())
				a.log.Debug("logging reconfigured", logx.String("level", cfg.Logging.Level))
			}
		}
	})

	if !a.cfg.Metrics.Enabled {
		return
	}
	read, _ := config.ParseDurationOrDefault("metrics.read_timeout", a.cfg.Metrics.ReadTimeout, 10*time.Second)
	idle, _ := config.ParseDurationOrDefault("metrics.idle_timeout", a.cfg.Metrics.IdleTimeout, 60*time.Second)
	srv := metrics.NewServer(metrics.ServerConfig{
		Addr:        a.cfg.Metrics.Addr,
		Pprof:       a.cfg.Metrics.Pprof,
		ReadTimeout: read,
		IdleTimeout: idle,
		Tasks:       sup.Snapshot,
	}, a.metrics, a.root)
	sup.GoRestart("metrics.http", srv.Serve, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

func (a *App) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
