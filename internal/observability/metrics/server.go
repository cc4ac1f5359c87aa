package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resident/internal/runtime/supervisor"
	logx "resident/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9464"

// ServerConfig controls the metrics HTTP server.
type ServerConfig struct {
	Addr string
	// Pprof also mounts net/http/pprof under /debug/pprof/.
	Pprof bool

	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// Tasks, when set, is served as JSON under /debug/tasks.
	Tasks func() supervisor.Snapshot
}

// Server serves /metrics, /healthz, /debug/tasks and optionally /debug/pprof/.
// Run it under supervisor.GoRestart so a failed listener is retried.
type Server struct {
	cfg ServerConfig
	m   *Metrics
	log logx.Logger

	mu   sync.Mutex
	addr string
}

func NewServer(cfg ServerConfig, m *Metrics, log logx.Logger) *Server {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, m: m, log: log.With(logx.String("comp", "metrics"))}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Tasks != nil {
		mux.HandleFunc("/debug/tasks", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(s.cfg.Tasks()); err != nil {
				s.log.Warn("task snapshot encode failed", logx.Err(err))
			}
		})
	}
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

// Addr returns the bound listen address once Serve is running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve listens and serves until ctx is done. It returns nil on a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	if !isLoopbackAddr(s.cfg.Addr) {
		s.log.Warn("metrics bound to a non-loopback address", logx.String("addr", s.cfg.Addr))
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("metrics listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	exited := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-exited:
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("metrics started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)
	close(exited)
	if ctx.Err() != nil {
		<-stopped
		s.log.Info("metrics stopped")
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("metrics server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
