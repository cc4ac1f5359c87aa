package resource

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	logx "resident/pkg/logx"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type sqliteProvider struct {
	db  *sql.DB
	cfg Config
	log logx.Logger

	closed   atomic.Bool
	acquired atomic.Uint64
	failed   atomic.Uint64
}

var _ Provider = (*sqliteProvider)(nil)
var _ Conn = (*sqliteConn)(nil)

func openSQLite(ctx context.Context, ep Endpoint, cfg Config, log logx.Logger) (Provider, error) {
	if ep.InMemory() {
		// Each connection would open its own empty database.
		if cfg.MaxConns != 1 {
			log.Warn("in-memory sqlite: pool limited to one connection", logx.Int("max_conns", cfg.MaxConns))
		}
		cfg.MaxConns = 1
	} else if !strings.HasPrefix(ep.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(ep.Path), 0o755); err != nil {
			return nil, err
		}
	}
	if cfg.BusyTimeout > 0 {
		if ep.Query == nil {
			ep.Query = map[string][]string{}
		}
		ep.Query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}

	db, err := sql.Open("sqlite", ep.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)

	// Basic pragmas.
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if cfg.PingOnOpen {
		pctx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
		err := db.PingContext(pctx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connecting to sqlite %s: %w", ep.Path, err)
		}
	}

	log.Info("pool ready",
		logx.String("driver", string(DialectSQLite)),
		logx.String("path", ep.Path),
		logx.Int("max_conns", cfg.MaxConns),
		logx.Duration("acquire_timeout", cfg.AcquireTimeout),
	)
	return &sqliteProvider{db: db, cfg: cfg, log: log}, nil
}

func (p *sqliteProvider) Acquire(ctx context.Context) (Conn, error) {
	if p.closed.Load() {
		p.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrAcquire, ErrClosed)
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	c, err := p.db.Conn(actx)
	if err != nil {
		p.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	p.acquired.Add(1)
	return &sqliteConn{conn: c}, nil
}

func (p *sqliteProvider) Stats() Stats {
	st := p.db.Stats()
	return Stats{
		Driver:   DialectSQLite,
		MaxConns: st.MaxOpenConnections,
		InUse:    st.InUse,
		Idle:     st.Idle,
		Acquired: p.acquired.Load(),
		Failed:   p.failed.Load(),
	}
}

func (p *sqliteProvider) Close() {
	if p.closed.Swap(true) {
		return
	}
	if err := p.db.Close(); err != nil {
		p.log.Warn("sqlite close failed", logx.Err(err))
	}
}

type sqliteConn struct {
	conn *sql.Conn
	once sync.Once
}

func (c *sqliteConn) Dialect() Dialect { return DialectSQLite }

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqliteConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqliteRow{c.conn.QueryRowContext(ctx, query, args...)}
}

func (c *sqliteConn) Release() {
	c.once.Do(func() { _ = c.conn.Close() })
}

type sqliteRow struct{ row *sql.Row }

func (r sqliteRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
