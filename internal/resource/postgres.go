package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "resident/pkg/logx"
)

type pgProvider struct {
	pool *pgxpool.Pool
	cfg  Config
	log  logx.Logger

	closed   atomic.Bool
	acquired atomic.Uint64
	failed   atomic.Uint64
}

// Ensure interfaces are satisfied
var _ Provider = (*pgProvider)(nil)
var _ Conn = (*pgConn)(nil)

func openPostgres(ctx context.Context, ep Endpoint, cfg Config, log logx.Logger) (Provider, error) {
	pc, err := pgxpool.ParseConfig(ep.String())
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	// cfg.MaxConns is at most MaxConnsLimit after withDefaults.
	pc.MaxConns = int32(cfg.MaxConns)
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if cfg.PingOnOpen {
		pctx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
		err := pool.Ping(pctx)
		cancel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to postgres %s: %w", ep.Redacted(), err)
		}
	}

	log.Info("pool ready",
		logx.String("driver", string(DialectPostgres)),
		logx.String("host", ep.Host),
		logx.String("db", ep.Database),
		logx.Int("max_conns", cfg.MaxConns),
		logx.Duration("acquire_timeout", cfg.AcquireTimeout),
	)
	return &pgProvider{pool: pool, cfg: cfg, log: log}, nil
}

func (p *pgProvider) Acquire(ctx context.Context) (Conn, error) {
	if p.closed.Load() {
		p.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrAcquire, ErrClosed)
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	c, err := p.pool.Acquire(actx)
	if err != nil {
		p.failed.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	p.acquired.Add(1)
	return &pgConn{conn: c}, nil
}

func (p *pgProvider) Stats() Stats {
	st := p.pool.Stat()
	return Stats{
		Driver:   DialectPostgres,
		MaxConns: int(st.MaxConns()),
		InUse:    int(st.AcquiredConns()),
		Idle:     int(st.IdleConns()),
		Acquired: p.acquired.Load(),
		Failed:   p.failed.Load(),
	}
}

func (p *pgProvider) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Close()
}

type pgConn struct {
	conn *pgxpool.Conn
	once sync.Once
}

func (c *pgConn) Dialect() Dialect { return DialectPostgres }

func (c *pgConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{c.conn.QueryRow(ctx, query, args...)}
}

func (c *pgConn) Release() {
	c.once.Do(c.conn.Release)
}

type pgRow struct{ row pgx.Row }

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
