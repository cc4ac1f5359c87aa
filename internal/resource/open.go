package resource

import (
	"context"
	"errors"

	logx "resident/pkg/logx"
)

// Open parses cfg.URL and builds the matching provider.
// Any error here is a startup failure.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Provider, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()

	ep, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch ep.Driver {
	case DialectPostgres:
		return openPostgres(ctx, ep, cfg, log)
	case DialectSQLite:
		return openSQLite(ctx, ep, cfg, log)
	default:
		return nil, errors.New("unknown resource driver: " + string(ep.Driver))
	}
}
