// Package resource provides the pooled relational connections the loops run against.
//
// It currently supports:
//   - PostgreSQL via pgxpool ("postgres://", "postgresql://")
//   - SQLite via modernc.org/sqlite ("sqlite://", "file:")
//
// Every driver has a fixed pool size and a bounded acquisition wait; an exhausted pool
// surfaces as ErrAcquire rather than blocking forever.
package resource
