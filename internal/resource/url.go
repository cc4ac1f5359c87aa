package resource

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Endpoint is a parsed connection string.
type Endpoint struct {
	Driver   Dialect
	User     string
	Password string
	Host     string
	Port     string
	Database string

	// Path is the database file (sqlite only).
	Path  string
	Query url.Values
}

// ParseURL parses a connection string into provider parameters.
//
// Postgres URLs without a database path default to DefaultDatabase.
func ParseURL(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, fmt.Errorf("connection url required")
	}
	if strings.EqualFold(s, "sqlite://:memory:") {
		return Endpoint{Driver: DialectSQLite, Path: memoryPath}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid connection url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		ep := Endpoint{
			Driver:   DialectPostgres,
			Host:     u.Hostname(),
			Port:     u.Port(),
			Database: strings.TrimPrefix(u.Path, "/"),
			Query:    u.Query(),
		}
		if ep.Host == "" {
			return Endpoint{}, fmt.Errorf("connection url %q: host required", redact(u))
		}
		if ep.Port == "" {
			ep.Port = "5432"
		}
		if i := strings.IndexByte(ep.Database, '/'); i >= 0 {
			ep.Database = ep.Database[:i]
		}
		if ep.Database == "" {
			ep.Database = DefaultDatabase
		}
		if u.User != nil {
			ep.User = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		return ep, nil
	case "sqlite", "sqlite3":
		path := u.Host + u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return Endpoint{}, fmt.Errorf("connection url %q: database path required", s)
		}
		return Endpoint{Driver: DialectSQLite, Path: path, Query: u.Query()}, nil
	case "file":
		return Endpoint{Driver: DialectSQLite, Path: s}, nil
	case "":
		return Endpoint{}, fmt.Errorf("connection url %q: scheme required", s)
	default:
		return Endpoint{}, fmt.Errorf("connection url: unsupported scheme %q", u.Scheme)
	}
}

const memoryPath = ":memory:"

// InMemory reports whether every connection to e gets its own private sqlite database.
func (e Endpoint) InMemory() bool {
	if e.Driver != DialectSQLite {
		return false
	}
	if e.Path == memoryPath || strings.HasPrefix(e.Path, "file::memory:") {
		return true
	}
	if e.Query.Get("mode") == "memory" {
		return true
	}
	if i := strings.IndexByte(e.Path, '?'); i >= 0 {
		q, _ := url.ParseQuery(e.Path[i+1:])
		return q.Get("mode") == "memory"
	}
	return false
}

// String renders the endpoint as a connection URL.
func (e Endpoint) String() string {
	switch e.Driver {
	case DialectPostgres:
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(e.Host, e.Port),
			Path:     "/" + e.Database,
			RawQuery: e.Query.Encode(),
		}
		if e.User != "" {
			if e.Password != "" {
				u.User = url.UserPassword(e.User, e.Password)
			} else {
				u.User = url.User(e.User)
			}
		}
		return u.String()
	case DialectSQLite:
		if strings.HasPrefix(e.Path, "file:") {
			if len(e.Query) == 0 {
				return e.Path
			}
			sep := "?"
			if strings.Contains(e.Path, "?") {
				sep = "&"
			}
			return e.Path + sep + e.Query.Encode()
		}
		if len(e.Query) > 0 {
			return "file:" + e.Path + "?" + e.Query.Encode()
		}
		return e.Path
	default:
		return ""
	}
}

// Redacted is String with the password masked, for logging.
func (e Endpoint) Redacted() string {
	if e.Password == "" {
		return e.String()
	}
	cp := e
	cp.Password = "xxxxx"
	return cp.String()
}

func redact(u *url.URL) string {
	return u.Redacted()
}
