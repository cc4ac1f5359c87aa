package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"resident/internal/looper"
	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Loop is a LoopConfig with every duration parsed.
type Loop struct {
	Name         string
	Kind         string
	Schedule     string
	WakeInterval time.Duration
	ErrorBackoff time.Duration

	Job           string
	BatchCode     string
	BatchInterval time.Duration

	IdleBackoff     time.Duration
	DrainRatePerSec float64
}

// Logx converts the logging block for logx.Service.Apply.
func (c *Config) Logx() logx.Config {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = DefaultName
	}
	return logx.Config{
		Name:   name,
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

// ResourceSettings converts the resource block for resource.Open.
func (c *Config) ResourceSettings() (resource.Config, error) {
	acquire, err := ParseDurationOrDefault("resource.acquire_timeout", c.Resource.AcquireTimeout, resource.DefaultAcquireTimeout)
	if err != nil {
		return resource.Config{}, err
	}
	busy, err := ParseDurationField("resource.busy_timeout", c.Resource.BusyTimeout)
	if err != nil {
		return resource.Config{}, err
	}
	if c.Resource.MaxConns < 0 || c.Resource.MaxConns > resource.MaxConnsLimit {
		return resource.Config{}, fmt.Errorf("resource.max_conns: must be between 0 and %d, got %d", resource.MaxConnsLimit, c.Resource.MaxConns)
	}
	ping := true
	if c.Resource.PingOnOpen != nil {
		ping = *c.Resource.PingOnOpen
	}
	return resource.Config{
		URL:            strings.TrimSpace(c.Resource.URL),
		MaxConns:       c.Resource.MaxConns,
		AcquireTimeout: acquire,
		PingOnOpen:     ping,
		BusyTimeout:    busy,
	}, nil
}

// Location loads the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// ResolveLoops validates and converts every loop definition.
func (c *Config) ResolveLoops() ([]Loop, error) {
	if len(c.Loops) == 0 {
		return nil, fmt.Errorf("loops: at least one loop required")
	}
	out := make([]Loop, 0, len(c.Loops))
	seen := make(map[string]bool, len(c.Loops))
	for i, lc := range c.Loops {
		path := fmt.Sprintf("loops[%d]", i)
		l, err := resolveLoop(path, lc)
		if err != nil {
			return nil, err
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("%s.name: duplicate loop name %q", path, l.Name)
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	return out, nil
}

func resolveLoop(path string, lc LoopConfig) (Loop, error) {
	l := Loop{
		Name:            strings.TrimSpace(lc.Name),
		Kind:            strings.ToLower(strings.TrimSpace(lc.Kind)),
		Schedule:        strings.TrimSpace(lc.Schedule),
		Job:             strings.ToLower(strings.TrimSpace(lc.Job.Type)),
		BatchCode:       strings.TrimSpace(lc.Job.BatchCode),
		DrainRatePerSec: lc.Job.DrainRatePerSec,
	}
	if l.Name == "" {
		return Loop{}, fmt.Errorf("%s.name: required", path)
	}

	var err error
	if l.WakeInterval, err = requireDuration(path+".wake_interval", lc.WakeInterval); err != nil {
		return Loop{}, err
	}

	switch l.Kind {
	case KindCron:
		if _, err := looper.ParseSchedule(l.Schedule); err != nil {
			return Loop{}, fmt.Errorf("%s.schedule: %w", path, err)
		}
		if l.Job != JobBatch {
			return Loop{}, fmt.Errorf("%s.job.type: cron loops run %q jobs, got %q", path, JobBatch, lc.Job.Type)
		}
		if l.BatchCode == "" {
			return Loop{}, fmt.Errorf("%s.job.batch_code: required", path)
		}
		if l.BatchInterval, err = ParseDurationOrDefault(path+".job.batch_interval", lc.Job.BatchInterval, time.Minute); err != nil {
			return Loop{}, err
		}
	case KindPoll:
		if l.ErrorBackoff, err = requireDuration(path+".error_backoff", lc.ErrorBackoff); err != nil {
			return Loop{}, err
		}
		if l.Job != JobQueue {
			return Loop{}, fmt.Errorf("%s.job.type: poll loops run %q jobs, got %q", path, JobQueue, lc.Job.Type)
		}
		if l.IdleBackoff, err = requireDuration(path+".job.idle_backoff", lc.Job.IdleBackoff); err != nil {
			return Loop{}, err
		}
		if l.DrainRatePerSec < 0 {
			return Loop{}, fmt.Errorf("%s.job.drain_rate_per_sec: must be >= 0", path)
		}
	default:
		return Loop{}, fmt.Errorf("%s.kind: must be %q or %q, got %q", path, KindCron, KindPoll, lc.Kind)
	}
	return l, nil
}

// Validate checks every section. Errors name the offending field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			return fmt.Errorf("%w: logging.level: unknown level %q", ErrInvalid, lvl)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", logx.FormatJSON, logx.FormatConsole:
	default:
		return fmt.Errorf("%w: logging.format: must be %q or %q", ErrInvalid, logx.FormatJSON, logx.FormatConsole)
	}
	rc, err := cfg.ResourceSettings()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := resource.ParseURL(rc.URL); err != nil {
		return fmt.Errorf("%w: resource.url: %w", ErrInvalid, err)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if cfg.Metrics.Enabled {
		if _, err := ParseDurationField("metrics.read_timeout", cfg.Metrics.ReadTimeout); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if _, err := ParseDurationField("metrics.idle_timeout", cfg.Metrics.IdleTimeout); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if _, err := cfg.ResolveLoops(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
