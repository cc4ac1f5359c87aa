package config

import (
	"strings"

	"resident/internal/observability/metrics"
	"resident/internal/resource"
)

const DefaultName = "resident"

// Env names read by ApplyEnv.
const (
	EnvConfig      = "RESIDENT_CONFIG"
	EnvURL         = "PG_URL"
	EnvLogLevel    = "RESIDENT_LOG_LEVEL"
	EnvLogFormat   = "RESIDENT_LOG_FORMAT"
	EnvMetricsAddr = "RESIDENT_METRICS_ADDR"
)

// Default returns the built-in configuration: one batch looper firing every ten
// seconds and one queue worker.
func Default() *Config {
	ping := true
	return &Config{
		Name: DefaultName,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Resource: ResourceConfig{
			URL:            resource.DefaultURL,
			MaxConns:       resource.DefaultMaxConns,
			AcquireTimeout: resource.DefaultAcquireTimeout.String(),
			PingOnOpen:     &ping,
		},
		Metrics:  MetricsConfig{Addr: metrics.DefaultAddr},
		Timezone: "UTC",
		Loops: []LoopConfig{
			{
				Name:         "looper1",
				Kind:         KindCron,
				Schedule:     "*/10 * * * * *",
				WakeInterval: "60s",
				Job:          JobConfig{Type: JobBatch, BatchCode: "minutely_batch"},
			},
			{
				Name:         "worker1",
				Kind:         KindPoll,
				WakeInterval: "60s",
				ErrorBackoff: "60s",
				Job:          JobConfig{Type: JobQueue, IdleBackoff: "60s"},
			},
		},
	}
}

// ApplyEnv overlays environment overrides onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvURL)); v != "" {
		cfg.Resource.URL = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(getenv(EnvMetricsAddr)); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
}
