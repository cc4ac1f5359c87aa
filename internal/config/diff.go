package config

import (
	"reflect"
	"strings"

	"resident/internal/resource"
	logx "resident/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// attrs for logging. Passwords in resource URLs are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Name != newCfg.Name || !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Resource, newCfg.Resource) {
		changed = append(changed, "resource")
		url := strings.TrimSpace(newCfg.Resource.URL)
		if ep, err := resource.ParseURL(url); err == nil {
			url = ep.Redacted()
		} else {
			url = ""
		}
		attrs = append(attrs, logx.String("resource.url", url), logx.Int("resource.max_conns", newCfg.Resource.MaxConns))
	}

	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled), logx.String("metrics.addr", newCfg.Metrics.Addr))
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}

	if !reflect.DeepEqual(oldCfg.Loops, newCfg.Loops) {
		changed = append(changed, "loops")
		attrs = append(attrs, logx.Int("loops.count", len(newCfg.Loops)))
	}

	return changed, attrs
}

// onlyLogging reports whether every changed section can be applied at runtime.
func onlyLogging(changed []string) bool {
	for _, c := range changed {
		if c != "logging" {
			return false
		}
	}
	return true
}
