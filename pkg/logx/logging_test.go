package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestServiceJSONFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_, log := newService(Config{Name: "resident", Level: "info", Format: "json"}, &buf)

	log.With(String("comp", "looper")).Warn("tick skipped", Err(errors.New("pool timeout")), Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"name":    "resident",
		"level":   "warn",
		"message": "tick skipped",
		"comp":    "looper",
		"err":     "pool timeout",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v", k, m[k], v)
		}
	}
	if _, ok := m["caller"]; !ok {
		t.Fatal("expected caller field")
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	svc, log := newService(Config{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	svc.Apply(Config{Level: "debug", Format: "json"})
	log.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug should be logged after Apply, got %q", buf.String())
	}
	if !log.Enabled(LevelDebug) {
		t.Fatal("Enabled(debug) = false after Apply")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Info("nothing happens")
	if log.With(String("k", "v")).IsZero() {
		t.Fatal("derived logger carries fields")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Level
		ok   bool
	}{
		{raw: "info", want: LevelInfo, ok: true},
		{raw: " WARNING ", want: LevelWarn, ok: true},
		{raw: "trace", want: LevelTrace, ok: true},
		{raw: "verbose", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if ok != tt.ok {
			t.Fatalf("ParseLevel(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
