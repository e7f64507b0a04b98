package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/internal/observability"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Track.Samples != 180 || cfg.Track.Step != 30*time.Second || cfg.Track.MarkerEvery != 20 {
		t.Fatalf("unexpected track defaults: %+v", cfg.Track)
	}
	if g, _ := cfg.Gravity(); g != core.GravityWGS72 {
		t.Fatalf("default gravity = %q, want wgs72", g)
	}
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
provider:
  base_url: http://mirror.local
track:
  samples: 60
  step: 1m
  gravity: wgs84
serve:
  cache_ttl: 30m
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}

	want := Default()
	want.Provider.BaseURL = "http://mirror.local"
	want.Track.Samples = 60
	want.Track.Step = time.Minute
	want.Track.Gravity = "wgs84"
	want.Serve.CacheTTL = 30 * time.Minute
	want.Tracing.Enabled = true
	want.Tracing.Exporter = "otlp"
	want.Tracing.Endpoint = "collector:4317"

	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreFields(observability.TracingConfig{}, "Writer")); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseYAML([]byte("track:\n  sampels: 10\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	if _, err := ParseYAML(nil); err != nil {
		t.Fatalf("empty document should keep defaults, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SATLOC_SAMPLES":              "90",
		"SATLOC_STEP":                 "15s",
		"SATLOC_GRAVITY":              "wgs84",
		"SATLOC_ADDR":                 "127.0.0.1:8081",
		"SATLOC_LOG_LEVEL":            "debug",
		"SATLOC_TRACING_ENABLED":      "true",
		"SATLOC_TRACING_SAMPLE_RATIO": "0.25",
		"SATLOC_OTLP_ENDPOINT":        "otel:4317",
		"SATLOC_BASE_URL":             "   ",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Track.Samples != 90 || cfg.Track.Step != 15*time.Second || cfg.Track.Gravity != "wgs84" {
		t.Fatalf("track overrides not applied: %+v", cfg.Track)
	}
	if cfg.Serve.Addr != "127.0.0.1:8081" || cfg.Log.Level != "debug" {
		t.Fatalf("serve/log overrides not applied: %+v %+v", cfg.Serve, cfg.Log)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 0.25 || cfg.Tracing.Endpoint != "otel:4317" {
		t.Fatalf("tracing overrides not applied: %+v", cfg.Tracing)
	}
	if cfg.Provider.BaseURL != Default().Provider.BaseURL {
		t.Fatalf("blank variable should not override, got %q", cfg.Provider.BaseURL)
	}
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SATLOC_SAMPLES":         "many",
		"SATLOC_STEP":            "soon",
		"SATLOC_TRACING_ENABLED": "perhaps",
	}))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("ApplyEnv error = %v, want ErrInvalid", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 3 {
		t.Fatalf("expected three joined errors, got %v", err)
	}
	if cfg.Track.Samples != Default().Track.Samples {
		t.Fatalf("bad value should leave field untouched")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero samples", func(c *Config) { c.Track.Samples = 0 }},
		{"too many samples", func(c *Config) { c.Track.Samples = MaxSamples + 1 }},
		{"negative step", func(c *Config) { c.Track.Step = -time.Second }},
		{"span too long", func(c *Config) { c.Track.Step = 24 * time.Hour; c.Track.Samples = 400 }},
		{"step overflows", func(c *Config) { c.Track.Step = time.Duration(1 << 62) }},
		{"zero marker interval", func(c *Config) { c.Track.MarkerEvery = 0 }},
		{"unknown gravity", func(c *Config) { c.Track.Gravity = "egm96" }},
		{"no base url", func(c *Config) { c.Provider.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.Provider.Timeout = 0 }},
		{"zero tick", func(c *Config) { c.Watch.Tick = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCheckSpan(t *testing.T) {
	tests := []struct {
		step    time.Duration
		samples int
		wantErr bool
	}{
		{30 * time.Second, 180, false},
		{24 * time.Hour, 367, false},
		{24 * time.Hour, 368, true},
		{time.Duration(math.MaxInt64), 2, true},
		{time.Duration(math.MaxInt64), 1, false},
		{time.Minute, MaxSamples, false},
	}
	for _, tc := range tests {
		err := CheckSpan(tc.step, tc.samples)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckSpan(%s, %d) = %v, wantErr %v", tc.step, tc.samples, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalid) {
			t.Errorf("CheckSpan error %v does not wrap ErrInvalid", err)
		}
	}
}

func TestLoadReadsFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "satloc.yaml")
	if err := os.WriteFile(path, []byte("track:\n  samples: 42\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SATLOC_MARKER_EVERY=7\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("SATLOC_MARKER_EVERY", "")
	os.Unsetenv("SATLOC_MARKER_EVERY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Track.Samples != 42 {
		t.Fatalf("samples = %d, want 42 from file", cfg.Track.Samples)
	}
	if cfg.Track.MarkerEvery != 7 {
		t.Fatalf("marker_every = %d, want 7 from .env", cfg.Track.MarkerEvery)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv(missing) = %v", err)
	}
}

func TestParseStart(t *testing.T) {
	now := time.Date(2025, 5, 18, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", now.UTC()},
		{"20250518T093000", time.Date(2025, 5, 18, 9, 30, 0, 0, time.UTC)},
		{"2025-05-18T11:30:00+02:00", time.Date(2025, 5, 18, 9, 30, 0, 0, time.UTC)},
		{"2025-05-18T09:30:00Z", time.Date(2025, 5, 18, 9, 30, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := ParseStart(tc.in, now)
		if err != nil {
			t.Fatalf("ParseStart(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) || got.Location() != time.UTC {
			t.Fatalf("ParseStart(%q) = %v, want %v in UTC", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"2025-05-18", "20251318T000000", "yesterday"} {
		if _, err := ParseStart(bad, now); !errors.Is(err, ErrInvalidStart) {
			t.Errorf("ParseStart(%q) error = %v, want ErrInvalidStart", bad, err)
		}
	}
}
