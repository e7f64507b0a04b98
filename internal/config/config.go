// Package config layers satloc settings: built-in defaults, an optional YAML
// file, a .env file and SATLOC_* environment variables. Command-line flags
// are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/kb"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SATLOC_"

// MaxSamples caps a single track so a request cannot ask for unbounded work.
const MaxSamples = 100000

// MaxSpan caps the time between the first and last sample of a track.
const MaxSpan = 366 * 24 * time.Hour

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Provider ProviderConfig              `yaml:"provider"`
	Track    TrackConfig                 `yaml:"track"`
	Serve    ServeConfig                 `yaml:"serve"`
	Watch    WatchConfig                 `yaml:"watch"`
	Log      LogConfig                   `yaml:"log"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
}

// ProviderConfig points at the tracking-data provider.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TrackConfig shapes one propagated track.
type TrackConfig struct {
	Samples     int           `yaml:"samples"`
	Step        time.Duration `yaml:"step"`
	MarkerEvery int           `yaml:"marker_every"`
	Gravity     string        `yaml:"gravity"`
	Output      string        `yaml:"output"`
	Title       string        `yaml:"title"`
}

// ServeConfig configures serve mode.
type ServeConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WatchConfig configures watch mode. A zero Duration runs until interrupted.
type WatchConfig struct {
	Tick     time.Duration `yaml:"tick"`
	Duration time.Duration `yaml:"duration"`
}

// LogConfig mirrors logging.Config for file-based configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL: celestrak.DefaultBaseURL,
			Timeout: celestrak.DefaultTimeout,
		},
		Track: TrackConfig{
			Samples:     core.DefaultSamples,
			Step:        core.DefaultStep,
			MarkerEvery: core.DefaultMarkerEvery,
			Gravity:     string(core.GravityWGS72),
			Output:      "satellite_track.html",
		},
		Serve: ServeConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			CacheTTL:        kb.DefaultTTL,
			ShutdownTimeout: 10 * time.Second,
		},
		Watch: WatchConfig{
			Tick: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the .env file in the working directory if any, and the process
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ParseYAML decodes a YAML document over the defaults. Unknown keys are an
// error.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decodeYAML(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from SATLOC_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("BASE_URL", &c.Provider.BaseURL)
	env.duration("HTTP_TIMEOUT", &c.Provider.Timeout)

	env.integer("SAMPLES", &c.Track.Samples)
	env.duration("STEP", &c.Track.Step)
	env.integer("MARKER_EVERY", &c.Track.MarkerEvery)
	env.str("GRAVITY", &c.Track.Gravity)

	env.str("ADDR", &c.Serve.Addr)
	env.str("METRICS_ADDR", &c.Serve.MetricsAddr)
	env.duration("CACHE_TTL", &c.Serve.CacheTTL)

	env.duration("WATCH_TICK", &c.Watch.Tick)

	env.str("LOG_LEVEL", &c.Log.Level)
	env.str("LOG_FORMAT", &c.Log.Format)

	env.boolean("TRACING_ENABLED", &c.Tracing.Enabled)
	env.str("TRACING_EXPORTER", &c.Tracing.Exporter)
	env.str("TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	env.str("OTLP_ENDPOINT", &c.Tracing.Endpoint)
	env.float("TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)

	return errors.Join(env.errs...)
}

// Validate reports every setting that cannot produce a track.
func (c Config) Validate() error {
	var errs []error
	if c.Track.Samples < 1 || c.Track.Samples > MaxSamples {
		errs = append(errs, fmt.Errorf("%w: samples %d out of range 1..%d", ErrInvalid, c.Track.Samples, MaxSamples))
	}
	if c.Track.Step <= 0 {
		errs = append(errs, fmt.Errorf("%w: step must be positive, got %s", ErrInvalid, c.Track.Step))
	} else if err := CheckSpan(c.Track.Step, c.Track.Samples); err != nil {
		errs = append(errs, err)
	}
	if c.Track.MarkerEvery < 1 {
		errs = append(errs, fmt.Errorf("%w: marker_every must be at least 1, got %d", ErrInvalid, c.Track.MarkerEvery))
	}
	if _, err := core.ParseGravityModel(c.Track.Gravity); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: provider base_url is empty", ErrInvalid))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: provider timeout must be positive", ErrInvalid))
	}
	if c.Watch.Tick <= 0 {
		errs = append(errs, fmt.Errorf("%w: watch tick must be positive", ErrInvalid))
	}
	if c.Watch.Duration < 0 {
		errs = append(errs, fmt.Errorf("%w: watch duration must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// CheckSpan reports an ErrInvalid error when samples spaced step apart would
// cover more than MaxSpan. It never multiplies, so huge steps cannot wrap.
func CheckSpan(step time.Duration, samples int) error {
	if step <= 0 || samples <= 1 {
		return nil
	}
	if step > MaxSpan/time.Duration(samples-1) {
		return fmt.Errorf("%w: %d samples %s apart span more than %s", ErrInvalid, samples, step, MaxSpan)
	}
	return nil
}

// Gravity returns the validated gravity model.
func (c Config) Gravity() (core.GravityModel, error) {
	return core.ParseGravityModel(c.Track.Gravity)
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %w", ErrInvalid, EnvPrefix, key, v, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %w", ErrInvalid, EnvPrefix, key, v, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %w", ErrInvalid, EnvPrefix, key, v, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %w", ErrInvalid, EnvPrefix, key, v, err))
			return
		}
		*dst = d
	}
}
