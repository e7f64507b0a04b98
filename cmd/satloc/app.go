package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/internal/tracker"
)

// app carries what every subcommand shares once PersistentPreRunE has run.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	tleFile    string
	flags      trackFlags

	cfg             config.Config
	log             logging.Logger
	metrics         *observability.TrackCollector
	shutdownTracing func(context.Context) error
}

// trackFlags are the persistent flags that shape a track. They are copied
// into the config only when set on the command line.
type trackFlags struct {
	step        time.Duration
	samples     int
	markerEvery int
	gravity     string
	baseURL     string
	logLevel    string
}

func (a *app) bindPersistentFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&a.tleFile, "tle-file", "", "read element sets from this file instead of the provider")
	fs.DurationVar(&a.flags.step, "step", def.Track.Step, "time between samples")
	fs.IntVar(&a.flags.samples, "samples", def.Track.Samples, "number of samples")
	fs.IntVar(&a.flags.markerEvery, "marker-every", def.Track.MarkerEvery, "label every n-th sample")
	fs.StringVar(&a.flags.gravity, "gravity", def.Track.Gravity, "SGP4 gravity model (wgs72 or wgs84)")
	fs.StringVar(&a.flags.baseURL, "base-url", def.Provider.BaseURL, "tracking-data provider base URL")
	fs.StringVar(&a.flags.logLevel, "log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

// setup loads configuration, then applies explicitly set flags, then builds
// the logger, metrics and tracing.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	if fs.Changed("step") {
		cfg.Track.Step = a.flags.step
	}
	if fs.Changed("samples") {
		cfg.Track.Samples = a.flags.samples
	}
	if fs.Changed("marker-every") {
		cfg.Track.MarkerEvery = a.flags.markerEvery
	}
	if fs.Changed("gravity") {
		cfg.Track.Gravity = a.flags.gravity
	}
	if fs.Changed("base-url") {
		cfg.Provider.BaseURL = a.flags.baseURL
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = a.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.Logging()
	logCfg.Output = a.stderr
	a.log = logging.New(logCfg)

	a.metrics, err = observability.NewTrackCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics: %w", err)
	}

	tracingCfg := cfg.Tracing
	if tracingCfg.Writer == nil {
		tracingCfg.Writer = a.stderr
	}
	a.shutdownTracing, err = observability.InitTracing(cmd.Context(), tracingCfg, a.log)
	if err != nil {
		return fmt.Errorf("initialise tracing: %w", err)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) {
	observability.ShutdownWithTimeout(ctx, a.shutdownTracing, a.log)
}

// source returns where element sets come from: the --tle-file if given,
// otherwise the provider.
func (a *app) source() (tracker.Source, error) {
	if a.tleFile != "" {
		src, err := tracker.LoadFile(a.tleFile)
		if err != nil {
			return nil, err
		}
		a.log.Info(context.Background(), "using local element sets",
			logging.String("path", a.tleFile),
			logging.Int("count", len(src)),
		)
		return src, nil
	}
	return tracker.SourceFunc(a.client().Fetch), nil
}

func (a *app) client() *celestrak.Client {
	return celestrak.NewClient(
		celestrak.WithBaseURL(a.cfg.Provider.BaseURL),
		celestrak.WithTimeout(a.cfg.Provider.Timeout),
		celestrak.WithLogger(a.log),
		celestrak.WithMetrics(a.metrics),
	)
}
