package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/internal/tracker"
	"github.com/signalsfoundry/satloc/timectrl"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		tick     time.Duration
		duration time.Duration
		date     string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "watch <catalog-number>",
		Short: "Print the sub-satellite point on every tick",
		Long: `Propagates one element set continuously and prints the sub-satellite point
(UTC time, latitude, longitude, altitude) on every tick.

In realtime mode ticks follow the wall clock; a --duration of 0 runs until
interrupted. In accelerated mode the window starting at --date is replayed
as fast as possible and --duration is required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("tick") {
				a.cfg.Watch.Tick = tick
			}
			if cmd.Flags().Changed("duration") {
				a.cfg.Watch.Duration = duration
			}
			return a.runWatch(cmd, args[0], date, mode)
		},
	}
	def := config.Default().Watch
	cmd.Flags().DurationVar(&tick, "tick", def.Tick, "time between positions")
	cmd.Flags().DurationVar(&duration, "duration", def.Duration, "how long to watch; 0 runs until interrupted")
	cmd.Flags().StringVarP(&date, "date", "d", "", "start time as YYYYMMDDTHHMMSS or RFC3339 (UTC); defaults to now")
	cmd.Flags().StringVar(&mode, "mode", timectrl.RealTime.String(), "realtime or accelerated")
	return cmd
}

func parseMode(s string) (timectrl.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case timectrl.RealTime.String():
		return timectrl.RealTime, nil
	case timectrl.Accelerated.String():
		return timectrl.Accelerated, nil
	default:
		return 0, fmt.Errorf("%w: unknown watch mode %q", config.ErrInvalid, s)
	}
}

func (a *app) runWatch(cmd *cobra.Command, arg, date, modeName string) error {
	ctx, log := logging.WithRequestLogger(cmd.Context(), a.log.With(logging.String("command", "watch")))

	catnr, err := celestrak.ParseCatalogNumber(arg)
	if err != nil {
		return err
	}
	mode, err := parseMode(modeName)
	if err != nil {
		return err
	}
	if mode == timectrl.Accelerated && a.cfg.Watch.Duration <= 0 {
		return fmt.Errorf("%w: accelerated watch needs a positive --duration", config.ErrInvalid)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	start, err := config.ParseStart(date, time.Now())
	if err != nil {
		return err
	}
	gravity, err := a.cfg.Gravity()
	if err != nil {
		return err
	}

	src, err := a.source()
	if err != nil {
		return err
	}
	prop, err := tracker.New(src, a.log, a.metrics).Propagator(ctx, catnr, gravity)
	if err != nil {
		return err
	}

	es := prop.Elements()
	log.Info(ctx, "watching",
		logging.String("name", es.DisplayName()),
		logging.Time("epoch", es.Epoch),
		logging.String("mode", mode.String()),
		logging.Duration("tick", a.cfg.Watch.Tick),
	)
	fmt.Fprintf(a.stdout, "# %s (NORAD %d)\n", es.DisplayName(), es.CatalogNumber)

	var firstErr error
	tc := timectrl.NewTimeController(start, a.cfg.Watch.Tick, mode)
	tc.AddListener(func(t time.Time) {
		s, err := prop.Position(t)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Warn(ctx, "propagation failed", logging.Time("at", t), logging.Err(err))
			return
		}
		fmt.Fprintf(a.stdout, "%s UTC  lat %8.4f  lon %9.4f  alt %7.1f km\n",
			s.Time.Format(render.TimeLayout), s.Latitude, s.Longitude, s.AltitudeKm)
	})

	<-tc.Start(ctx, a.cfg.Watch.Duration)
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		log.Info(ctx, "watch interrupted")
	}
	return nil
}
