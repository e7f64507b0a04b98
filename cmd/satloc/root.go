package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/internal/tracker"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	var (
		date    string
		outPath string
		title   string
	)

	cmd := &cobra.Command{
		Use:   "satloc <catalog-number>",
		Short: "Plot a satellite's ground track from its NORAD catalog number",
		Long: `satloc fetches the current element set for a NORAD catalog number from
CelesTrak, propagates the ground track with SGP4 and writes a map.

By default 180 positions 30 seconds apart (1.5 hours) are plotted, with a
labelled marker every 10 minutes. The output format follows the extension
of --out-path: .html (interactive map), .svg, .geojson/.json or .csv.

Example:
  satloc 25544 -d 20250518T090000 -o iss.html -t "ISS"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrack(cmd, args[0], date, outPath, title)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	a.bindPersistentFlags(cmd.PersistentFlags())
	cmd.Flags().StringVarP(&date, "date", "d", "", "track start as YYYYMMDDTHHMMSS or RFC3339 (UTC); defaults to now")
	cmd.Flags().StringVarP(&outPath, "out-path", "o", config.Default().Track.Output, "output file; the extension selects the format")
	cmd.Flags().StringVarP(&title, "title", "t", "", "map title; defaults to the object name")

	cmd.AddCommand(newServeCmd(a), newWatchCmd(a), newVersionCmd())
	return cmd
}

func (a *app) runTrack(cmd *cobra.Command, arg, date, outPath, title string) error {
	ctx, log := logging.WithRequestLogger(cmd.Context(), a.log.With(logging.String("command", "track")))

	catnr, err := celestrak.ParseCatalogNumber(arg)
	if err != nil {
		return err
	}
	start, err := config.ParseStart(date, time.Now())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("out-path") {
		a.cfg.Track.Output = outPath
	}
	if cmd.Flags().Changed("title") {
		a.cfg.Track.Title = title
	}
	// Fail on an unknown extension before touching the network.
	if _, err := render.FormatFromPath(a.cfg.Track.Output); err != nil {
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
	track, err := tracker.New(src, a.log, a.metrics).Track(ctx, tracker.Request{
		CatalogNumber: catnr,
		Start:         start,
		Step:          a.cfg.Track.Step,
		Samples:       a.cfg.Track.Samples,
		Gravity:       gravity,
	})
	if err != nil {
		return err
	}

	renderer := render.NewRenderer(a.log, a.metrics)
	format, err := renderer.WriteFile(ctx, a.cfg.Track.Output, track, render.Options{
		Title:       a.cfg.Track.Title,
		MarkerEvery: a.cfg.Track.MarkerEvery,
	})
	if err != nil {
		return err
	}

	sum := core.Summarize(track)
	log.Info(ctx, "wrote ground track",
		logging.String("path", a.cfg.Track.Output),
		logging.String("format", string(format)),
	)
	fmt.Fprintf(a.stdout, "%s: %d samples from %s UTC, %d segment(s), %.0f km ground distance -> %s\n",
		track.Elements.DisplayName(), sum.Samples, track.Start.Format(render.TimeLayout),
		sum.Segments, sum.GroundDistKm, a.cfg.Track.Output)
	return nil
}
