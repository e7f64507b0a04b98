package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/internal/server"
	"github.com/signalsfoundry/satloc/internal/tracker"
	"github.com/signalsfoundry/satloc/kb"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve ground track maps over HTTP",
		Long: `Starts an HTTP server rendering ground tracks on request:

  GET /track/{catalog-number}?format=html|svg|geojson|csv&start=&step=&samples=&title=
  GET /healthz

Prometheus metrics are served on a separate listener at /metrics. Element
sets fetched from the provider are cached in memory and refreshed after the
cache TTL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Serve.Addr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.Serve.MetricsAddr = metricsAddr
			}
			return a.runServe(cmd)
		},
	}
	def := config.Default().Serve
	cmd.Flags().StringVar(&addr, "addr", def.Addr, "HTTP listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", def.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	var source tracker.Source
	if a.tleFile != "" {
		src, err := a.source()
		if err != nil {
			return err
		}
		source = src
	} else {
		store := kb.NewKnowledgeBase(a.client(),
			kb.WithTTL(a.cfg.Serve.CacheTTL),
			kb.WithLogger(a.log),
			kb.WithMetrics(a.metrics),
		)
		store.Subscribe(func(ev kb.Event) {
			a.log.Debug(ctx, "element cache event",
				logging.String("event", ev.Type.String()),
				logging.Uint32("catalog_number", ev.Elements.CatalogNumber),
				logging.Time("epoch", ev.Elements.Epoch),
			)
		})
		source = store
	}

	srv := server.New(
		tracker.New(source, a.log, a.metrics),
		render.NewRenderer(a.log, a.metrics),
		a.cfg.Track,
		server.WithLogger(a.log),
		server.WithMetrics(a.metrics),
		server.WithShutdownTimeout(a.cfg.Serve.ShutdownTimeout),
	)
	a.log.Info(ctx, "starting satloc server",
		logging.String("addr", a.cfg.Serve.Addr),
		logging.String("metrics_addr", a.cfg.Serve.MetricsAddr),
		logging.Duration("cache_ttl", a.cfg.Serve.CacheTTL),
	)
	return srv.ListenAndServe(ctx, a.cfg.Serve.Addr, a.cfg.Serve.MetricsAddr)
}
