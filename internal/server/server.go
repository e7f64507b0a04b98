// Package server exposes ground tracks over HTTP for serve mode.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/internal/tracker"
)

const (
	tracerName = "github.com/signalsfoundry/satloc/internal/server"

	routeTrack  = "/track/{catnr}"
	routeHealth = "/healthz"

	requestIDHeader = "X-Request-ID"
)

// Server renders tracks on request.
type Server struct {
	tracker  *tracker.Tracker
	renderer *render.Renderer
	defaults config.TrackConfig
	log      logging.Logger
	metrics  *observability.TrackCollector
	now      func() time.Time

	shutdownTimeout time.Duration
}

// Option customises a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records request metrics on m and serves it on the metrics
// listener.
func WithMetrics(m *observability.TrackCollector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces the wall clock used when a request has no start time.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New returns a Server. defaults supplies step, samples, marker interval and
// gravity model for requests that do not override them.
func New(tr *tracker.Tracker, renderer *render.Renderer, defaults config.TrackConfig, opts ...Option) *Server {
	s := &Server{
		tracker:         tr,
		renderer:        renderer,
		defaults:        defaults,
		log:             logging.Noop(),
		now:             time.Now,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API routes wrapped in request-scoped logging and
// metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+routeTrack, s.metrics.Middleware(routeTrack, http.HandlerFunc(s.handleTrack)))
	mux.Handle("GET "+routeHealth, s.metrics.Middleware(routeHealth, http.HandlerFunc(s.handleHealth)))
	return s.requestContext(mux)
}

// MetricsHandler serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Serve runs the API on api and, when metrics is non-nil, Prometheus on
// metrics, until ctx is cancelled. It then drains both servers.
func (s *Server) Serve(ctx context.Context, api, metrics net.Listener) error {
	servers := []*http.Server{{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}}
	listeners := []net.Listener{api}
	if metrics != nil {
		servers = append(servers, &http.Server{Handler: s.MetricsHandler(), ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		s.log.Info(ctx, "listening", logging.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info(ctx, "shutting down HTTP servers")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// ListenAndServe binds addr and metricsAddr (skipped when empty) and calls
// Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr, metricsAddr string) error {
	api, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	var metrics net.Listener
	if metricsAddr != "" {
		metrics, err = net.Listen("tcp", metricsAddr)
		if err != nil {
			api.Close()
			return fmt.Errorf("listen %s: %w", metricsAddr, err)
		}
	}
	return s.Serve(ctx, api, metrics)
}

// requestContext attaches a request ID, a request logger and a server span
// to every request. An inbound X-Request-ID is honoured.
func (s *Server) requestContext(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, _ = logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))

		ctx, span := tracer.Start(ctx, "HTTP "+r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.RequestURI()),
			attribute.String("request_id", logging.RequestIDFromContext(ctx)),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, s.log)

	req, format, opts, err := s.parseTrackRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	track, err := s.tracker.Track(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(ctx, &buf, format, track, opts); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn(ctx, "write response failed", logging.Err(err))
	}
}

func (s *Server) parseTrackRequest(r *http.Request) (tracker.Request, render.Format, render.Options, error) {
	var (
		req  tracker.Request
		opts render.Options
	)

	catnr, err := celestrak.ParseCatalogNumber(r.PathValue("catnr"))
	if err != nil {
		return req, "", opts, err
	}
	q := r.URL.Query()

	format := render.FormatHTML
	if v := q.Get("format"); v != "" {
		if format, err = render.ParseFormat(v); err != nil {
			return req, "", opts, err
		}
	}

	start, err := config.ParseStart(q.Get("start"), s.now())
	if err != nil {
		return req, "", opts, err
	}

	step := s.defaults.Step
	if v := q.Get("step"); v != "" {
		if step, err = time.ParseDuration(v); err != nil {
			return req, "", opts, fmt.Errorf("%w: step %q: %w", ErrBadRequest, v, err)
		}
	}

	samples := s.defaults.Samples
	if v := q.Get("samples"); v != "" {
		if samples, err = strconv.Atoi(v); err != nil {
			return req, "", opts, fmt.Errorf("%w: samples %q", ErrBadRequest, v)
		}
	}
	if samples < 1 || samples > config.MaxSamples {
		return req, "", opts, fmt.Errorf("%w: samples %d out of range 1..%d", ErrBadRequest, samples, config.MaxSamples)
	}
	if err := config.CheckSpan(step, samples); err != nil {
		return req, "", opts, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	gravity, err := core.ParseGravityModel(s.defaults.Gravity)
	if err != nil {
		return req, "", opts, err
	}

	req = tracker.Request{
		CatalogNumber: catnr,
		Start:         start,
		Step:          step,
		Samples:       samples,
		Gravity:       gravity,
	}
	opts = render.Options{Title: q.Get("title"), MarkerEvery: s.defaults.MarkerEvery}
	return req, format, opts, nil
}
