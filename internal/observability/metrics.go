package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded on satloc_fetch_total.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeUpstream = "upstream_error"
	OutcomeInvalid  = "invalid"
	OutcomeNetwork  = "network_error"
)

// TrackCollector bundles Prometheus metrics for the fetch → propagate →
// render pipeline and the HTTP surface of serve mode.
type TrackCollector struct {
	gatherer prometheus.Gatherer

	FetchTotal       *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	SamplesTotal     prometheus.Counter
	PropagateSeconds prometheus.Histogram
	RendersTotal     *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDurations    *prometheus.HistogramVec
}

// NewTrackCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice on the same registry
// returns the existing collectors.
func NewTrackCollector(reg prometheus.Registerer) (*TrackCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fetchTotal, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satloc_fetch_total",
		Help: "Element set fetches from the tracking-data provider, labeled by outcome.",
	}, []string{"outcome"}), "satloc_fetch_total")
	if err != nil {
		return nil, err
	}

	fetchDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satloc_fetch_duration_seconds",
		Help:    "Latency of element set fetches in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "satloc_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satloc_samples_propagated_total",
		Help: "Ground track samples propagated with SGP4.",
	}), "satloc_samples_propagated_total")
	if err != nil {
		return nil, err
	}

	propagate, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satloc_propagation_duration_seconds",
		Help:    "Time spent propagating one ground track.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "satloc_propagation_duration_seconds")
	if err != nil {
		return nil, err
	}

	renders, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satloc_renders_total",
		Help: "Rendered ground track maps, labeled by output format.",
	}, []string{"format"}), "satloc_renders_total")
	if err != nil {
		return nil, err
	}

	cache, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satloc_cache_lookups_total",
		Help: "Element set cache lookups, labeled by result (hit, miss, stale).",
	}, []string{"result"}), "satloc_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satloc_http_requests_total",
		Help: "HTTP requests handled in serve mode, labeled by route and status code.",
	}, []string{"route", "code"}), "satloc_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "satloc_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"}), "satloc_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &TrackCollector{
		gatherer:         gatherer,
		FetchTotal:       fetchTotal,
		FetchDuration:    fetchDuration,
		SamplesTotal:     samples,
		PropagateSeconds: propagate,
		RendersTotal:     renders,
		CacheLookups:     cache,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TrackCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveFetch records one provider fetch.
func (c *TrackCollector) ObserveFetch(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.FetchTotal != nil {
		c.FetchTotal.WithLabelValues(outcome).Inc()
	}
	if c.FetchDuration != nil {
		c.FetchDuration.Observe(d.Seconds())
	}
}

// ObservePropagation records a propagated track of n samples.
func (c *TrackCollector) ObservePropagation(n int, d time.Duration) {
	if c == nil {
		return
	}
	if c.SamplesTotal != nil {
		c.SamplesTotal.Add(float64(n))
	}
	if c.PropagateSeconds != nil {
		c.PropagateSeconds.Observe(d.Seconds())
	}
}

// IncRender records a rendered map.
func (c *TrackCollector) IncRender(format string) {
	if c == nil || c.RendersTotal == nil {
		return
	}
	c.RendersTotal.WithLabelValues(format).Inc()
}

// IncCacheLookup records an element set cache lookup result.
func (c *TrackCollector) IncCacheLookup(result string) {
	if c == nil || c.CacheLookups == nil {
		return
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// Middleware records request counts and durations for h under route.
func (c *TrackCollector) Middleware(route string, h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(sw, r)

		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TrackCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
