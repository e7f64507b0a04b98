// Package celestrak fetches general perturbations element sets from the
// public CelesTrak GP API.
package celestrak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/satloc/elements"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/model"
)

const (
	tracerName = "github.com/signalsfoundry/satloc/internal/celestrak"

	// DefaultBaseURL is the public CelesTrak endpoint.
	DefaultBaseURL = "https://celestrak.org"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 20 * time.Second
	// MaxCatalogNumber is the largest catalog number the GP API accepts.
	MaxCatalogNumber = 999999999

	gpPath       = "/NORAD/elements/gp.php"
	noDataMarker = "No GP data found"
	maxBodyBytes = 1 << 20
	userAgent    = "satloc/1 (+https://celestrak.org)"
)

var (
	// ErrInvalidCatalogNumber is returned before any network call for catalog
	// numbers outside 1..MaxCatalogNumber.
	ErrInvalidCatalogNumber = errors.New("invalid catalog number")
	// ErrNotFound is returned when the provider has no element set for the
	// requested object.
	ErrNotFound = errors.New("no element set for catalog number")
	// ErrUpstream wraps non-200 provider responses.
	ErrUpstream = errors.New("tracking-data provider error")
)

// StatusError carries the HTTP status of a failed provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", ErrUpstream, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", ErrUpstream, e.StatusCode, e.Body)
}

// Unwrap makes errors.Is(err, ErrUpstream) hold.
func (e *StatusError) Unwrap() error { return ErrUpstream }

// Client fetches element sets by catalog number.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logging.Logger
	metrics    *observability.TrackCollector
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL overrides the provider base URL (scheme and host).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.TrackCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a Client with the public endpoint by default.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateCatalogNumber rejects numbers the provider cannot serve.
func ValidateCatalogNumber(n uint64) error {
	if n == 0 || n > MaxCatalogNumber {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidCatalogNumber, n, MaxCatalogNumber)
	}
	return nil
}

// ParseCatalogNumber parses and validates a catalog number argument.
func ParseCatalogNumber(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCatalogNumber, s)
	}
	if err := ValidateCatalogNumber(n); err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// Fetch retrieves the current element set for catalogNumber.
func (c *Client) Fetch(ctx context.Context, catalogNumber uint32) (model.ElementSet, error) {
	if err := ValidateCatalogNumber(uint64(catalogNumber)); err != nil {
		c.metrics.ObserveFetch(observability.OutcomeInvalid, 0)
		return model.ElementSet{}, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "celestrak.Fetch")
	defer span.End()
	span.SetAttributes(attribute.Int64("satellite.catalog_number", int64(catalogNumber)))

	log := logging.FromContext(ctx, c.log).With(logging.Uint32("catalog_number", catalogNumber))
	start := time.Now()

	es, outcome, err := c.fetch(ctx, catalogNumber)
	elapsed := time.Since(start)
	c.metrics.ObserveFetch(outcome, elapsed)
	span.SetAttributes(attribute.String("fetch.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn(ctx, "element set fetch failed",
			logging.String("outcome", outcome),
			logging.Duration("elapsed", elapsed),
			logging.Err(err),
		)
		return model.ElementSet{}, err
	}

	log.Debug(ctx, "fetched element set",
		logging.String("name", es.Name),
		logging.Time("epoch", es.Epoch),
		logging.Duration("elapsed", elapsed),
	)
	return es, nil
}

func (c *Client) fetch(ctx context.Context, catalogNumber uint32) (model.ElementSet, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(catalogNumber), nil)
	if err != nil {
		return model.ElementSet{}, observability.OutcomeInvalid, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.ElementSet{}, observability.OutcomeNetwork, fmt.Errorf("fetch catalog number %d: %w", catalogNumber, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.ElementSet{}, observability.OutcomeNetwork, fmt.Errorf("read response for %d: %w", catalogNumber, err)
	}
	text := string(body)

	switch {
	case resp.StatusCode == http.StatusNotFound || strings.Contains(text, noDataMarker):
		return model.ElementSet{}, observability.OutcomeNotFound, fmt.Errorf("%w: %d", ErrNotFound, catalogNumber)
	case resp.StatusCode != http.StatusOK:
		return model.ElementSet{}, observability.OutcomeUpstream, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(text), 200),
		}
	}

	sets, err := elements.Parse(text)
	if errors.Is(err, elements.ErrEmpty) {
		return model.ElementSet{}, observability.OutcomeNotFound, fmt.Errorf("%w: %d", ErrNotFound, catalogNumber)
	}
	if err != nil {
		return model.ElementSet{}, observability.OutcomeInvalid, fmt.Errorf("parse element set for %d: %w", catalogNumber, err)
	}

	for _, es := range sets {
		if es.CatalogNumber == catalogNumber {
			es.FetchedAt = time.Now().UTC()
			return es, observability.OutcomeOK, nil
		}
	}
	return model.ElementSet{}, observability.OutcomeNotFound, fmt.Errorf("%w: %d (response held %d other sets)", ErrNotFound, catalogNumber, len(sets))
}

func (c *Client) endpoint(catalogNumber uint32) string {
	q := url.Values{}
	q.Set("CATNR", strconv.FormatUint(uint64(catalogNumber), 10))
	q.Set("FORMAT", "TLE")
	return c.baseURL + gpPath + "?" + q.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
