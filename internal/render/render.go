// Package render draws a propagated ground track as an interactive HTML map,
// a static SVG, GeoJSON or CSV.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/model"
)

const tracerName = "github.com/signalsfoundry/satloc/internal/render"

// TimeLayout is used for every time label.
const TimeLayout = "2006-01-02 15:04:05"

// Format names an output encoding.
type Format string

const (
	FormatHTML    Format = "html"
	FormatSVG     Format = "svg"
	FormatGeoJSON Format = "geojson"
	FormatCSV     Format = "csv"
)

// ErrUnknownFormat is returned for output names render cannot produce.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat accepts a format name or a file extension, with or without the
// leading dot. "json" is an alias for geojson.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "html", "htm":
		return FormatHTML, nil
	case "svg":
		return FormatSVG, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// FormatFromPath picks the format from the extension of path. A path without
// an extension renders HTML.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return FormatHTML, nil
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatSVG:
		return "image/svg+xml"
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Options tune what is drawn.
type Options struct {
	Title string
	// MarkerEvery selects every n-th sample as a labelled marker. Zero means
	// core.DefaultMarkerEvery.
	MarkerEvery int
}

// document is the format-independent view of a track that every encoder
// draws from.
type document struct {
	Title       string
	Track       *model.GroundTrack
	Segments    []model.Segment
	Markers     []model.Sample
	Summary     core.Summary
	MarkerEvery int
}

func newDocument(track *model.GroundTrack, opts Options) document {
	every := opts.MarkerEvery
	if every <= 0 {
		every = core.DefaultMarkerEvery
	}
	title := opts.Title
	if title == "" {
		title = track.Elements.DisplayName()
	}
	return document{
		Title:       title,
		Track:       track,
		Segments:    core.SplitAntimeridian(track.Samples),
		Markers:     core.Decimate(track.Samples, every),
		Summary:     core.Summarize(track),
		MarkerEvery: every,
	}
}

// Start is the first sample. Callers check for an empty track first.
func (d document) Start() model.Sample { return d.Track.Samples[0] }

// MarkerInterval is the time between labelled markers.
func (d document) MarkerInterval() time.Duration {
	return d.Track.Step * time.Duration(d.MarkerEvery)
}

// Renderer encodes tracks and records what it produced.
type Renderer struct {
	log     logging.Logger
	metrics *observability.TrackCollector
}

// NewRenderer returns a Renderer. Both arguments may be nil.
func NewRenderer(log logging.Logger, metrics *observability.TrackCollector) *Renderer {
	if log == nil {
		log = logging.Noop()
	}
	return &Renderer{log: log, metrics: metrics}
}

// Render writes track to w in format f.
func (r *Renderer) Render(ctx context.Context, w io.Writer, f Format, track *model.GroundTrack, opts Options) error {
	if track == nil || len(track.Samples) == 0 {
		return errors.New("render: empty ground track")
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "render.Render")
	defer span.End()
	span.SetAttributes(
		attribute.String("render.format", string(f)),
		attribute.Int("render.samples", len(track.Samples)),
	)

	doc := newDocument(track, opts)
	var err error
	switch f {
	case FormatHTML:
		err = writeHTML(w, doc)
	case FormatSVG:
		err = writeSVG(w, doc)
	case FormatGeoJSON:
		err = writeGeoJSON(w, doc)
	case FormatCSV:
		err = writeCSV(w, doc)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return err
	}

	r.metrics.IncRender(string(f))
	logging.FromContext(ctx, r.log).Debug(ctx, "rendered ground track",
		logging.String("format", string(f)),
		logging.Int("segments", len(doc.Segments)),
		logging.Int("markers", len(doc.Markers)),
	)
	return nil
}

// WriteFile renders track to path, choosing the format from its extension.
// The file is only replaced once rendering succeeded.
func (r *Renderer) WriteFile(ctx context.Context, path string, track *model.GroundTrack, opts Options) (Format, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Render(ctx, tmp, f, track, opts); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return f, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }
