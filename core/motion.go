package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/satloc/model"
	"github.com/signalsfoundry/satloc/timectrl"
)

const tracerName = "github.com/signalsfoundry/satloc/core"

// GravityModel selects the geopotential constants used by SGP4.
type GravityModel string

const (
	GravityWGS72 GravityModel = "wgs72"
	GravityWGS84 GravityModel = "wgs84"
)

var (
	// ErrUnknownGravityModel is returned for gravity model names other than
	// wgs72 and wgs84.
	ErrUnknownGravityModel = errors.New("unknown gravity model")
	// ErrNoElements is returned when a propagator is built from an empty set.
	ErrNoElements = errors.New("element set has no lines")
	// ErrDecayed is returned when SGP4 yields no usable position, typically
	// because the object has re-entered or the elements are far outside the
	// model's validity.
	ErrDecayed = errors.New("no valid position; object may have decayed")
)

// ParseGravityModel accepts "wgs72", "wgs84" or "" (wgs72).
func ParseGravityModel(s string) (GravityModel, error) {
	switch GravityModel(strings.ToLower(strings.TrimSpace(s))) {
	case "", GravityWGS72:
		return GravityWGS72, nil
	case GravityWGS84:
		return GravityWGS84, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGravityModel, s)
	}
}

// Propagator computes sub-satellite points for one element set using SGP4.
type Propagator struct {
	elements model.ElementSet
	gravity  GravityModel
	sat      satellite.Satellite
}

// NewPropagator initialises SGP4 for es. The element set must already have
// been validated by the elements package.
func NewPropagator(es model.ElementSet, gravity GravityModel) (*Propagator, error) {
	if es.Line1 == "" || es.Line2 == "" {
		return nil, ErrNoElements
	}
	gravity, err := ParseGravityModel(string(gravity))
	if err != nil {
		return nil, err
	}

	line1, line2 := sgp4Lines(es)
	var sat satellite.Satellite
	switch gravity {
	case GravityWGS84:
		sat = satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	default:
		sat = satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	}
	return &Propagator{elements: es, gravity: gravity, sat: sat}, nil
}

// Elements returns the element set the propagator was built from.
func (p *Propagator) Elements() model.ElementSet { return p.elements }

// Gravity returns the gravity model in use.
func (p *Propagator) Gravity() GravityModel { return p.gravity }

// Position propagates to t and projects the result onto the WGS-84
// ellipsoid. SGP4 is evaluated at whole-second resolution; the returned
// sample carries the instant actually evaluated.
func (p *Propagator) Position(t time.Time) (model.Sample, error) {
	t = t.UTC().Truncate(time.Second)
	year, month, day := t.Date()
	hour, minute, second := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, minute, second)
	eci := Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}
	if !eci.IsFinite() || eci.Norm() == 0 {
		return model.Sample{}, fmt.Errorf("%w (at %s)", ErrDecayed, t.Format(time.RFC3339))
	}
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, minute, second))

	lat, lon, alt := SubSatellitePoint(eci, gmst)
	if math.IsNaN(lat) || math.IsNaN(alt) || alt < 0 {
		return model.Sample{}, fmt.Errorf("%w (at %s, altitude %.1f km)", ErrDecayed, t.Format(time.RFC3339), alt)
	}

	return model.Sample{
		Time:       t,
		Latitude:   lat,
		Longitude:  lon,
		AltitudeKm: alt,
	}, nil
}

// Track propagates one sample per schedule instant.
func (p *Propagator) Track(ctx context.Context, sched timectrl.Schedule) (*model.GroundTrack, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "core.Track")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("satellite.catalog_number", int64(p.elements.CatalogNumber)),
		attribute.String("track.start", sched.Start.UTC().Format(time.RFC3339)),
		attribute.String("track.step", sched.Step.String()),
		attribute.Int("track.samples", sched.Count),
		attribute.String("sgp4.gravity", string(p.gravity)),
	)

	samples := make([]model.Sample, 0, sched.Count)
	for i := 0; i < sched.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := p.Position(sched.At(i))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "propagation failed")
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		samples = append(samples, s)
	}

	return &model.GroundTrack{
		Elements: p.elements,
		Start:    samples[0].Time,
		Step:     sched.Step,
		Samples:  samples,
	}, nil
}

// sgp4Lines prepares the element lines for go-satellite, which only parses
// numeric catalog numbers. Alpha-5 catalog fields are blanked to zeros; the
// propagator never uses the catalog number.
func sgp4Lines(es model.ElementSet) (string, string) {
	line1, line2 := es.Line1, es.Line2
	if len(line1) > 7 && len(line2) > 7 && (isAlpha5(line1[2:7]) || isAlpha5(line2[2:7])) {
		line1 = line1[:2] + "00000" + line1[7:]
		line2 = line2[:2] + "00000" + line2[7:]
	}
	return line1, line2
}

func isAlpha5(field string) bool {
	return field != "" && field[0] >= 'A' && field[0] <= 'Z'
}
