package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/satloc/model"
	"github.com/signalsfoundry/satloc/timectrl"
)

// ISS element set from 2025-05-18; samples below stay within a day of epoch.
var issElements = model.ElementSet{
	CatalogNumber: 25544,
	Name:          "ISS (ZARYA)",
	Line1:         "1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994",
	Line2:         "2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533",
	Epoch:         time.Date(2025, time.May, 18, 8, 53, 29, 0, time.UTC),
}

var trackStart = time.Date(2025, time.May, 18, 9, 0, 0, 0, time.UTC)

func newISSPropagator(t *testing.T) *Propagator {
	t.Helper()
	p, err := NewPropagator(issElements, GravityWGS72)
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}
	return p
}

// We don't assert exact orbital values (those belong to go-satellite); we
// check the projection lands where a 51.6° LEO orbit can be.
func TestPositionWithinOrbitEnvelope(t *testing.T) {
	p := newISSPropagator(t)

	for i := 0; i < 12; i++ {
		at := trackStart.Add(time.Duration(i) * 10 * time.Minute)
		s, err := p.Position(at)
		if err != nil {
			t.Fatalf("Position(%v): %v", at, err)
		}
		if math.Abs(s.Latitude) > 52.5 {
			t.Fatalf("latitude %v exceeds inclination envelope", s.Latitude)
		}
		if s.Longitude < -180 || s.Longitude >= 180 {
			t.Fatalf("longitude %v outside [-180, 180)", s.Longitude)
		}
		if s.AltitudeKm < 350 || s.AltitudeKm > 480 {
			t.Fatalf("altitude %v km outside ISS band", s.AltitudeKm)
		}
	}
}

func TestPositionTruncatesToWholeSeconds(t *testing.T) {
	p := newISSPropagator(t)

	s, err := p.Position(trackStart.Add(750 * time.Millisecond))
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if !s.Time.Equal(trackStart) {
		t.Fatalf("sample time = %v, want %v", s.Time, trackStart)
	}
}

func TestPositionChangesOverTime(t *testing.T) {
	p := newISSPropagator(t)

	first, err := p.Position(trackStart)
	if err != nil {
		t.Fatalf("Position t1: %v", err)
	}
	second, err := p.Position(trackStart.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("Position t2: %v", err)
	}
	if first.Latitude == second.Latitude && first.Longitude == second.Longitude {
		t.Fatalf("expected sub-satellite point to move, got %+v at both times", first)
	}
}

func TestPositionDecayedFarFromEpoch(t *testing.T) {
	p := newISSPropagator(t)

	// Ten years of drag on the ISS elements take the orbit below the surface.
	at := trackStart.AddDate(10, 0, 0)
	if _, err := p.Position(at); !errors.Is(err, ErrDecayed) {
		t.Fatalf("Position(%v) error = %v, want ErrDecayed", at, err)
	}

	_, err := p.Track(context.Background(), timectrl.Schedule{Start: at, Step: time.Minute, Count: 3})
	if !errors.Is(err, ErrDecayed) {
		t.Fatalf("Track error = %v, want ErrDecayed", err)
	}
}

func TestTrackDefaultWindow(t *testing.T) {
	p := newISSPropagator(t)

	track, err := p.Track(context.Background(), timectrl.Schedule{
		Start: trackStart,
		Step:  DefaultStep,
		Count: DefaultSamples,
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(track.Samples) != DefaultSamples {
		t.Fatalf("len(Samples) = %d, want %d", len(track.Samples), DefaultSamples)
	}
	if !track.Start.Equal(trackStart) {
		t.Fatalf("Start = %v, want %v", track.Start, trackStart)
	}
	if got, want := track.Duration(), 179*DefaultStep; got != want {
		t.Fatalf("Duration = %v, want %v", got, want)
	}
	for i := 1; i < len(track.Samples); i++ {
		if d := track.Samples[i].Time.Sub(track.Samples[i-1].Time); d != DefaultStep {
			t.Fatalf("sample %d spacing = %v, want %v", i, d, DefaultStep)
		}
	}
	if track.Elements.CatalogNumber != 25544 {
		t.Fatalf("track elements = %+v", track.Elements)
	}

	// 1.5 hours is just under one ISS revolution, so the track wraps the
	// antimeridian at most once.
	if n := len(SplitAntimeridian(track.Samples)); n < 1 || n > 2 {
		t.Fatalf("segments = %d, want 1 or 2", n)
	}
}

func TestTrackRejectsInvalidSchedule(t *testing.T) {
	p := newISSPropagator(t)
	_, err := p.Track(context.Background(), timectrl.Schedule{Start: trackStart, Step: 0, Count: 10})
	if !errors.Is(err, timectrl.ErrInvalidSchedule) {
		t.Fatalf("Track error = %v, want ErrInvalidSchedule", err)
	}
}

func TestTrackHonoursCancellation(t *testing.T) {
	p := newISSPropagator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Track(ctx, timectrl.Schedule{Start: trackStart, Step: time.Second, Count: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Track error = %v, want context.Canceled", err)
	}
}

func TestGravityModelsAgreeClosely(t *testing.T) {
	wgs84, err := NewPropagator(issElements, GravityWGS84)
	if err != nil {
		t.Fatalf("NewPropagator wgs84: %v", err)
	}
	a, err := newISSPropagator(t).Position(trackStart)
	if err != nil {
		t.Fatalf("Position wgs72: %v", err)
	}
	b, err := wgs84.Position(trackStart)
	if err != nil {
		t.Fatalf("Position wgs84: %v", err)
	}
	if math.Abs(a.Latitude-b.Latitude) > 0.2 || math.Abs(a.Longitude-b.Longitude) > 0.2 {
		t.Fatalf("gravity models diverge: %+v vs %+v", a, b)
	}
}

func TestNewPropagatorErrors(t *testing.T) {
	if _, err := NewPropagator(model.ElementSet{}, GravityWGS72); !errors.Is(err, ErrNoElements) {
		t.Fatalf("empty set error = %v, want ErrNoElements", err)
	}
	if _, err := NewPropagator(issElements, "egm96"); !errors.Is(err, ErrUnknownGravityModel) {
		t.Fatalf("gravity error = %v, want ErrUnknownGravityModel", err)
	}
}

func TestParseGravityModel(t *testing.T) {
	for in, want := range map[string]GravityModel{
		"":        GravityWGS72,
		"wgs72":   GravityWGS72,
		" WGS84 ": GravityWGS84,
	} {
		got, err := ParseGravityModel(in)
		if err != nil || got != want {
			t.Errorf("ParseGravityModel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestSGP4LinesBlanksAlpha5(t *testing.T) {
	es := issElements
	es.Line1 = es.Line1[:2] + "A5544" + es.Line1[7:]
	es.Line2 = es.Line2[:2] + "A5544" + es.Line2[7:]

	l1, l2 := sgp4Lines(es)
	if l1[2:7] != "00000" || l2[2:7] != "00000" {
		t.Fatalf("alpha-5 catalog not blanked: %q / %q", l1[:10], l2[:10])
	}
	if l1[7:] != es.Line1[7:] || l2[7:] != es.Line2[7:] {
		t.Fatalf("element fields altered")
	}

	l1, l2 = sgp4Lines(issElements)
	if l1 != issElements.Line1 || l2 != issElements.Line2 {
		t.Fatalf("numeric catalog lines should pass through unchanged")
	}
}
