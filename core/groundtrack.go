package core

import (
	"math"
	"time"

	geo "github.com/kellydunn/golang-geo"

	"github.com/signalsfoundry/satloc/model"
)

// Defaults for a one-shot track: 180 samples 30 seconds apart (1.5 hours),
// with a labelled marker every 20 samples (10 minutes).
const (
	DefaultSamples     = 180
	DefaultStep        = 30 * time.Second
	DefaultMarkerEvery = 20
)

// SplitAntimeridian breaks samples into segments wherever the longitude jumps
// by more than 180° between consecutive samples, so that a path drawn on a
// flat map does not streak across the whole frame. Concatenating the
// segments yields the input.
func SplitAntimeridian(samples []model.Sample) []model.Segment {
	var (
		segments []model.Segment
		current  model.Segment
	)
	for _, s := range samples {
		if len(current) > 0 && math.Abs(s.Longitude-current[len(current)-1].Longitude) > 180 {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, s)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}

// Decimate keeps the samples whose index is a multiple of every. An every of
// one or less returns a copy of the input.
func Decimate(samples []model.Sample, every int) []model.Sample {
	if every <= 1 {
		return append([]model.Sample(nil), samples...)
	}
	out := make([]model.Sample, 0, (len(samples)+every-1)/every)
	for i := 0; i < len(samples); i += every {
		out = append(out, samples[i])
	}
	return out
}

// Summary describes a ground track at a glance.
type Summary struct {
	Samples         int
	Segments        int
	Duration        time.Duration
	GroundDistKm    float64 // great-circle distance along the track
	MeanGroundSpeed float64 // km/s
	MinAltitudeKm   float64
	MaxAltitudeKm   float64
}

// Summarize computes track statistics. Ground distance is measured between
// consecutive sub-satellite points on a spherical Earth.
func Summarize(track *model.GroundTrack) Summary {
	if track == nil || len(track.Samples) == 0 {
		return Summary{}
	}

	sum := Summary{
		Samples:       len(track.Samples),
		Segments:      len(SplitAntimeridian(track.Samples)),
		Duration:      track.Duration(),
		MinAltitudeKm: math.Inf(1),
		MaxAltitudeKm: math.Inf(-1),
	}

	var prev *geo.Point
	for _, s := range track.Samples {
		sum.MinAltitudeKm = math.Min(sum.MinAltitudeKm, s.AltitudeKm)
		sum.MaxAltitudeKm = math.Max(sum.MaxAltitudeKm, s.AltitudeKm)

		pt := geo.NewPoint(s.Latitude, s.Longitude)
		if prev != nil {
			sum.GroundDistKm += prev.GreatCircleDistance(pt)
		}
		prev = pt
	}
	if secs := sum.Duration.Seconds(); secs > 0 {
		sum.MeanGroundSpeed = sum.GroundDistKm / secs
	}
	return sum
}
