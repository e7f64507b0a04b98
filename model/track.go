package model

import (
	"strconv"
	"time"
)

// ElementSet is a two-line element set for a single catalogued object.
type ElementSet struct {
	CatalogNumber uint32
	Name          string // optional title line; empty for bare two-line sets
	Line1         string
	Line2         string

	// Epoch is the reference time of the mean elements.
	Epoch time.Time
	// FetchedAt is when the set was retrieved from the provider. It is zero
	// for sets loaded from disk.
	FetchedAt time.Time
}

// DisplayName returns Name if present, otherwise the catalog number.
func (e ElementSet) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return "NORAD " + strconv.FormatUint(uint64(e.CatalogNumber), 10)
}

// Sample is the sub-satellite point at one instant.
type Sample struct {
	Time       time.Time
	Latitude   float64 // geodetic degrees, [-90, 90]
	Longitude  float64 // degrees, [-180, 180)
	AltitudeKm float64 // height above the WGS-84 ellipsoid
}

// Segment is a run of consecutive samples that never jumps across the
// antimeridian.
type Segment []Sample

// GroundTrack is a propagated sequence of samples spaced Step apart.
type GroundTrack struct {
	Elements ElementSet
	Start    time.Time
	Step     time.Duration
	Samples  []Sample
}

// End returns the time of the last sample, or Start when the track is empty.
func (g *GroundTrack) End() time.Time {
	if g == nil {
		return time.Time{}
	}
	if len(g.Samples) == 0 {
		return g.Start
	}
	return g.Samples[len(g.Samples)-1].Time
}

// Duration is the time spanned by the samples.
func (g *GroundTrack) Duration() time.Duration {
	if g == nil || len(g.Samples) == 0 {
		return 0
	}
	return g.End().Sub(g.Samples[0].Time)
}
