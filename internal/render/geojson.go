package render

import (
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// writeGeoJSON emits one MultiLineString feature for the path followed by a
// Point feature per sample. GeoJSON positions are longitude first.
func writeGeoJSON(w io.Writer, doc document) error {
	fc := geojson.NewFeatureCollection()

	path := make(orb.MultiLineString, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		if len(seg) < 2 {
			continue
		}
		line := make(orb.LineString, 0, len(seg))
		for _, s := range seg {
			line = append(line, orb.Point{s.Longitude, s.Latitude})
		}
		path = append(path, line)
	}

	es := doc.Track.Elements
	track := geojson.NewFeature(path)
	track.Properties["kind"] = "track"
	track.Properties["title"] = doc.Title
	track.Properties["name"] = es.DisplayName()
	track.Properties["catalog_number"] = es.CatalogNumber
	track.Properties["start"] = doc.Start().Time.UTC().Format(time.RFC3339)
	track.Properties["end"] = doc.Track.End().UTC().Format(time.RFC3339)
	track.Properties["step_seconds"] = doc.Track.Step.Seconds()
	track.Properties["ground_distance_km"] = doc.Summary.GroundDistKm
	fc.Append(track)

	for i, s := range doc.Track.Samples {
		pt := geojson.NewFeature(orb.Point{s.Longitude, s.Latitude})
		pt.Properties["kind"] = "sample"
		pt.Properties["time"] = s.Time.UTC().Format(time.RFC3339)
		pt.Properties["altitude_km"] = s.AltitudeKm
		pt.Properties["marker"] = i%doc.MarkerEvery == 0
		pt.Properties["start"] = i == 0
		fc.Append(pt)
	}

	raw, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("render geojson: %w", err)
	}
	if _, err := w.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("render geojson: %w", err)
	}
	return nil
}
