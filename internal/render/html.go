package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"
)

const (
	mapWidth   = 800
	mapHeight  = 700
	panelWidth = 200
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

type htmlPage struct {
	Title      string
	Width      int
	Height     int
	PanelWidth int
	Help       []string
	Summary    []summaryRow
	Data       mapData
}

type summaryRow struct {
	Label string
	Value string
}

// mapData is marshalled into the page script; html/template JSON-encodes it.
type mapData struct {
	Segments [][][2]float64 `json:"segments"`
	Samples  []mapPoint     `json:"samples"`
	Markers  []mapPoint     `json:"markers"`
	Start    mapPoint       `json:"start"`
}

type mapPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Time string  `json:"time"`
}

func writeHTML(w io.Writer, doc document) error {
	page := htmlPage{
		Title:      doc.Title,
		Width:      mapWidth,
		Height:     mapHeight,
		PanelWidth: panelWidth,
		Help:       helpText(doc),
		Summary:    summaryRows(doc),
		Data:       newMapData(doc),
	}
	if err := mapTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func newMapData(doc document) mapData {
	data := mapData{
		Segments: make([][][2]float64, 0, len(doc.Segments)),
		Samples:  make([]mapPoint, 0, len(doc.Track.Samples)),
		Markers:  make([]mapPoint, 0, len(doc.Markers)),
	}
	for _, seg := range doc.Segments {
		line := make([][2]float64, 0, len(seg))
		for _, s := range seg {
			line = append(line, [2]float64{s.Latitude, s.Longitude})
		}
		data.Segments = append(data.Segments, line)
	}
	for _, s := range doc.Track.Samples {
		data.Samples = append(data.Samples, mapPoint{Lat: s.Latitude, Lon: s.Longitude, Time: formatTime(s.Time)})
	}
	for _, s := range doc.Markers {
		data.Markers = append(data.Markers, mapPoint{Lat: s.Latitude, Lon: s.Longitude, Time: formatTime(s.Time)})
	}
	start := doc.Start()
	data.Start = mapPoint{Lat: start.Latitude, Lon: start.Longitude, Time: formatTime(start.Time)}
	return data
}

func helpText(doc document) []string {
	span := doc.Track.Step * time.Duration(len(doc.Track.Samples))
	return []string{
		"Hover the big markers to see coordinates and UTC time.",
		"The track starts at the red marker.",
		fmt.Sprintf("Green markers predict the satellite position every %s for %s.",
			humanDuration(doc.Track.Step), humanDuration(span)),
		fmt.Sprintf("Orange markers are %s apart.", humanDuration(doc.MarkerInterval())),
	}
}

func summaryRows(doc document) []summaryRow {
	s := doc.Summary
	es := doc.Track.Elements
	rows := []summaryRow{
		{"Object", es.DisplayName()},
		{"Catalog number", strconv.FormatUint(uint64(es.CatalogNumber), 10)},
	}
	if !es.Epoch.IsZero() {
		rows = append(rows, summaryRow{"Element epoch", formatTime(es.Epoch) + " UTC"})
	}
	return append(rows,
		summaryRow{"Start", formatTime(doc.Start().Time) + " UTC"},
		summaryRow{"End", formatTime(doc.Track.End()) + " UTC"},
		summaryRow{"Samples", strconv.Itoa(s.Samples)},
		summaryRow{"Segments", strconv.Itoa(s.Segments)},
		summaryRow{"Ground distance", fmt.Sprintf("%.0f km", s.GroundDistKm)},
		summaryRow{"Ground speed", fmt.Sprintf("%.2f km/s", s.MeanGroundSpeed)},
		summaryRow{"Altitude", fmt.Sprintf("%.0f to %.0f km", s.MinAltitudeKm, s.MaxAltitudeKm)},
	)
}

// humanDuration prints "30 seconds", "10 minutes" or "1.5 hours".
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return plural(d.Seconds(), "second")
	case d < time.Hour:
		return plural(d.Minutes(), "minute")
	default:
		return plural(d.Hours(), "hour")
	}
}

func plural(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == 1 {
		return s + " " + unit
	}
	return s + " " + unit + "s"
}
