package render

import (
	"fmt"
	"html"
	"io"
	"strings"
)

// SVG frame: an equirectangular world at two pixels per degree.
const (
	svgScale      = 2.0
	svgMargin     = 40.0
	svgTitleSpace = 30.0
	svgPlotWidth  = 360 * svgScale
	svgPlotHeight = 180 * svgScale
	svgWidth      = svgPlotWidth + 2*svgMargin
	svgHeight     = svgPlotHeight + 2*svgMargin + svgTitleSpace
	graticuleStep = 30

	frameColor     = "black"
	graticuleColor = "lightgray"
	labelFontSize  = 10
	titleFontSize  = 16
)

// project maps longitude/latitude onto the SVG canvas.
func project(lon, lat float64) (x, y float64) {
	x = svgMargin + (lon+180)*svgScale
	y = svgMargin + svgTitleSpace + (90-lat)*svgScale
	return x, y
}

func writeSVG(w io.Writer, doc document) error {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" xmlns="http://www.w3.org/2000/svg" style="background-color:white;">`,
		svgWidth, svgHeight, svgWidth, svgHeight)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" fill="%s" font-size="%d" text-anchor="middle">%s</text>`,
		svgWidth/2, svgMargin, frameColor, titleFontSize, html.EscapeString(doc.Title))
	b.WriteString("\n")

	writeGraticule(&b)

	for _, seg := range doc.Segments {
		if len(seg) == 1 {
			continue
		}
		points := make([]string, 0, len(seg))
		for _, s := range seg {
			x, y := project(s.Longitude, s.Latitude)
			points = append(points, fmt.Sprintf("%.2f,%.2f", x, y))
		}
		fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="blue" stroke-width="2"/>`, strings.Join(points, " "))
		b.WriteString("\n")
	}

	for _, s := range doc.Track.Samples {
		x, y := project(s.Longitude, s.Latitude)
		fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="2" fill="green"/>`, x, y)
	}
	b.WriteString("\n")

	for _, s := range doc.Markers {
		x, y := project(s.Longitude, s.Latitude)
		fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="2.5" fill="orange"><title>%.4f, %.4f %s UTC</title></circle>`,
			x, y, s.Longitude, s.Latitude, formatTime(s.Time))
		b.WriteString("\n")
	}

	start := doc.Start()
	x, y := project(start.Longitude, start.Latitude)
	fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="4" fill="red"><title>start %s UTC</title></circle>`, x, y, formatTime(start.Time))
	b.WriteString("\n</svg>\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}
	return nil
}

func writeGraticule(b *strings.Builder) {
	for lon := -180; lon <= 180; lon += graticuleStep {
		x1, y1 := project(float64(lon), 90)
		x2, y2 := project(float64(lon), -90)
		fmt.Fprintf(b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="0.5"/>`, x1, y1, x2, y2, graticuleColor)
		fmt.Fprintf(b, `<text x="%.1f" y="%.1f" fill="%s" font-size="%d" text-anchor="middle" dominant-baseline="hanging">%d°</text>`,
			x2, y2+4, frameColor, labelFontSize, lon)
		b.WriteString("\n")
	}
	for lat := -90; lat <= 90; lat += graticuleStep {
		x1, y1 := project(-180, float64(lat))
		x2, y2 := project(180, float64(lat))
		fmt.Fprintf(b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="0.5"/>`, x1, y1, x2, y2, graticuleColor)
		fmt.Fprintf(b, `<text x="%.1f" y="%.1f" fill="%s" font-size="%d" text-anchor="end" dominant-baseline="middle">%d°</text>`,
			x1-4, y1, frameColor, labelFontSize, lat)
		b.WriteString("\n")
	}
	x0, y0 := project(-180, 90)
	fmt.Fprintf(b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="%s" stroke-width="1"/>`,
		x0, y0, svgPlotWidth, svgPlotHeight, frameColor)
	b.WriteString("\n")
}
