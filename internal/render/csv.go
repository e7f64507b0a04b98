package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"time", "latitude", "longitude", "altitude_km"}

func writeCSV(w io.Writer, doc document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	for _, s := range doc.Track.Samples {
		record := []string{
			s.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.Latitude, 'f', 6, 64),
			strconv.FormatFloat(s.Longitude, 'f', 6, 64),
			strconv.FormatFloat(s.AltitudeKm, 'f', 3, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("render csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	return nil
}
