package api

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"flight_collector/internal/models"
)

var tabularHeader = []string{
	"timestamp", "hex", "flight", "registration", "lat", "lon",
	"alt_baro", "gs", "track", "distance_miles", "data_source",
	"model", "operator",
}

// writeTabular renders a snapshot as CSV, one row per aircraft. Unknown values are empty.
func writeTabular(w io.Writer, snapshot *models.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tabularHeader); err != nil {
		return err
	}

	ts := snapshot.Timestamp.UTC().Format(time.RFC3339)
	for _, ac := range snapshot.Aircraft {
		row := []string{
			ts,
			ac.Hex,
			str(ac.Flight),
			str(ac.Registration),
			num(ac.Lat, -1),
			num(ac.Lon, -1),
			ac.AltBaro.String(),
			num(ac.GroundSpeed, 1),
			num(ac.Track, 1),
			num(ac.DistanceMiles, 2),
			ac.DataSource,
			str(ac.Model),
			str(ac.Operator),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(f *float64, prec int) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', prec, 64)
}
