package sources

import (
	"context"
	"time"

	"flight_collector/internal/dump1090"
	"flight_collector/internal/models"
)

// Dump1090 polls a local receiver's aircraft.json
type Dump1090 struct {
	*base
	client *dump1090.JSONClient
	now    func() time.Time
}

func NewDump1090(name string, client *dump1090.JSONClient) *Dump1090 {
	return &Dump1090{
		base:   newBase(name, models.SourceDump1090),
		client: client,
		now:    time.Now,
	}
}

func (d *Dump1090) Fetch(ctx context.Context) ([]models.Observation, error) {
	report, err := d.client.FetchReport(ctx)
	if err != nil {
		return d.record(nil, err)
	}

	reportTime := report.ReportTime(d.now())
	out := make([]models.Observation, 0, len(report.Aircraft))
	for _, ac := range report.Aircraft {
		hex := models.NormalizeHex(ac.Hex)
		if hex == "" {
			continue
		}

		seenAt := reportTime
		if ac.Seen != nil && *ac.Seen > 0 {
			seenAt = reportTime.Add(-time.Duration(*ac.Seen * float64(time.Second)))
		}

		obs := models.Observation{
			Hex:          hex,
			Lat:          ac.Lat,
			Lon:          ac.Lon,
			AltBaro:      ac.AltBaro,
			GroundSpeed:  ac.GroundSpeed,
			Track:        ac.Track,
			DataSource:   string(models.SourceDump1090),
			SourceType:   models.SourceDump1090,
			SeenAt:       seenAt,
			TypeCode:     trimmed(ac.TypeCode),
			Registration: trimmed(ac.Registration),
			Flight:       trimmed(ac.Flight),
			Squawk:       trimmed(ac.Squawk),
			Category:     trimmed(ac.Category),
		}
		out = append(out, obs)
	}

	return d.record(out, nil)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return models.StringPtr(*s)
}
