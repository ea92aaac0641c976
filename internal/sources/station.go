package sources

import (
	"context"

	"flight_collector/internal/models"
	"flight_collector/internal/stations"
)

// Station exposes the field-station submissions buffered for a region
type Station struct {
	*base
	buffer *stations.Buffer
	region string
}

func NewStation(name string, region string, buffer *stations.Buffer) *Station {
	return &Station{
		base:   newBase(name, models.SourcePiStation),
		buffer: buffer,
		region: region,
	}
}

func (s *Station) Fetch(ctx context.Context) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return s.record(nil, err)
	}
	return s.record(s.buffer.Observations(s.region), nil)
}
