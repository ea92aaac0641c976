package sources

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/dump1090"
	"flight_collector/internal/stations"
)

// Factory builds the configured sources of each region
type Factory struct {
	httpClient      *http.Client
	openSky         config.OpenSkyConfig
	beast           config.BeastConfig
	stations        *stations.Buffer
	collectorRegion string
}

func NewFactory(cfg *config.Config, buffer *stations.Buffer) *Factory {
	return &Factory{
		httpClient:      &http.Client{Timeout: cfg.Sources.Timeout + 5*time.Second},
		openSky:         cfg.OpenSky,
		beast:           cfg.Beast,
		stations:        buffer,
		collectorRegion: cfg.APIKeys.CollectorRegion,
	}
}

// Build creates a region's sources in configured order. The region this
// process accepts field-station submissions for always gets a station source.
func (f *Factory) Build(region config.RegionConfig) ([]Source, error) {
	var out []Source
	hasStation := false

	for _, c := range region.EnabledCollectors() {
		name := region.Key + "/" + c.DisplayName()
		switch strings.ToLower(c.Type) {
		case config.SourceTypeOpenSky:
			out = append(out, NewOpenSky(name, region, f.openSky, f.httpClient, nil))
		case config.SourceTypeDump1090:
			out = append(out, NewDump1090(name, dump1090.NewJSONClient(c.URL, f.httpClient)))
		case config.SourceTypeBeast:
			out = append(out, NewBeast(name, dump1090.NewBeastClient(c.URL), f.beast))
		case config.SourceTypePiStation:
			if f.stations == nil {
				return nil, fmt.Errorf("region %s: pi_station source configured without a station buffer", region.Key)
			}
			out = append(out, NewStation(name, region.Key, f.stations))
			hasStation = true
		default:
			return nil, fmt.Errorf("region %s: unknown source type %q", region.Key, c.Type)
		}
	}

	if !hasStation && f.stations != nil && f.collectorRegion != "" && f.collectorRegion == region.Key {
		out = append(out, NewStation(region.Key+"/"+config.SourceTypePiStation, region.Key, f.stations))
	}

	return out, nil
}
