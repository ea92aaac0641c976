package config

import (
	"fmt"
	"strings"
)

// Source types accepted in a region's collector list
const (
	SourceTypeOpenSky   = "opensky"
	SourceTypeDump1090  = "dump1090"
	SourceTypeBeast     = "beast"
	SourceTypePiStation = "pi_station"
)

// Coordinate is a WGS84 position in decimal degrees
type Coordinate struct {
	Lat float64 `mapstructure:"lat" json:"lat"`
	Lon float64 `mapstructure:"lon" json:"lon"`
}

// RegionConfig describes one geographic coverage area.
// It is read-only input for the collector.
type RegionConfig struct {
	Key         string            `mapstructure:"-"`
	Name        string            `mapstructure:"name"`
	Enabled     *bool             `mapstructure:"enabled"`
	Center      Coordinate        `mapstructure:"center"`
	RadiusMiles float64           `mapstructure:"radius_miles"`
	Collectors  []CollectorConfig `mapstructure:"collectors"`
}

// CollectorConfig describes one configured data source of a region
type CollectorConfig struct {
	Type    string `mapstructure:"type"`
	URL     string `mapstructure:"url"`
	Name    string `mapstructure:"name"`
	Enabled *bool  `mapstructure:"enabled"`
}

// IsEnabled defaults to true when the flag is omitted
func (r RegionConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IsEnabled defaults to true when the flag is omitted
func (c CollectorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DisplayName returns the configured name or the type
func (c CollectorConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// EnabledCollectors returns the enabled sources in configured order
func (r RegionConfig) EnabledCollectors() []CollectorConfig {
	out := make([]CollectorConfig, 0, len(r.Collectors))
	for _, c := range r.Collectors {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

// HasCollector reports whether an enabled source of the given type is configured
func (r RegionConfig) HasCollector(sourceType string) bool {
	for _, c := range r.EnabledCollectors() {
		if strings.EqualFold(c.Type, sourceType) {
			return true
		}
	}
	return false
}

// Validate checks a region before its collection loop is started
func (r RegionConfig) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("region key is required")
	}

	if r.Center.Lat < -90 || r.Center.Lat > 90 || r.Center.Lon < -180 || r.Center.Lon > 180 {
		return fmt.Errorf("region %s: center (%f, %f) is out of range", r.Key, r.Center.Lat, r.Center.Lon)
	}

	if r.RadiusMiles <= 0 {
		return fmt.Errorf("region %s: radius_miles must be greater than 0", r.Key)
	}

	for i, c := range r.Collectors {
		switch strings.ToLower(c.Type) {
		case SourceTypeOpenSky, SourceTypePiStation:
		case SourceTypeDump1090, SourceTypeBeast:
			if c.URL == "" {
				return fmt.Errorf("region %s: collector %d (%s) requires a url", r.Key, i, c.Type)
			}
		default:
			return fmt.Errorf("region %s: collector %d has unknown type %q", r.Key, i, c.Type)
		}
	}

	return nil
}
