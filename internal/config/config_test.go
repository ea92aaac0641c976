package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
collection:
  interval: 30s
api_keys:
  collector_region: East
blend:
  priority:
    opensky: 5
regions:
  East:
    name: East Texas
    center:
      lat: 32.35
      lon: -95.30
    radius_miles: 150
    collectors:
      - type: opensky
        url: https://opensky-network.org/api
      - type: dump1090
        url: http://192.168.0.13/tar1090/data/aircraft.json
        name: tar1090
        enabled: false
  west:
    enabled: false
    center:
      lat: 34.05
      lon: -118.24
    radius_miles: 100
`

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("FLIGHT_COLLECTOR_CONFIG_PATH", path)
}

func TestLoad(t *testing.T) {
	writeConfig(t, testConfig)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Collection.Interval)
	assert.Equal(t, 45*time.Second, cfg.Collection.SnapshotTTL, "ttl defaults to 1.5x interval")
	assert.True(t, cfg.Collection.RetainOnTotalFailure)
	assert.Equal(t, "east", cfg.APIKeys.CollectorRegion)

	assert.Equal(t, 5, cfg.Blend.Priority["opensky"])
	assert.Equal(t, 30, cfg.Blend.Priority["pi_station"], "unset ranks keep their defaults")

	require.Len(t, cfg.Regions, 2)
	east := cfg.Regions["east"]
	assert.Equal(t, "east", east.Key)
	assert.Equal(t, "East Texas", east.Name)
	assert.True(t, east.IsEnabled())
	assert.Equal(t, 150.0, east.RadiusMiles)
	require.Len(t, east.Collectors, 2)
	assert.Len(t, east.EnabledCollectors(), 1)
	assert.True(t, east.HasCollector("opensky"))
	assert.False(t, east.HasCollector("dump1090"))
	require.NoError(t, east.Validate())

	enabled := cfg.EnabledRegions()
	require.Len(t, enabled, 1)
	assert.Equal(t, "east", enabled[0].Key)
	assert.Equal(t, "west", cfg.Regions["west"].Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	writeConfig(t, testConfig)
	t.Setenv("FLIGHT_COLLECTOR_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "bad log level",
			body: "log:\n  level: loud\n",
		},
		{
			name: "ttl not longer than interval",
			body: "collection:\n  interval: 60s\n  snapshot_ttl: 60s\n",
		},
		{
			name: "zero attempts",
			body: "opensky:\n  max_attempts: 0\n",
		},
		{
			name: "opensky spacing longer than interval",
			body: "collection:\n  interval: 5s\n  snapshot_ttl: 10s\nopensky:\n  min_interval: 10s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.body)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRegionConfig_Validate(t *testing.T) {
	valid := RegionConfig{Key: "east", Center: Coordinate{Lat: 32, Lon: -95}, RadiusMiles: 100}
	assert.NoError(t, valid.Validate())

	badCenter := valid
	badCenter.Center.Lat = 120
	assert.Error(t, badCenter.Validate())

	badRadius := valid
	badRadius.RadiusMiles = 0
	assert.Error(t, badRadius.Validate())

	missingURL := valid
	missingURL.Collectors = []CollectorConfig{{Type: "dump1090"}}
	assert.Error(t, missingURL.Validate())

	unknown := valid
	unknown.Collectors = []CollectorConfig{{Type: "carrier-pigeon"}}
	assert.Error(t, unknown.Validate())
}
