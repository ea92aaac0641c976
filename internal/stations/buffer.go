package stations

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/models"
)

// Submission is one batch of aircraft pushed by a field station
type Submission struct {
	StationID   string
	StationName string
	Aircraft    []models.Observation
}

// SubmitResult reports what happened to a submission
type SubmitResult struct {
	Accepted   int       `json:"accepted"`
	Dropped    int       `json:"dropped"`
	ReceivedAt time.Time `json:"received_at"`
	Evicted    string    `json:"evicted_station,omitempty"`
}

// StationInfo summarises the latest batch held for a station
type StationInfo struct {
	StationID     string    `json:"station_id"`
	StationName   string    `json:"station_name,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	AircraftCount int       `json:"aircraft_count"`
}

type batch struct {
	info     StationInfo
	aircraft []models.Observation
}

// Buffer holds the latest submission of every field station per region until it expires.
// Readers see every live batch; reading does not drain the buffer.
type Buffer struct {
	mu          sync.Mutex
	maxStations int
	maxAircraft int
	ttl         time.Duration
	now         func() time.Time
	regions     map[string]map[string]*batch
}

func NewBuffer(cfg config.StationsConfig) *Buffer {
	return &Buffer{
		maxStations: cfg.MaxStations,
		maxAircraft: cfg.MaxAircraft,
		ttl:         cfg.TTL,
		now:         time.Now,
		regions:     make(map[string]map[string]*batch),
	}
}

// DataSource is the source label attached to a station's observations
func DataSource(stationID string) string {
	return string(models.SourcePiStation) + "_" + stationID
}

// Submit stores a station's batch for a region, replacing that station's previous batch.
// Aircraft without an identifier, and any beyond the per-batch limit, are dropped.
func (b *Buffer) Submit(region string, sub Submission) (SubmitResult, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	stationID := strings.TrimSpace(sub.StationID)
	if region == "" {
		return SubmitResult{}, fmt.Errorf("region is required")
	}
	if stationID == "" {
		return SubmitResult{}, fmt.Errorf("station_id is required")
	}

	receivedAt := b.now()
	result := SubmitResult{ReceivedAt: receivedAt}

	aircraft := make([]models.Observation, 0, min(len(sub.Aircraft), b.maxAircraft))
	for _, obs := range sub.Aircraft {
		obs.Hex = models.NormalizeHex(obs.Hex)
		if obs.Hex == "" || len(aircraft) >= b.maxAircraft {
			result.Dropped++
			continue
		}
		obs.DataSource = DataSource(stationID)
		obs.SourceType = models.SourcePiStation
		obs.StationID = models.StringPtr(stationID)
		obs.StationName = models.StringPtr(sub.StationName)
		if obs.SeenAt.IsZero() || obs.SeenAt.After(receivedAt) {
			obs.SeenAt = receivedAt
		}
		// Enrichment and derived fields are always recomputed by the blender
		obs.Model, obs.Operator, obs.TypeCode, obs.AircraftClass = nil, nil, nil, nil
		obs.IsHelicopter = false
		obs.DistanceMiles = nil
		aircraft = append(aircraft, obs)
	}
	result.Accepted = len(aircraft)

	b.mu.Lock()
	defer b.mu.Unlock()

	stations, ok := b.regions[region]
	if !ok {
		stations = make(map[string]*batch)
		b.regions[region] = stations
	}
	b.pruneLocked(stations, receivedAt)

	if _, exists := stations[stationID]; !exists && len(stations) >= b.maxStations {
		result.Evicted = oldestStation(stations)
		delete(stations, result.Evicted)
		slog.Warn("Station buffer full, evicted oldest station",
			"region", region,
			"evicted", result.Evicted,
			"max_stations", b.maxStations,
		)
	}

	stations[stationID] = &batch{
		info: StationInfo{
			StationID:     stationID,
			StationName:   sub.StationName,
			ReceivedAt:    receivedAt,
			AircraftCount: len(aircraft),
		},
		aircraft: aircraft,
	}

	return result, nil
}

// Observations returns copies of every live observation held for a region
func (b *Buffer) Observations(region string) []models.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()

	stations := b.regions[strings.ToLower(region)]
	b.pruneLocked(stations, b.now())

	ids := make([]string, 0, len(stations))
	for id := range stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.Observation
	for _, id := range ids {
		out = append(out, stations[id].aircraft...)
	}
	return out
}

// Stations lists the live batches held for a region
func (b *Buffer) Stations(region string) []StationInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	stations := b.regions[strings.ToLower(region)]
	b.pruneLocked(stations, b.now())

	out := make([]StationInfo, 0, len(stations))
	for _, s := range stations {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

func (b *Buffer) pruneLocked(stations map[string]*batch, now time.Time) {
	for id, s := range stations {
		if now.Sub(s.info.ReceivedAt) > b.ttl {
			delete(stations, id)
		}
	}
}

func oldestStation(stations map[string]*batch) string {
	var oldestID string
	var oldest time.Time
	for id, s := range stations {
		if oldestID == "" || s.info.ReceivedAt.Before(oldest) {
			oldestID, oldest = id, s.info.ReceivedAt
		}
	}
	return oldestID
}
