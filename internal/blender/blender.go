package blender

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/geo"
	"flight_collector/internal/models"
)

// Registry looks up static aircraft details by ICAO address
type Registry interface {
	Lookup(ctx context.Context, icao24 string) (*models.RegistryRecord, bool, error)
}

// Blender merges the observations of one cycle into a region snapshot
type Blender struct {
	registry  Registry
	freshness time.Duration
	priority  map[string]int
	now       func() time.Time
}

// New creates a blender. A nil registry disables enrichment.
func New(registry Registry, cfg config.BlendConfig) *Blender {
	priority := make(map[string]int, len(cfg.Priority))
	for kind, rank := range cfg.Priority {
		priority[strings.ToLower(kind)] = rank
	}
	return &Blender{
		registry:  registry,
		freshness: cfg.FreshnessWindow,
		priority:  priority,
		now:       time.Now,
	}
}

// Blend keeps one observation per aircraft, enriches and classifies it and
// returns the full snapshot for the region. Empty input gives an empty snapshot.
func (b *Blender) Blend(ctx context.Context, region config.RegionConfig, observations []models.Observation) *models.Snapshot {
	blendTime := b.now()

	best := make(map[string]models.Observation)
	groups := make(map[string][]models.Observation)
	for _, obs := range observations {
		obs.Hex = models.NormalizeHex(obs.Hex)
		if obs.Hex == "" {
			continue
		}
		groups[obs.Hex] = append(groups[obs.Hex], obs)
		current, ok := best[obs.Hex]
		if !ok || b.preferred(obs, current, blendTime) {
			best[obs.Hex] = obs
		}
	}

	snapshot := &models.Snapshot{
		Region:   region.Key,
		Kind:     models.KindFlights,
		Aircraft: make([]models.Observation, 0, len(best)),
		Sources:  make(map[string]int),
	}

	for _, obs := range best {
		b.fillPosition(&obs, groups[obs.Hex], blendTime)

		var record *models.RegistryRecord
		if b.registry != nil {
			rec, found, err := b.registry.Lookup(ctx, obs.Hex)
			if err != nil {
				slog.Warn("Registry lookup failed", "region", region.Key, "hex", obs.Hex, "error", err)
			} else if found {
				record = rec
			}
		}

		enrich(&obs, record)
		obs.IsHelicopter = IsHelicopter(&obs, record)

		if obs.HasPosition() {
			d := geo.DistanceMiles(region.Center.Lat, region.Center.Lon, *obs.Lat, *obs.Lon)
			obs.DistanceMiles = &d
		}

		snapshot.Aircraft = append(snapshot.Aircraft, obs)
		snapshot.Sources[obs.DataSource]++
	}

	sort.Slice(snapshot.Aircraft, func(i, j int) bool {
		return snapshot.Aircraft[i].Hex < snapshot.Aircraft[j].Hex
	})
	snapshot.AircraftCount = len(snapshot.Aircraft)
	snapshot.Timestamp = blendTime

	return snapshot
}

// preferred reports whether cand should replace cur as the chosen observation.
// Fresh beats stale, then source priority, then recency, then a complete
// position, then data source name.
func (b *Blender) preferred(cand, cur models.Observation, now time.Time) bool {
	candFresh, curFresh := b.fresh(cand, now), b.fresh(cur, now)
	if candFresh != curFresh {
		return candFresh
	}

	candRank, curRank := b.rank(cand), b.rank(cur)
	if candRank != curRank {
		return candRank > curRank
	}

	if !cand.SeenAt.Equal(cur.SeenAt) {
		return cand.SeenAt.After(cur.SeenAt)
	}

	if cand.HasPosition() != cur.HasPosition() {
		return cand.HasPosition()
	}

	return cand.DataSource < cur.DataSource
}

// fillPosition gives a chosen observation without a position the lat/lon of
// the most preferred fresh observation of the same aircraft that has one.
// Beast sightings never carry a position.
func (b *Blender) fillPosition(obs *models.Observation, group []models.Observation, now time.Time) {
	if obs.HasPosition() {
		return
	}
	var donor *models.Observation
	for i := range group {
		cand := group[i]
		if !cand.HasPosition() || !b.fresh(cand, now) {
			continue
		}
		if donor == nil || b.preferred(cand, *donor, now) {
			donor = &group[i]
		}
	}
	if donor != nil {
		obs.Lat = models.Float64Ptr(*donor.Lat)
		obs.Lon = models.Float64Ptr(*donor.Lon)
	}
}

func (b *Blender) fresh(o models.Observation, now time.Time) bool {
	return !o.SeenAt.IsZero() && now.Sub(o.SeenAt) <= b.freshness
}

func (b *Blender) rank(o models.Observation) int {
	return b.priority[strings.ToLower(string(o.SourceType))]
}

// enrich copies registry details onto the observation. A miss leaves fields as they are.
func enrich(obs *models.Observation, record *models.RegistryRecord) {
	if record == nil {
		return
	}
	if v := models.StringPtr(record.Model); v != nil {
		obs.Model = v
	}
	if v := models.StringPtr(record.OperatorName()); v != nil {
		obs.Operator = v
	}
	if v := models.StringPtr(record.TypeCode); v != nil {
		obs.TypeCode = v
	}
	if v := models.StringPtr(record.ICAOAircraftClass); v != nil {
		obs.AircraftClass = v
	}
	if obs.Registration == nil {
		obs.Registration = models.StringPtr(record.Registration)
	}
}
