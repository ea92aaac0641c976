package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"flight_collector/internal/apikey"
	"flight_collector/internal/collector"
	"flight_collector/internal/config"
	"flight_collector/internal/models"
	"flight_collector/internal/observability"
	"flight_collector/internal/sources"
	"flight_collector/internal/stations"
	"flight_collector/internal/store"
)

// RegionStatus is the read side of a region collector
type RegionStatus interface {
	Region() config.RegionConfig
	Status() collector.Status
	Sources() []sources.Source
}

// Deps are the components the HTTP boundary reads from and submits to
type Deps struct {
	Store      store.Store
	Regions    []config.RegionConfig
	Collectors []RegionStatus
	Validator  *apikey.Validator
	Stations   *stations.Buffer
	Metrics    *observability.Metrics
	// Health reports whether the shared store is reachable; nil means always healthy
	Health func(ctx context.Context) error
}

// Server serves region snapshots and accepts field-station submissions
type Server struct {
	deps    Deps
	regions map[string]config.RegionConfig
	now     func() time.Time
}

func NewServer(deps Deps) *Server {
	regions := make(map[string]config.RegionConfig, len(deps.Regions))
	for _, r := range deps.Regions {
		regions[r.Key] = r
	}
	return &Server{deps: deps, regions: regions, now: time.Now}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/{region}/flights", s.handleSnapshot(models.KindFlights))
	mux.HandleFunc("GET /api/v1/{region}/choppers", s.handleSnapshot(models.KindChoppers))
	mux.HandleFunc("GET /api/v1/{region}/flights/tabular", s.handleTabular(models.KindFlights))
	mux.HandleFunc("GET /api/v1/{region}/choppers/tabular", s.handleTabular(models.KindChoppers))
	mux.HandleFunc("GET /api/v1/{region}/stats", s.handleRegionStats)

	mux.HandleFunc("POST /api/v1/aircraft/bulk", s.handleBulk)
	mux.HandleFunc("GET /api/v1/admin/api-keys/stats", s.handleAPIKeyStats)
	mux.HandleFunc("GET /api/v1/admin/region", s.handleCollectorRegion)

	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// loadSnapshot resolves a region snapshot, writing the error response itself when it fails
func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request, kind models.SnapshotKind) (*models.Snapshot, bool) {
	region := strings.ToLower(r.PathValue("region"))
	if _, ok := s.regions[region]; !ok {
		writeError(w, http.StatusNotFound, "unknown region: "+region)
		return nil, false
	}

	snapshot, found, err := s.deps.Store.Get(r.Context(), region, kind)
	if err != nil {
		slog.Error("Failed to read snapshot", "region", region, "kind", kind, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "snapshot store unavailable")
		return nil, false
	}
	if !found {
		what := "flight"
		if kind == models.KindChoppers {
			what = "helicopter"
		}
		writeError(w, http.StatusNotFound, "No "+what+" data found for region: "+region)
		return nil, false
	}
	return snapshot, true
}

func (s *Server) handleSnapshot(kind models.SnapshotKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := s.loadSnapshot(w, r, kind)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func (s *Server) handleTabular(kind models.SnapshotKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := s.loadSnapshot(w, r, kind)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := writeTabular(w, snapshot); err != nil {
			slog.Error("Failed to write tabular output", "region", snapshot.Region, "error", err)
		}
	}
}

type kindStats struct {
	Count      int        `json:"count"`
	LastUpdate *time.Time `json:"last_update"`
}

type regionStatsResponse struct {
	Region      string    `json:"region"`
	Flights     kindStats `json:"flights"`
	Helicopters kindStats `json:"helicopters"`
}

func (s *Server) handleRegionStats(w http.ResponseWriter, r *http.Request) {
	region := strings.ToLower(r.PathValue("region"))
	if _, ok := s.regions[region]; !ok {
		writeError(w, http.StatusNotFound, "unknown region: "+region)
		return
	}

	resp := regionStatsResponse{Region: region}
	found := false
	for _, kind := range []models.SnapshotKind{models.KindFlights, models.KindChoppers} {
		snapshot, ok, err := s.deps.Store.Get(r.Context(), region, kind)
		if err != nil {
			slog.Warn("Failed to read snapshot for stats", "region", region, "kind", kind, "error", err)
			continue
		}
		if !ok {
			continue
		}
		found = true
		ts := snapshot.Timestamp
		stats := kindStats{Count: snapshot.AircraftCount, LastUpdate: &ts}
		if kind == models.KindFlights {
			resp.Flights = stats
		} else {
			resp.Helicopters = stats
		}
	}

	if !found {
		writeError(w, http.StatusNotFound, "No data found for region: "+region)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type collectorInfo struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Name    string `json:"name,omitempty"`
}

type regionInfo struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Enabled     bool              `json:"enabled"`
	Center      config.Coordinate `json:"center"`
	RadiusMiles float64           `json:"radius_miles"`
	Collectors  []collectorInfo   `json:"collectors"`
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	regions := make([]regionInfo, 0, len(s.deps.Regions))
	for _, region := range s.deps.Regions {
		info := regionInfo{
			Key:         region.Key,
			Name:        region.Name,
			Enabled:     region.IsEnabled(),
			Center:      region.Center,
			RadiusMiles: region.RadiusMiles,
			Collectors:  make([]collectorInfo, 0, len(region.Collectors)),
		}
		for _, c := range region.Collectors {
			info.Collectors = append(info.Collectors, collectorInfo{
				Type:    c.Type,
				Enabled: c.IsEnabled(),
				URL:     c.URL,
				Name:    c.Name,
			})
		}
		regions = append(regions, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"regions":       regions,
		"total_regions": len(regions),
	})
}

type regionStatus struct {
	collector.Status
	Sources  []sources.Stats        `json:"sources"`
	Stations []stations.StationInfo `json:"stations,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	regions := make([]regionStatus, 0, len(s.deps.Collectors))
	for _, c := range s.deps.Collectors {
		status := regionStatus{Status: c.Status()}
		for _, src := range c.Sources() {
			status.Sources = append(status.Sources, src.Stats())
		}
		if s.deps.Stations != nil {
			status.Stations = s.deps.Stations.Stations(c.Region().Key)
		}
		regions = append(regions, status)
	}

	storeStatus := "ok"
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			storeStatus = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"store":     storeStatus,
		"regions":   regions,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"regions":   len(s.deps.Collectors),
	}
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			// Snapshots are still served from the in-memory fallback
			resp["status"] = "degraded"
			resp["store_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIKeyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Validator.Stats())
}

func (s *Server) handleCollectorRegion(w http.ResponseWriter, r *http.Request) {
	region := s.deps.Validator.Region()
	writeJSON(w, http.StatusOK, map[string]string{
		"collector_region": region,
		"description":      "This collector accepts data for the '" + region + "' region",
		"api_key_format":   s.deps.Validator.KeyFormat(),
		"bulk_endpoint":    "/api/v1/aircraft/bulk",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
