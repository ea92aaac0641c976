package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"flight_collector/internal/apikey"
	"flight_collector/internal/models"
	"flight_collector/internal/stations"

	"github.com/google/uuid"
)

const maxBulkBodyBytes = 10 << 20

// BulkRequest is the payload a field station posts with its current aircraft list
type BulkRequest struct {
	StationID   string               `json:"station_id"`
	StationName string               `json:"station_name"`
	Timestamp   string               `json:"timestamp,omitempty"`
	Aircraft    []models.Observation `json:"aircraft"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// BulkResponse acknowledges a submission
type BulkResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	AircraftCount  int    `json:"aircraft_count"`
	ProcessedCount int    `json:"processed_count"`
	DroppedCount   int    `json:"dropped_count"`
	RequestID      string `json:"request_id"`
}

type rejectionDetails struct {
	CollectorRegion   string `json:"collector_region"`
	ProvidedKeyRegion string `json:"provided_key_region,omitempty"`
	RequestID         string `json:"request_id"`
}

type rejection struct {
	Status    string           `json:"status"`
	ErrorCode apikey.ErrorKind `json:"error_code"`
	Message   string           `json:"message"`
	Details   rejectionDetails `json:"details"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()[:8]
	key := r.Header.Get("X-API-Key")

	result := s.deps.Validator.Validate(key)
	if !result.Valid {
		s.deps.Metrics.ObserveAPIKeyValidation(string(result.ErrorKind))
		s.deps.Metrics.ObserveStationSubmission("rejected")
		slog.Warn("Rejected station submission",
			"request_id", requestID,
			"error_code", result.ErrorKind,
			"api_key", apikey.Mask(key),
			"remote", r.RemoteAddr,
		)

		status := http.StatusUnauthorized
		if errors.Is(result.Err(), apikey.ErrRegionMismatch) {
			status = http.StatusForbidden
		}
		writeJSON(w, status, rejection{
			Status:    "error",
			ErrorCode: result.ErrorKind,
			Message:   result.Message,
			Details: rejectionDetails{
				CollectorRegion:   s.deps.Validator.Region(),
				ProvidedKeyRegion: result.Region,
				RequestID:         requestID,
			},
		})
		return
	}
	s.deps.Metrics.ObserveAPIKeyValidation("valid")

	var req BulkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBulkBodyBytes)).Decode(&req); err != nil {
		s.deps.Metrics.ObserveStationSubmission("invalid")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if len(req.Aircraft) == 0 {
		s.deps.Metrics.ObserveStationSubmission("empty")
		writeJSON(w, http.StatusOK, BulkResponse{
			Status:    "warning",
			Message:   "No aircraft data provided",
			RequestID: requestID,
		})
		return
	}

	submitted, err := s.deps.Stations.Submit(s.deps.Validator.Region(), stations.Submission{
		StationID:   req.StationID,
		StationName: req.StationName,
		Aircraft:    req.Aircraft,
	})
	if err != nil {
		s.deps.Metrics.ObserveStationSubmission("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.deps.Metrics.ObserveStationSubmission("accepted")

	slog.Info("Accepted station submission",
		"request_id", requestID,
		"station_id", req.StationID,
		"region", s.deps.Validator.Region(),
		"aircraft", len(req.Aircraft),
		"accepted", submitted.Accepted,
		"dropped", submitted.Dropped,
	)

	writeJSON(w, http.StatusOK, BulkResponse{
		Status:         "success",
		Message:        fmt.Sprintf("Processed %d aircraft from station %s", submitted.Accepted, req.StationID),
		AircraftCount:  len(req.Aircraft),
		ProcessedCount: submitted.Accepted,
		DroppedCount:   submitted.Dropped,
		RequestID:      requestID,
	})
}
