package models

import (
	"fmt"
	"time"
)

// SnapshotKind distinguishes the full region snapshot from derived sub-views
type SnapshotKind string

const (
	KindFlights  SnapshotKind = "flights"
	KindChoppers SnapshotKind = "choppers"
)

// ParseSnapshotKind validates a kind coming from an external caller
func ParseSnapshotKind(s string) (SnapshotKind, error) {
	switch SnapshotKind(s) {
	case KindFlights, KindChoppers:
		return SnapshotKind(s), nil
	default:
		return "", fmt.Errorf("unknown snapshot kind: %s", s)
	}
}

// Snapshot is the published state for one region.
// Hex identifiers are unique within Aircraft. A snapshot is never mutated after it is published.
type Snapshot struct {
	Region        string         `json:"region"`
	Kind          SnapshotKind   `json:"kind"`
	Timestamp     time.Time      `json:"timestamp"`
	AircraftCount int            `json:"aircraft_count"`
	Aircraft      []Observation  `json:"aircraft"`
	Sources       map[string]int `json:"sources"`
}

// HelicopterView derives the rotary-wing-only sub-view of a full snapshot
func (s *Snapshot) HelicopterView() *Snapshot {
	view := &Snapshot{
		Region:    s.Region,
		Kind:      KindChoppers,
		Timestamp: s.Timestamp,
		Aircraft:  make([]Observation, 0),
		Sources:   make(map[string]int),
	}
	for _, ac := range s.Aircraft {
		if !ac.IsHelicopter {
			continue
		}
		view.Aircraft = append(view.Aircraft, ac)
		view.Sources[ac.DataSource]++
	}
	view.AircraftCount = len(view.Aircraft)
	return view
}

// IsEmpty reports whether the snapshot holds no aircraft
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Aircraft) == 0
}
