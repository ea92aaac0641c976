package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies the type of data source an observation came from
type SourceKind string

const (
	SourceOpenSky   SourceKind = "opensky"    // third-party aggregator API
	SourceDump1090  SourceKind = "dump1090"   // local receiver JSON feed
	SourceBeast     SourceKind = "beast"      // local receiver Beast TCP stream
	SourcePiStation SourceKind = "pi_station" // remote field-station submissions
)

// Altitude is a barometric altitude in feet, or on the ground
// dump1090 reports "ground" instead of a number for aircraft on the surface
type Altitude struct {
	Feet   float64
	Ground bool
}

// FeetAltitude returns a pointer to an airborne altitude
func FeetAltitude(feet float64) *Altitude {
	return &Altitude{Feet: feet}
}

// GroundAltitude returns a pointer to an on-ground altitude
func GroundAltitude() *Altitude {
	return &Altitude{Ground: true}
}

func (a Altitude) MarshalJSON() ([]byte, error) {
	if a.Ground {
		return []byte(`"ground"`), nil
	}
	return json.Marshal(a.Feet)
}

func (a *Altitude) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.EqualFold(s, "ground") {
			*a = Altitude{Ground: true}
			return nil
		}
		return fmt.Errorf("invalid altitude: %q", s)
	}
	var feet float64
	if err := json.Unmarshal(data, &feet); err != nil {
		return fmt.Errorf("invalid altitude: %w", err)
	}
	*a = Altitude{Feet: feet}
	return nil
}

// String renders the altitude the way it appears in tabular output
func (a *Altitude) String() string {
	if a == nil {
		return ""
	}
	if a.Ground {
		return "ground"
	}
	return fmt.Sprintf("%.0f", a.Feet)
}

// Observation is one sighting of one aircraft from one source at one instant.
// Hex is the only required field; every pointer field is nil when the source did not report it.
type Observation struct {
	Hex          string     `json:"hex"`
	Flight       *string    `json:"flight,omitempty"`
	Registration *string    `json:"registration,omitempty"`
	Lat          *float64   `json:"lat,omitempty"`
	Lon          *float64   `json:"lon,omitempty"`
	AltBaro      *Altitude  `json:"alt_baro,omitempty"`
	GroundSpeed  *float64   `json:"gs,omitempty"`
	Track        *float64   `json:"track,omitempty"`
	Squawk       *string    `json:"squawk,omitempty"`
	Category     *string    `json:"category,omitempty"`
	DataSource   string     `json:"data_source"`
	SourceType   SourceKind `json:"source_type"`
	SeenAt       time.Time  `json:"seen_at"`

	// Field-station metadata, set on submissions only
	StationID   *string `json:"station_id,omitempty"`
	StationName *string `json:"station_name,omitempty"`

	// Registry enrichment, attached by the blender
	Model         *string `json:"model,omitempty"`
	Operator      *string `json:"operator,omitempty"`
	TypeCode      *string `json:"type_code,omitempty"`
	AircraftClass *string `json:"aircraft_class,omitempty"`
	IsHelicopter  bool    `json:"is_helicopter"`

	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}

// NormalizeHex trims and lower-cases an aircraft identifier
func NormalizeHex(hex string) string {
	return strings.ToLower(strings.TrimSpace(hex))
}

// HasPosition reports whether both latitude and longitude are known
func (o *Observation) HasPosition() bool {
	return o.Lat != nil && o.Lon != nil
}

// StringPtr returns a pointer to s, or nil when s is blank
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr returns a pointer to f
func Float64Ptr(f float64) *float64 {
	return &f
}
