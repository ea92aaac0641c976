package blender

import (
	"strings"

	"flight_collector/internal/models"
)

// rotorcraftCategory is the ADS-B emitter category for rotorcraft
const rotorcraftCategory = "A7"

var helicopterTypeCodes = map[string]bool{
	"A109": true, "A119": true, "A139": true, "AS50": true, "AS65": true,
	"B06": true, "B407": true, "B429": true, "EC30": true, "EC35": true,
	"EC45": true, "EC55": true, "H60": true, "R22": true, "R44": true,
	"S76": true,
}

var rotorcraftMakers = map[string]bool{
	"agusta":         true,
	"agustawestland": true,
	"bell":           true,
	"enstrom":        true,
	"eurocopter":     true,
	"robinson":       true,
	"schweizer":      true,
	"sikorsky":       true,
}

// IsHelicopter classifies an aircraft as rotary-wing from its observed and registry data
func IsHelicopter(obs *models.Observation, record *models.RegistryRecord) bool {
	if obs.AircraftClass != nil && strings.HasPrefix(strings.ToUpper(*obs.AircraftClass), "H") {
		return true
	}
	if obs.Category != nil && strings.EqualFold(*obs.Category, rotorcraftCategory) {
		return true
	}
	if obs.TypeCode != nil && helicopterTypeCodes[strings.ToUpper(*obs.TypeCode)] {
		return true
	}

	var text []string
	if obs.Model != nil {
		text = append(text, *obs.Model)
	}
	if record != nil {
		text = append(text, record.ManufacturerName, record.CategoryDescription)
	}
	return mentionsRotorcraft(strings.ToLower(strings.Join(text, " ")))
}

func mentionsRotorcraft(text string) bool {
	if strings.Contains(text, "helicopter") || strings.Contains(text, "rotorcraft") {
		return true
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if rotorcraftMakers[word] {
			return true
		}
	}
	return false
}
