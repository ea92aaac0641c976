package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMiles(t *testing.T) {
	// Dallas Love Field to Houston Hobby, about 239 statute miles
	d := DistanceMiles(32.8471, -96.8518, 29.6454, -95.2789)
	assert.InDelta(t, 239, d, 3)

	assert.InDelta(t, 0, DistanceMiles(10, 10, 10, 10), 1e-9)
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox(32.35, -95.30, 69)
	assert.InDelta(t, 31.35, box.LatMin, 1e-9)
	assert.InDelta(t, 33.35, box.LatMax, 1e-9)
	assert.Less(t, box.LonMin, -96.3, "longitude span widens away from the equator")
	assert.Greater(t, box.LonMax, -94.3)

	polar := BoundingBox(89.9, 0, 500)
	assert.Equal(t, 90.0, polar.LatMax)
	assert.Equal(t, -180.0, polar.LonMin)
}
