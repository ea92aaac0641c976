package geo

import "math"

const (
	earthRadiusMiles = 3958.8
	milesPerDegLat   = 69.0
)

// BBox is a latitude/longitude bounding box in decimal degrees
type BBox struct {
	LatMin, LonMin, LatMax, LonMax float64
}

// DistanceMiles returns the great-circle distance between two points
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns the box enclosing a circle around a center point
func BoundingBox(lat, lon, radiusMiles float64) BBox {
	dLat := radiusMiles / milesPerDegLat
	cosLat := math.Cos(toRad(lat))
	dLon := 180.0
	if cosLat > 1e-6 {
		dLon = math.Min(180, radiusMiles/(milesPerDegLat*cosLat))
	}
	return BBox{
		LatMin: math.Max(-90, lat-dLat),
		LatMax: math.Min(90, lat+dLat),
		LonMin: math.Max(-180, lon-dLon),
		LonMax: math.Min(180, lon+dLon),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
