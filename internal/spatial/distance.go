package spatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusMeters is Earth's mean radius
const EarthRadiusMeters = 6371000.0

func latLng(p orb.Point) s2.LatLng {
	return s2.LatLngFromDegrees(p[1], p[0])
}

// HaversineDistance calculates the great-circle distance in meters between
// two lon/lat points
func HaversineDistance(a, b orb.Point) float64 {
	return latLng(a).Distance(latLng(b)).Radians() * EarthRadiusMeters
}

// RadiusMeters converts a circle radius given in degrees around a lon/lat
// centre into meters, averaging its north-south and east-west extents.
// Latitudes are clamped to the poles.
func RadiusMeters(center orb.Point, radiusDeg float64) float64 {
	if radiusDeg <= 0 {
		return 0
	}
	north := orb.Point{center[0], math.Min(center[1]+radiusDeg, 90)}
	east := orb.Point{center[0] + math.Min(radiusDeg, 180), center[1]}
	return (HaversineDistance(center, north) + HaversineDistance(center, east)) / 2
}
