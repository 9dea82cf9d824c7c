package spatial

import (
	"github.com/paulmach/orb"
)

// Base32 encoding for geohash
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxGeohashPrecision is the longest geohash produced.
const MaxGeohashPrecision = 12

// EncodeGeohash encodes a lon/lat point into a geohash string
// precision: number of characters in the geohash (1-12)
func EncodeGeohash(p orb.Point, precision int) string {
	precision = min(max(precision, 1), MaxGeohashPrecision)
	lon, lat := p[0], p[1]

	lonRange := [2]float64{-180.0, 180.0}
	latRange := [2]float64{-90.0, 90.0}

	geohash := make([]byte, 0, precision)
	bits, ch := 0, 0
	for even := true; len(geohash) < precision; even = !even {
		if even {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon > mid {
				ch |= 1 << (4 - bits)
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		bits++
		if bits == 5 {
			geohash = append(geohash, base32[ch])
			bits, ch = 0, 0
		}
	}

	return string(geohash)
}

// Approximate cell widths at the equator, indexed by precision - 1.
var geohashCellSizes = [MaxGeohashPrecision]float64{
	5000000, // ±2500 km
	625000,  // ±312.5 km
	123000,  // ±61.5 km
	19500,   // ±9.75 km
	3900,    // ±1.95 km
	610,     // ±305 m
	120,     // ±60 m
	19,      // ±9.5 m
	3.7,     // ±1.85 m
	0.6,     // ±30 cm
	0.12,    // ±6 cm
	0.019,   // ±0.95 cm
}

// GeohashCellSize returns the approximate cell size in meters for a given precision
func GeohashCellSize(precision int) float64 {
	if precision < 1 || precision > MaxGeohashPrecision {
		return 0
	}
	return geohashCellSizes[precision-1]
}

// GeohashPrecisionForDistance returns the coarsest precision whose cells are
// no wider than distanceMeters.
func GeohashPrecisionForDistance(distanceMeters float64) int {
	for precision := 1; precision <= MaxGeohashPrecision; precision++ {
		if GeohashCellSize(precision) <= distanceMeters {
			return precision
		}
	}
	return MaxGeohashPrecision
}
