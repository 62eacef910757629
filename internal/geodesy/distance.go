// Package geodesy computes distances between coordinate pairs.
//
// Two modes exist. Haversine is the great-circle distance on a sphere of radius
// 6371 km. Planar is the Euclidean distance in degree space scaled by 111 km per
// degree; it is only meaningful for points within a few degrees of each other
// around 40°N and is what the risk formula constants were calibrated against.
// Swapping one for the other changes every proximity feature.
package geodesy

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadiusKm is the mean Earth radius used by Haversine.
	EarthRadiusKm = 6371.0

	// KmPerDegree converts planar degree distances to kilometers.
	KmPerDegree = 111.0
)

// Haversine returns the great-circle distance in km between two points given
// in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon
	// Rounding can push a marginally outside [0, 1] for antipodal points.
	a = clamp(a, 0, 1)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// Planar returns the approximate distance in km between two points given in
// degrees: sqrt(dlat² + dlon²) * 111.
func Planar(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Hypot(lat1-lat2, lon1-lon2) * KmPerDegree
}

// HaversinePoints is Haversine for orb points (x = lon, y = lat).
func HaversinePoints(a, b orb.Point) float64 {
	return Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// PlanarPoints is Planar for orb points (x = lon, y = lat).
func PlanarPoints(a, b orb.Point) float64 {
	return Planar(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// Metric is a distance function over degree coordinates returning km.
type Metric func(lat1, lon1, lat2, lon2 float64) float64

// MetricByName resolves "haversine" or "planar". Unknown names return false.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "haversine":
		return Haversine, true
	case "planar":
		return Planar, true
	default:
		return nil, false
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
