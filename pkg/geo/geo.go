// Package geo provides great-circle distance math, route estimation and
// circular geofences for fleet tracking. All functions are pure.
package geo

import (
	"math"
	"time"
)

const (
	// earthRadiusMeters is the mean Earth radius used for Haversine.
	earthRadiusMeters = 6371000.0

	// metersPerMile converts meters to statute miles.
	metersPerMile = 1609.344

	// fallbackSpeedMPS is assumed road speed (~50 mph) when no live
	// telemetry is available for duration estimates.
	fallbackSpeedMPS = 22.352
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine returns the great-circle distance in meters between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Miles converts meters to statute miles.
func Miles(meters float64) float64 {
	return meters / metersPerMile
}

// MilesBetween returns the great-circle distance in miles between two points.
func MilesBetween(a, b Point) float64 {
	return Miles(Distance(a, b))
}

// Bearing returns the initial great-circle bearing from a to b in degrees
// [0, 360).
func Bearing(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Estimate describes a straight-line route approximation.
type Estimate struct {
	DistanceMiles float64       `json:"distance_miles"`
	Duration      time.Duration `json:"duration"`
}

// EstimateRoute approximates driving distance and duration between two
// points at the fallback road speed. Callers needing live ETAs should
// prefer telemetry-derived speeds.
func EstimateRoute(origin, dest Point) Estimate {
	meters := Distance(origin, dest)
	secs := meters / fallbackSpeedMPS
	return Estimate{
		DistanceMiles: Miles(meters),
		Duration:      time.Duration(secs * float64(time.Second)),
	}
}

// RatePerMile returns dollars per mile for a rate given in cents, or 0 when
// the distance is not positive.
func RatePerMile(rateCents int64, miles float64) float64 {
	if miles <= 0 {
		return 0
	}
	return float64(rateCents) / 100 / miles
}

// Circle is a circular geofence.
type Circle struct {
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Contains reports whether the point lies inside the fence.
func (c Circle) Contains(p Point) bool {
	return Distance(c.Center, p) <= c.RadiusMeters
}
