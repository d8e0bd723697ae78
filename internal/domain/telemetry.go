package domain

import (
	"time"

	"eusotrip/pkg/geo"
)

// Position is one GPS fix reported by a vehicle.
type Position struct {
	VehicleID  string    `json:"vehicle_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedMPH   float64   `json:"speed_mph"`
	HeadingDeg float64   `json:"heading_deg"`
	At         time.Time `json:"at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Point returns the fix location.
func (p Position) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// GeofenceKind classifies a zone's meaning.
type GeofenceKind string

const (
	// GeofenceFacility marks arrivals and departures on load timelines.
	GeofenceFacility GeofenceKind = "facility"
	// GeofenceRestricted raises a violation alert on entry.
	GeofenceRestricted GeofenceKind = "restricted"
)

// Geofence is a named circular zone evaluated against incoming fixes.
type Geofence struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Kind   GeofenceKind `json:"kind"`
	Circle geo.Circle   `json:"circle"`
}
