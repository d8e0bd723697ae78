package domain

import (
	"strings"
	"time"

	"eusotrip/pkg/geo"
)

// LoadStatus is a stop on the load lifecycle.
type LoadStatus string

const (
	StatusPending   LoadStatus = "pending"
	StatusBooked    LoadStatus = "booked"
	StatusLoading   LoadStatus = "loading"
	StatusInTransit LoadStatus = "in_transit"
	StatusDelayed   LoadStatus = "delayed"
	StatusDelivered LoadStatus = "delivered"
	StatusCancelled LoadStatus = "cancelled"
	StatusCompleted LoadStatus = "completed"
)

// loadTransitions is the allowed status graph. Missing keys are terminal.
var loadTransitions = map[LoadStatus][]LoadStatus{
	StatusPending:   {StatusBooked, StatusCancelled},
	StatusBooked:    {StatusLoading, StatusCancelled},
	StatusLoading:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusDelayed},
	StatusDelayed:   {StatusInTransit, StatusDelivered},
	StatusDelivered: {StatusCompleted},
}

// ParseLoadStatus normalizes a wire value into a LoadStatus.
func ParseLoadStatus(s string) (LoadStatus, bool) {
	st := LoadStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusBooked, StatusLoading, StatusInTransit,
		StatusDelayed, StatusDelivered, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to LoadStatus) bool {
	for _, next := range loadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transition.
func (s LoadStatus) Terminal() bool {
	return len(loadTransitions[s]) == 0
}

// Equipment is the trailer type a load requires.
type Equipment string

const (
	EquipmentVan     Equipment = "van"
	EquipmentReefer  Equipment = "reefer"
	EquipmentFlatbed Equipment = "flatbed"
	EquipmentTanker  Equipment = "tanker"
)

// ValidEquipment reports whether e is a known trailer type.
func ValidEquipment(e Equipment) bool {
	switch e {
	case EquipmentVan, EquipmentReefer, EquipmentFlatbed, EquipmentTanker:
		return true
	}
	return false
}

// Stop is one end of a load: a named facility with an address and optional
// coordinates.
type Stop struct {
	Facility string  `json:"facility"`
	City     string  `json:"city"`
	State    string  `json:"state"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// HasCoords reports whether the stop carries usable coordinates.
func (s Stop) HasCoords() bool {
	return s.Lat != 0 || s.Lon != 0
}

// Point returns the stop location for distance math.
func (s Stop) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lon: s.Lon}
}

// Load is a freight shipment record.
type Load struct {
	ID            string     `json:"id"`
	Ref           string     `json:"ref"`
	ShipperID     string     `json:"shipper_id"`
	CarrierID     string     `json:"carrier_id,omitempty"`
	DriverID      string     `json:"driver_id,omitempty"`
	VehicleID     string     `json:"vehicle_id,omitempty"`
	ScheduleID    string     `json:"schedule_id,omitempty"`
	Origin        Stop       `json:"origin"`
	Dest          Stop       `json:"dest"`
	Equipment     Equipment  `json:"equipment"`
	Commodity     string     `json:"commodity,omitempty"`
	HazmatClass   string     `json:"hazmat_class,omitempty"`
	UNNumber      string     `json:"un_number,omitempty"`
	WeightLbs     int        `json:"weight_lbs,omitempty"`
	RateCents     int64      `json:"rate_cents"`
	DistanceMiles float64    `json:"distance_miles,omitempty"`
	PickupAt      time.Time  `json:"pickup_at"`
	DeliverBy     time.Time  `json:"deliver_by"`
	Status        LoadStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Hazmat reports whether the load carries regulated material.
func (l Load) Hazmat() bool {
	return l.UNNumber != "" || l.HazmatClass != ""
}

// Assigned reports whether a carrier holds the load.
func (l Load) Assigned() bool {
	return l.CarrierID != ""
}

// TimelineEntry records one status change on a load.
type TimelineEntry struct {
	LoadID string     `json:"load_id"`
	At     time.Time  `json:"at"`
	From   LoadStatus `json:"from,omitempty"`
	To     LoadStatus `json:"to"`
	Actor  string     `json:"actor,omitempty"`
	Note   string     `json:"note,omitempty"`
}
