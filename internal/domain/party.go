package domain

import (
	"strings"
	"time"

	"eusotrip/pkg/geo"
)

// DutyStatus is a driver's hours-of-service duty state.
type DutyStatus string

const (
	DutyOffDuty DutyStatus = "off_duty"
	DutyOnDuty  DutyStatus = "on_duty"
	DutyDriving DutyStatus = "driving"
)

// Hours-of-service limits, in minutes.
const (
	HOSDriveLimitMin = 11 * 60
	HOSShiftLimitMin = 14 * 60
	HOSCycleLimitMin = 70 * 60
)

// ParseDutyStatus normalizes a wire value into a DutyStatus.
func ParseDutyStatus(s string) (DutyStatus, bool) {
	d := DutyStatus(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DutyOffDuty, DutyOnDuty, DutyDriving:
		return d, true
	}
	return "", false
}

// HOSClock tracks minutes consumed against each hours-of-service limit.
type HOSClock struct {
	DriveMin int `json:"drive_min"`
	ShiftMin int `json:"shift_min"`
	CycleMin int `json:"cycle_min"`
}

// DriveRemaining returns minutes of driving the clock still admits,
// bounded by all three limits.
func (h HOSClock) DriveRemaining() int {
	rem := HOSDriveLimitMin - h.DriveMin
	if r := HOSShiftLimitMin - h.ShiftMin; r < rem {
		rem = r
	}
	if r := HOSCycleLimitMin - h.CycleMin; r < rem {
		rem = r
	}
	if rem < 0 {
		return 0
	}
	return rem
}

// Driver is a CDL holder employed by a carrier.
type Driver struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CarrierID      string     `json:"carrier_id"`
	CDLClass       string     `json:"cdl_class"`
	HazmatEndorsed bool       `json:"hazmat_endorsed"`
	SafetyScore    float64    `json:"safety_score"`
	HomeBase       geo.Point  `json:"home_base"`
	Duty           DutyStatus `json:"duty"`
	HOS            HOSClock   `json:"hos"`
	ActiveLoadID   string     `json:"active_load_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Available reports whether the driver can take a new assignment.
func (d Driver) Available() bool {
	return d.ActiveLoadID == "" && d.Duty != DutyDriving
}

// VehicleStatus is the operational state of a power unit.
type VehicleStatus string

const (
	VehicleActive       VehicleStatus = "active"
	VehicleMaintenance  VehicleStatus = "maintenance"
	VehicleOutOfService VehicleStatus = "out_of_service"
)

// ParseVehicleStatus normalizes a wire value into a VehicleStatus.
func ParseVehicleStatus(s string) (VehicleStatus, bool) {
	v := VehicleStatus(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VehicleActive, VehicleMaintenance, VehicleOutOfService:
		return v, true
	}
	return "", false
}

// Vehicle is a tractor or straight truck in a carrier's fleet.
type Vehicle struct {
	ID            string        `json:"id"`
	UnitNumber    string        `json:"unit_number"`
	VIN           string        `json:"vin,omitempty"`
	CarrierID     string        `json:"carrier_id"`
	DriverID      string        `json:"driver_id,omitempty"`
	Status        VehicleStatus `json:"status"`
	OdometerMiles int64         `json:"odometer_miles,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
