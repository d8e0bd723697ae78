package domain

import "time"

// Compliance document kinds tracked for expiry.
const (
	DocCDL              = "cdl"
	DocMedicalCard      = "medical_card"
	DocHazmatEndorse    = "hazmat_endorsement"
	DocInsurance        = "insurance"
	DocVehicleInspClass = "annual_inspection"
)

// ComplianceDoc is a dated credential held by a driver or carrier. One row
// per (subject, kind); renewals replace it.
type ComplianceDoc struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Kind      string    `json:"kind"`
	Number    string    `json:"number,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Inspection is a DVIR-style vehicle inspection record.
type Inspection struct {
	ID           string    `json:"id"`
	VehicleID    string    `json:"vehicle_id"`
	DriverID     string    `json:"driver_id,omitempty"`
	At           time.Time `json:"at"`
	Defects      []string  `json:"defects,omitempty"`
	OutOfService bool      `json:"out_of_service"`
}

// HazmatIncident records an ERG guide lookup during an incident response.
type HazmatIncident struct {
	ID        string    `json:"id"`
	LoadID    string    `json:"load_id,omitempty"`
	UNNumber  string    `json:"un_number"`
	GuideNo   int       `json:"guide_no"`
	Location  string    `json:"location,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
