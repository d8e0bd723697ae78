package eventbus

import "eusotrip/internal/domain"

// Typed payloads carried in Event.Data. Subscribers type-assert on these
// after switching on Event.Type.

// LoadEvent accompanies load.created and load.assigned.
type LoadEvent struct {
	Load domain.Load `json:"load"`
}

// StatusChange accompanies load.status_changed.
type StatusChange struct {
	Load  domain.Load `json:"load"`
	From  string      `json:"from"`
	Actor string      `json:"actor,omitzero"`
}

// BidEvent accompanies bid.submitted and bid.accepted.
type BidEvent struct {
	Bid  domain.Bid  `json:"bid"`
	Load domain.Load `json:"load"`
}

// PositionEvent accompanies telemetry.position.
type PositionEvent struct {
	Position domain.Position `json:"position"`
	LoadID   string          `json:"load_id,omitzero"`
}

// GeofenceEvent accompanies geofence.event. Entered is false on exit.
type GeofenceEvent struct {
	Fence    domain.Geofence `json:"fence"`
	Position domain.Position `json:"position"`
	Entered  bool            `json:"entered"`
	LoadID   string          `json:"load_id,omitzero"`
}

// ComplianceAlert accompanies compliance.alert. Kind names the
// expiring document or the HOS limit that tripped.
type ComplianceAlert struct {
	SubjectID string `json:"subject_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Critical  bool   `json:"critical"`
}

// AchievementEvent accompanies gamification.achievement.
type AchievementEvent struct {
	DriverID      string `json:"driver_id"`
	AchievementID string `json:"achievement_id"`
	XPAward       int    `json:"xp_award"`
}

// PaymentEvent accompanies billing.payment_received.
type PaymentEvent struct {
	Invoice domain.Invoice `json:"invoice"`
	Payment domain.Payment `json:"payment"`
}

// HazmatEvent accompanies hazmat.incident.
type HazmatEvent struct {
	Incident domain.HazmatIncident `json:"incident"`
}

// JobFailure accompanies jobs.failed.
type JobFailure struct {
	Job   string `json:"job"`
	Error string `json:"error"`
}
