package domain

import "time"

// Recurring schedule horizon bounds, in days.
const (
	DefaultHorizonDays = 28
	MaxHorizonDays     = 90
)

// LoadTemplate is the per-occurrence shape a recurring schedule stamps out.
type LoadTemplate struct {
	Origin      Stop      `json:"origin"`
	Dest        Stop      `json:"dest"`
	Equipment   Equipment `json:"equipment"`
	Commodity   string    `json:"commodity,omitempty"`
	HazmatClass string    `json:"hazmat_class,omitempty"`
	UNNumber    string    `json:"un_number,omitempty"`
	WeightLbs   int       `json:"weight_lbs,omitempty"`
	RateCents   int64     `json:"rate_cents"`
	TransitHrs  int       `json:"transit_hrs,omitempty"`
}

// Schedule expands a weekly weekday pattern into dated loads.
type Schedule struct {
	ID          string         `json:"id"`
	ShipperID   string         `json:"shipper_id"`
	Name        string         `json:"name"`
	Template    LoadTemplate   `json:"template"`
	Weekdays    []time.Weekday `json:"weekdays"`
	PickupHour  int            `json:"pickup_hour"`
	PickupMin   int            `json:"pickup_min"`
	Timezone    string         `json:"timezone"`
	HorizonDays int            `json:"horizon_days"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasWeekday reports whether d is in the schedule's weekday set.
func (s Schedule) HasWeekday(d time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// Occurrence marks one (schedule, date) pair as materialized, keyed so
// re-runs stay idempotent. Date is "2006-01-02" in the schedule's zone.
type Occurrence struct {
	ScheduleID string    `json:"schedule_id"`
	Date       string    `json:"date"`
	LoadID     string    `json:"load_id"`
	CreatedAt  time.Time `json:"created_at"`
}
