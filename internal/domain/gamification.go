package domain

import "time"

// DriverProfile is the gamification state derived from a driver's history.
type DriverProfile struct {
	DriverID        string    `json:"driver_id"`
	XP              int       `json:"xp"`
	Level           int       `json:"level"`
	LoadsCompleted  int       `json:"loads_completed"`
	HazmatLoads     int       `json:"hazmat_loads"`
	CleanLoadStreak int       `json:"clean_load_streak"`
	SafetyScore     float64   `json:"safety_score"`
	FuelEfficiency  float64   `json:"fuel_efficiency"`
	OnTimeRate      float64   `json:"on_time_rate"`
	Achievements    []string  `json:"achievements"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasAchievement reports whether id was already awarded.
func (p DriverProfile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a == id {
			return true
		}
	}
	return false
}
