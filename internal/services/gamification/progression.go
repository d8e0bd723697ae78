package gamification

import (
	"math"

	"eusotrip/internal/domain"
)

// Rarity tiers, cheapest to rarest.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityLegendary = "legendary"
)

// XP scores a driver's base progression from the three tracked metrics.
// Achievement points stack on top of this.
func XP(loadsCompleted int, safetyScore, fuelEfficiency float64) int {
	return loadsCompleted*100 + int(safetyScore*500) + int(fuelEfficiency*300)
}

// Level derives the level from total XP. Level 2 starts at 1000 XP,
// level 3 at 4000, level N at 1000*(N-1)^2.
func Level(xp int) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Sqrt(float64(xp)/1000)) + 1
}

// NextLevelXP returns the total XP at which the given level rolls over.
func NextLevelXP(level int) int {
	if level < 1 {
		level = 1
	}
	return 1000 * level * level
}

// Achievement is a one-time award with a predicate over the profile.
type Achievement struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
	Points int    `json:"points"`

	earned func(domain.DriverProfile) bool
}

var catalog = []Achievement{
	{
		ID:     "zero_incident_run",
		Name:   "Zero Incident Run",
		Rarity: RarityRare,
		Points: 500,
		earned: func(p domain.DriverProfile) bool { return p.CleanLoadStreak >= 10 },
	},
	{
		ID:     "efficiency_master",
		Name:   "Efficiency Master",
		Rarity: RarityUncommon,
		Points: 200,
		earned: func(p domain.DriverProfile) bool { return p.FuelEfficiency >= 0.95 },
	},
	{
		ID:     "speed_demon",
		Name:   "Speed Demon",
		Rarity: RarityCommon,
		Points: 100,
		earned: func(p domain.DriverProfile) bool { return p.OnTimeRate >= 0.99 },
	},
	{
		ID:     "hazmat_specialist",
		Name:   "Hazmat Specialist",
		Rarity: RarityLegendary,
		Points: 1000,
		earned: func(p domain.DriverProfile) bool {
			return p.HazmatLoads >= 50 && p.SafetyScore >= 0.98
		},
	},
}

// Achievements returns the full catalog.
func Achievements() []Achievement {
	out := make([]Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// achievementByID is used when replaying awarded IDs into point totals.
func achievementByID(id string) (Achievement, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}
