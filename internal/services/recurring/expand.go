package recurring

import (
	"time"

	"eusotrip/internal/domain"
)

// Expand walks each calendar day in [from, from+horizon) in the
// schedule's timezone and returns one pickup instant for every day whose
// weekday is in the schedule's set, ascending. Pure function.
func Expand(s domain.Schedule, from time.Time) []time.Time {
	loc := scheduleLocation(s)
	horizon := clampHorizon(s.HorizonDays)

	day := from.In(loc)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	var out []time.Time
	for i := 0; i < horizon; i++ {
		d := day.AddDate(0, 0, i)
		if !s.HasWeekday(d.Weekday()) {
			continue
		}
		out = append(out, time.Date(d.Year(), d.Month(), d.Day(), s.PickupHour, s.PickupMin, 0, 0, loc))
	}
	return out
}

// OccurrenceDate is the idempotency key for one expanded pickup.
func OccurrenceDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func scheduleLocation(s domain.Schedule) *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
