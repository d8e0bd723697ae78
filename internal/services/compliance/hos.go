package compliance

import (
	"context"
	"fmt"

	"eusotrip/internal/domain"
)

// HOSResult reports a driver's hours-of-service headroom and whether a
// proposed trip fits inside it.
type HOSResult struct {
	DriveMinRemaining int      `json:"drive_min_remaining"`
	ShiftMinRemaining int      `json:"shift_min_remaining"`
	CycleMinRemaining int      `json:"cycle_min_remaining"`
	Compliant         bool     `json:"compliant"`
	Violations        []string `json:"violations,omitzero"`
}

// HOSCheck evaluates the driver's clocks against a trip of tripMinutes.
// Zero tripMinutes just reports the current headroom.
func (s *Service) HOSCheck(ctx context.Context, driverID string, tripMinutes int) (HOSResult, error) {
	d, err := s.store.Drivers().Get(ctx, driverID)
	if err != nil {
		return HOSResult{}, fmt.Errorf("driver %s: %w", driverID, err)
	}
	return evaluateHOS(d.HOS, tripMinutes), nil
}

func evaluateHOS(h domain.HOSClock, tripMinutes int) HOSResult {
	res := HOSResult{
		DriveMinRemaining: clampMin(domain.HOSDriveLimitMin - h.DriveMin),
		ShiftMinRemaining: clampMin(domain.HOSShiftLimitMin - h.ShiftMin),
		CycleMinRemaining: clampMin(domain.HOSCycleLimitMin - h.CycleMin),
	}
	checks := []struct {
		name      string
		remaining int
	}{
		{"11-hour driving limit", res.DriveMinRemaining},
		{"14-hour shift limit", res.ShiftMinRemaining},
		{"70-hour cycle limit", res.CycleMinRemaining},
	}
	for _, c := range checks {
		switch {
		case c.remaining == 0:
			res.Violations = append(res.Violations, c.name+" exhausted")
		case tripMinutes > c.remaining:
			res.Violations = append(res.Violations,
				fmt.Sprintf("%s: trip needs %d min, %d remaining", c.name, tripMinutes, c.remaining))
		}
	}
	res.Compliant = len(res.Violations) == 0
	return res
}

func clampMin(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
