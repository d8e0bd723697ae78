package loads

import (
	"context"
	"fmt"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
)

// BoardQuery narrows the open-load board. Zero fields are ignored.
type BoardQuery struct {
	OriginState  string           `json:"origin_state,omitzero"`
	Equipment    domain.Equipment `json:"equipment,omitzero"`
	HazmatOnly   bool             `json:"hazmat_only,omitzero"`
	MinRateCents int64            `json:"min_rate_cents,omitzero"`
	Limit        int              `json:"limit,omitzero"`
}

// MarketStats summarizes the board result set, not the whole market.
type MarketStats struct {
	OpenLoads        int     `json:"open_loads"`
	AvgRatePerMile   float64 `json:"avg_rate_per_mile"`
	LoadToTruckRatio float64 `json:"load_to_truck_ratio"`
}

type BoardResult struct {
	Loads []domain.Load `json:"loads"`
	Stats MarketStats   `json:"stats"`
}

// Board lists open unassigned loads for carriers, soonest pickup first,
// with market stats computed over the filtered set.
func (s *Service) Board(ctx context.Context, q BoardQuery) (BoardResult, error) {
	if q.Equipment != "" && !domain.ValidEquipment(q.Equipment) {
		return BoardResult{}, domain.Invalid("equipment", fmt.Sprintf("unknown type %q", q.Equipment))
	}

	ls, err := s.store.Loads().Board(ctx, storage.BoardFilter{
		OriginState:  q.OriginState,
		Equipment:    q.Equipment,
		HazmatOnly:   q.HazmatOnly,
		MinRateCents: q.MinRateCents,
		Limit:        clampLimit(q.Limit),
	})
	if err != nil {
		return BoardResult{}, fmt.Errorf("board query: %w", err)
	}

	stats := MarketStats{OpenLoads: len(ls)}
	var rpmSum float64
	var rpmN int
	for _, l := range ls {
		if l.DistanceMiles > 0 {
			rpmSum += geo.RatePerMile(l.RateCents, l.DistanceMiles)
			rpmN++
		}
	}
	if rpmN > 0 {
		stats.AvgRatePerMile = rpmSum / float64(rpmN)
	}

	// Trucks without an active load are the denominator. A market with no
	// free trucks reports a zero ratio rather than infinity.
	free, err := s.store.Drivers().List(ctx, storage.DriverFilter{AvailableOnly: true})
	if err != nil {
		return BoardResult{}, fmt.Errorf("driver query: %w", err)
	}
	if len(free) > 0 {
		stats.LoadToTruckRatio = float64(len(ls)) / float64(len(free))
	}

	return BoardResult{Loads: ls, Stats: stats}, nil
}
