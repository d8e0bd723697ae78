// Package dispatch ranks available drivers for a load by hazmat fit,
// safety record and proximity to the origin.
package dispatch

import (
	"context"
	"math"
	"sort"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

// Scoring weights. Hazmat fit dominates, then safety, then proximity.
const (
	hazmatWeight    = 50.0
	safetyWeight    = 30.0
	proximityWeight = 20.0

	// minQualifyingScore filters out drivers that only clear the hazmat
	// gate; a recommendation needs more than the base component.
	minQualifyingScore = 50.0

	// maxTripMinutes caps the HOS demand of a single dispatch leg. Longer
	// hauls become multi-day trips, so only one duty day is checked.
	maxTripMinutes = 660
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(logx.String("component", "dispatch")),
	}
}

// Score rates a driver for a load in [0, 100].
//
// Hazmat loads award the 50-point base only to endorsed drivers;
// non-hazmat loads award it to everyone. Safety contributes up to 30
// from the driver's [0, 1] score. Proximity contributes up to 20,
// decaying linearly with the Manhattan distance in degrees between the
// load origin and the driver's home base.
func Score(l domain.Load, d domain.Driver) float64 {
	var score float64
	if !l.Hazmat() || d.HazmatEndorsed {
		score += hazmatWeight
	}
	score += d.SafetyScore * safetyWeight

	dist := math.Abs(l.Origin.Lat-d.HomeBase.Lat) + math.Abs(l.Origin.Lon-d.HomeBase.Lon)
	if p := proximityWeight * (1 - dist/100); p > 0 {
		score += p
	}
	return score
}

// TripMinutes estimates driving time for the load at board speed, capped
// at one duty day. Loads without a usable distance estimate demand zero
// minutes and pass every HOS gate.
func TripMinutes(l domain.Load) int {
	miles := l.DistanceMiles
	if miles <= 0 && l.Origin.HasCoords() && l.Dest.HasCoords() {
		miles = geo.MilesBetween(l.Origin.Point(), l.Dest.Point())
	}
	if miles <= 0 {
		return 0
	}
	minutes := int(math.Round(miles / 50.0 * 60.0))
	if minutes > maxTripMinutes {
		return maxTripMinutes
	}
	return minutes
}

// Recommendation pairs a candidate driver with the score that ranked it.
type Recommendation struct {
	Driver            domain.Driver `json:"driver"`
	Score             float64       `json:"score"`
	TripMinutes       int           `json:"trip_minutes"`
	DriveMinRemaining int           `json:"drive_min_remaining"`
}

// Recommend returns qualifying drivers for the load, best first. A
// driver qualifies when off duty or on duty but not rolling, has no
// active load, has hours left for the trip and scores above the floor.
func (s *Service) Recommend(ctx context.Context, loadID string, limit int) ([]Recommendation, error) {
	l, err := s.store.Loads().Get(ctx, loadID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.Drivers().List(ctx, storage.DriverFilter{})
	if err != nil {
		return nil, err
	}

	trip := TripMinutes(l)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var out []Recommendation
	for _, d := range drivers {
		if !d.Available() {
			continue
		}
		rem := d.HOS.DriveRemaining()
		if rem < trip {
			continue
		}
		score := Score(l, d)
		if score <= minQualifyingScore {
			continue
		}
		out = append(out, Recommendation{
			Driver:            d,
			Score:             score,
			TripMinutes:       trip,
			DriveMinRemaining: rem,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}

	s.log.Debug("dispatch ranked",
		logx.String("load", loadID),
		logx.Int("candidates", len(drivers)),
		logx.Int("qualified", len(out)),
		logx.Int("trip_min", trip))
	return out, nil
}
