package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

// Vehicle states derived from the latest fix.
const (
	StateMoving  = "moving"
	StateStopped = "stopped"
	StateStale   = "stale"
	StateUnknown = "unknown"
)

// movingSpeedMPH separates a rolling truck from one idling at a dock.
const movingSpeedMPH = 5.0

// VehicleSnapshot is one fleet-map entry.
type VehicleSnapshot struct {
	Vehicle   domain.Vehicle  `json:"vehicle"`
	Position  domain.Position `json:"position,omitzero"`
	State     string          `json:"state"`
	FixAgeSec int64           `json:"fix_age_sec,omitzero"`
}

// Fleet returns the last-known picture of a carrier's vehicles. Trucks
// that never reported show state unknown; fixes older than the staleness
// window show stale.
func (s *Service) Fleet(ctx context.Context, carrierID string) ([]VehicleSnapshot, error) {
	vehicles, err := s.store.Vehicles().List(ctx, storage.VehicleFilter{CarrierID: carrierID})
	if err != nil {
		return nil, fmt.Errorf("vehicle list: %w", err)
	}
	ids := make([]string, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	last, err := s.store.Telemetry().LastForVehicles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("last fixes: %w", err)
	}

	now := s.now().UTC()
	out := make([]VehicleSnapshot, 0, len(vehicles))
	for _, v := range vehicles {
		snap := VehicleSnapshot{Vehicle: v, State: StateUnknown}
		if p, ok := last[v.ID]; ok {
			age := now.Sub(p.At)
			snap.Position = p
			snap.FixAgeSec = int64(age.Seconds())
			switch {
			case age > s.cfg.StaleAfter:
				snap.State = StateStale
			case p.SpeedMPH > movingSpeedMPH:
				snap.State = StateMoving
			default:
				snap.State = StateStopped
			}
		}
		out = append(out, snap)
	}
	return out, nil
}

// History returns recent fixes for a vehicle, newest first.
func (s *Service) History(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error) {
	if _, err := s.store.Vehicles().Get(ctx, vehicleID); err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	return s.store.Telemetry().History(ctx, vehicleID, since, limit)
}

// Progress reports how far along a load is, from its vehicle's latest
// fix to the destination.
type Progress struct {
	LoadID          string        `json:"load_id"`
	MilesTotal      float64       `json:"miles_total"`
	MilesRemaining  float64       `json:"miles_remaining"`
	PercentComplete float64       `json:"percent_complete"`
	ETA             time.Time     `json:"eta,omitzero"`
	FixAge          time.Duration `json:"-"`
	FixAgeSec       int64         `json:"fix_age_sec"`
}

// LoadProgress computes remaining distance and a naive ETA for a moving
// load. It needs destination coordinates and at least one fix from the
// assigned vehicle.
func (s *Service) LoadProgress(ctx context.Context, loadID string) (Progress, error) {
	l, err := s.store.Loads().Get(ctx, loadID)
	if err != nil {
		return Progress{}, err
	}
	if !l.Dest.HasCoords() {
		return Progress{}, domain.Invalid("load", "destination has no coordinates")
	}
	vehicleID, err := s.resolveVehicle(ctx, l)
	if err != nil {
		return Progress{}, err
	}
	p, ok, err := s.store.Telemetry().Last(ctx, vehicleID)
	if err != nil {
		return Progress{}, fmt.Errorf("last fix: %w", err)
	}
	if !ok {
		return Progress{}, domain.Invalid("load", "vehicle has not reported yet")
	}

	remaining := geo.MilesBetween(p.Point(), l.Dest.Point())
	total := l.DistanceMiles
	if total <= 0 && l.Origin.HasCoords() {
		total = geo.MilesBetween(l.Origin.Point(), l.Dest.Point())
	}

	prog := Progress{
		LoadID:         l.ID,
		MilesTotal:     total,
		MilesRemaining: remaining,
		FixAge:         s.now().UTC().Sub(p.At),
	}
	prog.FixAgeSec = int64(prog.FixAge.Seconds())
	if total > 0 {
		pct := (total - remaining) / total * 100
		prog.PercentComplete = math.Max(0, math.Min(100, pct))
	}
	est := geo.EstimateRoute(p.Point(), l.Dest.Point())
	prog.ETA = s.now().UTC().Add(est.Duration)
	return prog, nil
}

func (s *Service) resolveVehicle(ctx context.Context, l domain.Load) (string, error) {
	if l.VehicleID != "" {
		return l.VehicleID, nil
	}
	if l.DriverID == "" {
		return "", domain.Invalid("load", "no vehicle or driver assigned")
	}
	vehicles, err := s.store.Vehicles().List(ctx, storage.VehicleFilter{CarrierID: l.CarrierID})
	if err != nil {
		return "", fmt.Errorf("vehicle list: %w", err)
	}
	for _, v := range vehicles {
		if v.DriverID == l.DriverID {
			return v.ID, nil
		}
	}
	return "", domain.Invalid("load", "driver has no vehicle on file")
}

// PruneAll trims every vehicle's history to the configured retention.
// The daily maintenance job calls this.
func (s *Service) PruneAll(ctx context.Context) error {
	vehicles, err := s.store.Vehicles().List(ctx, storage.VehicleFilter{})
	if err != nil {
		return fmt.Errorf("vehicle list: %w", err)
	}
	for _, v := range vehicles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.Telemetry().PruneHistory(ctx, v.ID, s.cfg.HistoryKeep); err != nil {
			s.log.Warn("prune failed", logx.Err(err), logx.String("vehicle", v.ID))
		}
	}
	return nil
}
