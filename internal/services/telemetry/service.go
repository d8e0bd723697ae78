// Package telemetry ingests GPS fixes, keeps fleet snapshots current and
// evaluates geofences on every position advance.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

type Config struct {
	// StaleAfter marks fleet snapshot entries whose latest fix is older.
	StaleAfter time.Duration
	// HistoryKeep bounds per-vehicle history retained by Prune.
	HistoryKeep int
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.HistoryKeep <= 0 {
		c.HistoryKeep = 500
	}
	return c
}

type Service struct {
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "telemetry")),
		now:   time.Now,
	}
}

// Report ingests one fix. The fix always lands in history; last-known
// only advances when the fix is newer than the stored one, so a late
// out-of-order report cannot regress the fleet picture. Geofences are
// evaluated on each advance.
func (s *Service) Report(ctx context.Context, p domain.Position) error {
	if p.VehicleID == "" {
		return domain.Invalid("vehicle_id", "required")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return domain.Invalid("lat", "out of range")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return domain.Invalid("lon", "out of range")
	}
	if _, err := s.store.Vehicles().Get(ctx, p.VehicleID); err != nil {
		return fmt.Errorf("vehicle %s: %w", p.VehicleID, err)
	}

	now := s.now().UTC()
	if p.At.IsZero() {
		p.At = now
	}
	p.At = p.At.UTC()
	p.ReceivedAt = now

	prev, hadPrev, err := s.store.Telemetry().Last(ctx, p.VehicleID)
	if err != nil {
		return fmt.Errorf("last fix: %w", err)
	}

	if err := s.store.Telemetry().AppendHistory(ctx, []domain.Position{p}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	advanced := !hadPrev || p.At.After(prev.At)
	if advanced {
		if err := s.store.Telemetry().UpsertLast(ctx, p); err != nil {
			return fmt.Errorf("upsert last: %w", err)
		}
		s.evalGeofences(ctx, prev, hadPrev, p)
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypePosition,
		Time: now,
		Data: eventbus.PositionEvent{Position: p, LoadID: s.activeLoadID(ctx, p.VehicleID)},
	})
	return nil
}

// evalGeofences publishes an event for every zone boundary the vehicle
// crossed between its previous and new fix. Facility crossings are also
// written onto the active load's timeline.
func (s *Service) evalGeofences(ctx context.Context, prev domain.Position, hadPrev bool, p domain.Position) {
	fences, err := s.store.Geofences().List(ctx)
	if err != nil {
		s.log.Warn("geofence list failed", logx.Err(err))
		return
	}
	if len(fences) == 0 {
		return
	}
	loadID := s.activeLoadID(ctx, p.VehicleID)

	for _, f := range fences {
		wasIn := hadPrev && f.Circle.Contains(prev.Point())
		isIn := f.Circle.Contains(p.Point())
		if wasIn == isIn {
			continue
		}

		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeGeofenceEvent,
			Time: p.ReceivedAt,
			Data: eventbus.GeofenceEvent{Fence: f, Position: p, Entered: isIn, LoadID: loadID},
		})
		if isIn && f.Kind == domain.GeofenceRestricted {
			s.log.Warn("restricted zone entered",
				logx.String("vehicle", p.VehicleID),
				logx.String("zone", f.Name),
				logx.String("load", loadID))
		}

		if f.Kind == domain.GeofenceFacility && loadID != "" {
			s.recordCrossing(ctx, loadID, f, p, isIn)
		}
	}
}

func (s *Service) recordCrossing(ctx context.Context, loadID string, f domain.Geofence, p domain.Position, entered bool) {
	l, err := s.store.Loads().Get(ctx, loadID)
	if err != nil {
		return
	}
	note := "departed " + f.Name
	if entered {
		note = "arrived at " + f.Name
	}
	if err := s.store.Loads().AppendTimeline(ctx, domain.TimelineEntry{
		LoadID: l.ID,
		At:     p.At,
		From:   l.Status,
		To:     l.Status,
		Actor:  "telemetry",
		Note:   note,
	}); err != nil {
		s.log.Warn("timeline append failed", logx.Err(err), logx.String("load", l.ID))
	}
}

// activeLoadID resolves the load a vehicle is working, via its assigned
// driver. Empty when the truck is between loads.
func (s *Service) activeLoadID(ctx context.Context, vehicleID string) string {
	v, err := s.store.Vehicles().Get(ctx, vehicleID)
	if err != nil || v.DriverID == "" {
		return ""
	}
	d, err := s.store.Drivers().Get(ctx, v.DriverID)
	if err != nil {
		return ""
	}
	return d.ActiveLoadID
}
