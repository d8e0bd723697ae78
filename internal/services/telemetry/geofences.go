package telemetry

import (
	"context"
	"fmt"

	"eusotrip/internal/domain"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

// GeofenceInput is the request shape for PutGeofence.
type GeofenceInput struct {
	ID           string              `json:"id,omitzero"`
	Name         string              `json:"name"`
	Kind         domain.GeofenceKind `json:"kind"`
	Lat          float64             `json:"lat"`
	Lon          float64             `json:"lon"`
	RadiusMeters float64             `json:"radius_meters"`
}

// PutGeofence creates or replaces a zone. An empty ID mints a new one.
func (s *Service) PutGeofence(ctx context.Context, in GeofenceInput) (domain.Geofence, error) {
	if in.Name == "" {
		return domain.Geofence{}, domain.Invalid("name", "required")
	}
	if in.Kind != domain.GeofenceFacility && in.Kind != domain.GeofenceRestricted {
		return domain.Geofence{}, domain.Invalid("kind", fmt.Sprintf("unknown kind %q", in.Kind))
	}
	if in.RadiusMeters <= 0 {
		return domain.Geofence{}, domain.Invalid("radius_meters", "must be positive")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lon < -180 || in.Lon > 180 {
		return domain.Geofence{}, domain.Invalid("center", "out of range")
	}

	g := domain.Geofence{
		ID:   in.ID,
		Name: in.Name,
		Kind: in.Kind,
		Circle: geo.Circle{
			Center:       geo.Point{Lat: in.Lat, Lon: in.Lon},
			RadiusMeters: in.RadiusMeters,
		},
	}
	if g.ID == "" {
		g.ID = domain.NewID()
	}
	if err := s.store.Geofences().Put(ctx, g); err != nil {
		return domain.Geofence{}, fmt.Errorf("put geofence: %w", err)
	}
	s.log.Info("geofence stored",
		logx.String("zone", g.Name),
		logx.String("kind", string(g.Kind)),
		logx.Float64("radius_m", g.Circle.RadiusMeters))
	return g, nil
}

func (s *Service) DeleteGeofence(ctx context.Context, id string) error {
	return s.store.Geofences().Delete(ctx, id)
}

func (s *Service) Geofences(ctx context.Context) ([]domain.Geofence, error) {
	return s.store.Geofences().List(ctx)
}

// SeedGeofences loads the configured zones at startup, keeping existing
// IDs stable by name so restarts do not duplicate them.
func (s *Service) SeedGeofences(ctx context.Context, seeds []GeofenceInput) error {
	existing, err := s.store.Geofences().List(ctx)
	if err != nil {
		return fmt.Errorf("geofence list: %w", err)
	}
	byName := make(map[string]domain.Geofence, len(existing))
	for _, g := range existing {
		byName[g.Name] = g
	}
	for _, in := range seeds {
		if prev, ok := byName[in.Name]; ok {
			in.ID = prev.ID
		}
		if _, err := s.PutGeofence(ctx, in); err != nil {
			return fmt.Errorf("seed %q: %w", in.Name, err)
		}
	}
	return nil
}
