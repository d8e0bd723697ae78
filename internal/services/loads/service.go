// Package loads owns the load lifecycle: creation, board listing, carrier
// assignment and the status state machine.
package loads

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

// List limits. Callers asking for more than maxLimit get maxLimit.
const (
	defaultLimit = 50
	maxLimit     = 100
)

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "loads")),
		now:   time.Now,
	}
}

// CreateInput is the request shape for Create. ScheduleID is set only by
// the recurring materializer.
type CreateInput struct {
	ShipperID   string           `json:"shipper_id"`
	Origin      domain.Stop      `json:"origin"`
	Dest        domain.Stop      `json:"dest"`
	Equipment   domain.Equipment `json:"equipment"`
	Commodity   string           `json:"commodity,omitzero"`
	HazmatClass string           `json:"hazmat_class,omitzero"`
	UNNumber    string           `json:"un_number,omitzero"`
	WeightLbs   int              `json:"weight_lbs,omitzero"`
	RateCents   int64            `json:"rate_cents"`
	PickupAt    time.Time        `json:"pickup_at"`
	DeliverBy   time.Time        `json:"deliver_by,omitzero"`
	ScheduleID  string           `json:"-"`
	Actor       string           `json:"-"`
}

func (in CreateInput) validate() error {
	if in.ShipperID == "" {
		return domain.Invalid("shipper_id", "required")
	}
	if in.Origin.City == "" || in.Origin.State == "" {
		return domain.Invalid("origin", "city and state required")
	}
	if in.Dest.City == "" || in.Dest.State == "" {
		return domain.Invalid("dest", "city and state required")
	}
	if !domain.ValidEquipment(in.Equipment) {
		return domain.Invalid("equipment", fmt.Sprintf("unknown type %q", in.Equipment))
	}
	if in.RateCents <= 0 {
		return domain.Invalid("rate_cents", "must be positive")
	}
	if in.PickupAt.IsZero() {
		return domain.Invalid("pickup_at", "required")
	}
	if !in.DeliverBy.IsZero() && in.DeliverBy.Before(in.PickupAt) {
		return domain.Invalid("deliver_by", "before pickup window")
	}
	return nil
}

// Create validates the input, assigns a reference number and persists the
// load in status pending. Distance is estimated from stop coordinates when
// both ends carry them.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Load, error) {
	start := time.Now()
	if err := in.validate(); err != nil {
		return domain.Load{}, err
	}

	seq, err := s.store.Loads().NextRef(ctx)
	if err != nil {
		return domain.Load{}, fmt.Errorf("next ref: %w", err)
	}

	now := s.now().UTC()
	l := domain.Load{
		ID:          domain.NewID(),
		Ref:         fmt.Sprintf("LD-%05d", seq),
		ShipperID:   in.ShipperID,
		ScheduleID:  in.ScheduleID,
		Origin:      in.Origin,
		Dest:        in.Dest,
		Equipment:   in.Equipment,
		Commodity:   in.Commodity,
		HazmatClass: in.HazmatClass,
		UNNumber:    in.UNNumber,
		WeightLbs:   in.WeightLbs,
		RateCents:   in.RateCents,
		PickupAt:    in.PickupAt.UTC(),
		DeliverBy:   in.DeliverBy.UTC(),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DeliverBy.IsZero() {
		l.DeliverBy = time.Time{}
	}
	if l.Origin.HasCoords() && l.Dest.HasCoords() {
		l.DistanceMiles = geo.MilesBetween(l.Origin.Point(), l.Dest.Point())
	}

	err = s.store.Loads().Create(ctx, l)
	s.audit(ctx, in.Actor, "load.create", l.ID, start, err)
	if err != nil {
		return domain.Load{}, fmt.Errorf("create load: %w", err)
	}
	if terr := s.store.Loads().AppendTimeline(ctx, domain.TimelineEntry{
		LoadID: l.ID, At: now, To: domain.StatusPending, Actor: in.Actor, Note: "created",
	}); terr != nil {
		s.log.Warn("timeline append failed", logx.Err(terr), logx.String("load", l.ID))
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeLoadCreated,
		Time: now,
		Data: eventbus.LoadEvent{Load: l},
	})
	s.log.Info("load created",
		logx.String("load", l.ID),
		logx.String("ref", l.Ref),
		logx.String("lane", l.Origin.State+"->"+l.Dest.State))
	return l, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Load, error) {
	return s.store.Loads().Get(ctx, id)
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Statuses  []domain.LoadStatus
	ShipperID string
	CarrierID string
	DriverID  string
	Limit     int
}

// List returns loads newest first, limit clamped to [1, 100] with a
// default of 50.
func (s *Service) List(ctx context.Context, f Filter) ([]domain.Load, error) {
	return s.store.Loads().List(ctx, storage.LoadFilter{
		Statuses:  f.Statuses,
		ShipperID: f.ShipperID,
		CarrierID: f.CarrierID,
		DriverID:  f.DriverID,
		Limit:     clampLimit(f.Limit),
	})
}

// UpdateStatus moves the load along the lifecycle, records the timeline
// entry and publishes load.status_changed.
func (s *Service) UpdateStatus(ctx context.Context, id string, next domain.LoadStatus, actor, note string) (domain.Load, error) {
	start := time.Now()
	l, err := s.store.Loads().Get(ctx, id)
	if err != nil {
		return domain.Load{}, err
	}
	if !domain.CanTransition(l.Status, next) {
		return domain.Load{}, &domain.TransitionError{From: l.Status, To: next}
	}

	prev := l.Status
	now := s.now().UTC()
	l.Status = next
	l.UpdatedAt = now

	err = s.store.Loads().Update(ctx, l)
	s.audit(ctx, actor, "load.status."+string(next), l.ID, start, err)
	if err != nil {
		return domain.Load{}, fmt.Errorf("update load: %w", err)
	}
	if terr := s.store.Loads().AppendTimeline(ctx, domain.TimelineEntry{
		LoadID: l.ID, At: now, From: prev, To: next, Actor: actor, Note: note,
	}); terr != nil {
		s.log.Warn("timeline append failed", logx.Err(terr), logx.String("load", l.ID))
	}

	if next == domain.StatusDelivered || next == domain.StatusCancelled {
		s.releaseDriver(ctx, l)
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeLoadStatusChanged,
		Time: now,
		Data: eventbus.StatusChange{Load: l, From: string(prev), Actor: actor},
	})
	s.log.Info("load status changed",
		logx.String("load", l.ID),
		logx.String("from", string(prev)),
		logx.String("to", string(next)))
	return l, nil
}

// Assign books a carrier (and optionally a driver) onto a pending or
// booked load. Hazmat loads require an endorsed driver.
func (s *Service) Assign(ctx context.Context, id, carrierID, driverID, actor string) (domain.Load, error) {
	start := time.Now()
	if carrierID == "" {
		return domain.Load{}, domain.Invalid("carrier_id", "required")
	}
	l, err := s.store.Loads().Get(ctx, id)
	if err != nil {
		return domain.Load{}, err
	}
	if l.Status != domain.StatusPending && l.Status != domain.StatusBooked {
		return domain.Load{}, fmt.Errorf("load %s is %s: %w", l.Ref, l.Status, domain.ErrConflict)
	}

	var drv domain.Driver
	if driverID != "" {
		drv, err = s.store.Drivers().Get(ctx, driverID)
		if err != nil {
			return domain.Load{}, fmt.Errorf("driver %s: %w", driverID, err)
		}
		if drv.CarrierID != carrierID {
			return domain.Load{}, domain.Invalid("driver_id", "driver belongs to another carrier")
		}
		if l.Hazmat() && !drv.HazmatEndorsed {
			return domain.Load{}, domain.Invalid("driver_id", "hazmat load requires an endorsed driver")
		}
		if drv.ActiveLoadID != "" && drv.ActiveLoadID != l.ID {
			return domain.Load{}, fmt.Errorf("driver %s already on load %s: %w", drv.Name, drv.ActiveLoadID, domain.ErrConflict)
		}
	}

	prev := l.Status
	now := s.now().UTC()
	l.CarrierID = carrierID
	l.DriverID = driverID
	l.UpdatedAt = now
	if l.Status == domain.StatusPending {
		l.Status = domain.StatusBooked
	}

	err = s.store.Loads().Update(ctx, l)
	s.audit(ctx, actor, "load.assign", l.ID, start, err)
	if err != nil {
		return domain.Load{}, fmt.Errorf("update load: %w", err)
	}
	if driverID != "" {
		drv.ActiveLoadID = l.ID
		if derr := s.store.Drivers().Update(ctx, drv); derr != nil {
			s.log.Warn("driver update failed", logx.Err(derr), logx.String("driver", driverID))
		}
	}
	if prev != l.Status {
		if terr := s.store.Loads().AppendTimeline(ctx, domain.TimelineEntry{
			LoadID: l.ID, At: now, From: prev, To: l.Status, Actor: actor, Note: "assigned to " + carrierID,
		}); terr != nil {
			s.log.Warn("timeline append failed", logx.Err(terr), logx.String("load", l.ID))
		}
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeLoadAssigned,
		Time: now,
		Data: eventbus.LoadEvent{Load: l},
	})
	s.log.Info("load assigned",
		logx.String("load", l.ID),
		logx.String("carrier", carrierID),
		logx.String("driver", driverID))
	return l, nil
}

// Cancel aborts a load that has not left the origin. In-transit and later
// stages cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (domain.Load, error) {
	if reason == "" {
		reason = "cancelled"
	}
	return s.UpdateStatus(ctx, id, domain.StatusCancelled, actor, reason)
}

// Timeline returns the load's status history, oldest first.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEntry, error) {
	if _, err := s.store.Loads().Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Loads().Timeline(ctx, id)
}

// releaseDriver clears the driver's active-load marker when the load
// reaches a state that frees the truck.
func (s *Service) releaseDriver(ctx context.Context, l domain.Load) {
	if l.DriverID == "" {
		return
	}
	drv, err := s.store.Drivers().Get(ctx, l.DriverID)
	if err != nil {
		return
	}
	if drv.ActiveLoadID != l.ID {
		return
	}
	drv.ActiveLoadID = ""
	if err := s.store.Drivers().Update(ctx, drv); err != nil {
		s.log.Warn("driver release failed", logx.Err(err), logx.String("driver", drv.ID))
	}
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "load",
		EntityID: entityID,
		OK:       err == nil,
		TookMS:   time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := s.store.AppendAudit(ctx, entry); aerr != nil {
		s.log.Warn("audit append failed", logx.Err(aerr), logx.String("action", action))
	}
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
