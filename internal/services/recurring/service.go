// Package recurring manages weekly load schedules and stamps them out
// into real loads, one create per occurrence.
package recurring

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/loads"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// Creator issues one load per materialized occurrence. *loads.Service
// satisfies it.
type Creator interface {
	Create(ctx context.Context, in loads.CreateInput) (domain.Load, error)
}

type Config struct {
	// DefaultHorizonDays applies to schedules created without a horizon.
	DefaultHorizonDays int
	// DefaultTimezone applies to schedules created without a zone. Empty
	// leaves occurrence expansion in UTC.
	DefaultTimezone string
}

func (c Config) withDefaults() Config {
	if c.DefaultHorizonDays <= 0 {
		c.DefaultHorizonDays = domain.DefaultHorizonDays
	}
	if c.DefaultHorizonDays > domain.MaxHorizonDays {
		c.DefaultHorizonDays = domain.MaxHorizonDays
	}
	return c
}

type Service struct {
	cfg     Config
	store   storage.Store
	creator Creator
	log     logx.Logger

	now func() time.Time
}

func New(cfg Config, store storage.Store, creator Creator, log logx.Logger) *Service {
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		creator: creator,
		log:     log.With(logx.String("component", "recurring")),
		now:     time.Now,
	}
}

// CreateInput is the request shape for a new schedule.
type CreateInput struct {
	ShipperID   string              `json:"shipper_id"`
	Name        string              `json:"name"`
	Template    domain.LoadTemplate `json:"template"`
	Weekdays    []time.Weekday      `json:"weekdays"`
	PickupHour  int                 `json:"pickup_hour"`
	PickupMin   int                 `json:"pickup_min"`
	Timezone    string              `json:"timezone,omitzero"`
	HorizonDays int                 `json:"horizon_days,omitzero"`
	Actor       string              `json:"-"`
}

func (in CreateInput) validate() error {
	if in.ShipperID == "" {
		return domain.Invalid("shipper_id", "required")
	}
	if len(in.Weekdays) == 0 {
		return domain.Invalid("weekdays", "at least one weekday required")
	}
	for _, d := range in.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return domain.Invalid("weekdays", fmt.Sprintf("unknown weekday %d", d))
		}
	}
	if in.PickupHour < 0 || in.PickupHour > 23 {
		return domain.Invalid("pickup_hour", "must be 0-23")
	}
	if in.PickupMin < 0 || in.PickupMin > 59 {
		return domain.Invalid("pickup_min", "must be 0-59")
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return domain.Invalid("timezone", fmt.Sprintf("unknown zone %q", in.Timezone))
		}
	}
	t := in.Template
	if t.Origin.City == "" || t.Origin.State == "" {
		return domain.Invalid("template.origin", "city and state required")
	}
	if t.Dest.City == "" || t.Dest.State == "" {
		return domain.Invalid("template.dest", "city and state required")
	}
	if !domain.ValidEquipment(t.Equipment) {
		return domain.Invalid("template.equipment", fmt.Sprintf("unknown type %q", t.Equipment))
	}
	if t.RateCents <= 0 {
		return domain.Invalid("template.rate_cents", "must be positive")
	}
	return nil
}

// Create stores a new schedule, active immediately. The horizon is
// clamped to [1, 90] days with a default of 28.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Schedule, error) {
	start := time.Now()
	if err := in.validate(); err != nil {
		return domain.Schedule{}, err
	}

	tz := in.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	horizon := in.HorizonDays
	if horizon <= 0 {
		horizon = s.cfg.DefaultHorizonDays
	}

	now := s.now().UTC()
	sched := domain.Schedule{
		ID:          domain.NewID(),
		ShipperID:   in.ShipperID,
		Name:        in.Name,
		Template:    in.Template,
		Weekdays:    dedupeWeekdays(in.Weekdays),
		PickupHour:  in.PickupHour,
		PickupMin:   in.PickupMin,
		Timezone:    tz,
		HorizonDays: clampHorizon(horizon),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.Schedules().Create(ctx, sched)
	s.audit(ctx, in.Actor, "schedule.create", sched.ID, start, err)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	s.log.Info("schedule created",
		logx.String("schedule", sched.ID),
		logx.String("shipper", sched.ShipperID),
		logx.Int("weekdays", len(sched.Weekdays)))
	return sched, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Schedule, error) {
	return s.store.Schedules().Get(ctx, id)
}

func (s *Service) List(ctx context.Context, shipperID string, activeOnly bool) ([]domain.Schedule, error) {
	return s.store.Schedules().List(ctx, storage.ScheduleFilter{
		ShipperID:  shipperID,
		ActiveOnly: activeOnly,
	})
}

// Pause stops the daily sweep from materializing the schedule.
func (s *Service) Pause(ctx context.Context, id, actor string) (domain.Schedule, error) {
	return s.setActive(ctx, id, actor, false)
}

// Resume re-enables a paused schedule.
func (s *Service) Resume(ctx context.Context, id, actor string) (domain.Schedule, error) {
	return s.setActive(ctx, id, actor, true)
}

func (s *Service) setActive(ctx context.Context, id, actor string, active bool) (domain.Schedule, error) {
	start := time.Now()
	sched, err := s.store.Schedules().Get(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if sched.Active == active {
		return sched, nil
	}
	sched.Active = active
	sched.UpdatedAt = s.now().UTC()

	action := "schedule.pause"
	if active {
		action = "schedule.resume"
	}
	err = s.store.Schedules().Update(ctx, sched)
	s.audit(ctx, actor, action, sched.ID, start, err)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("update schedule: %w", err)
	}
	s.log.Info("schedule toggled", logx.String("schedule", id), logx.Bool("active", active))
	return sched, nil
}

// Delete removes the schedule. Loads already materialized stay.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	start := time.Now()
	err := s.store.Schedules().Delete(ctx, id)
	s.audit(ctx, actor, "schedule.delete", id, start, err)
	if err != nil {
		return err
	}
	s.log.Info("schedule deleted", logx.String("schedule", id))
	return nil
}

// Occurrences lists what the schedule has already materialized.
func (s *Service) Occurrences(ctx context.Context, id string) ([]domain.Occurrence, error) {
	if _, err := s.store.Schedules().Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Schedules().ListOccurrences(ctx, id)
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "schedule",
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

func clampHorizon(days int) int {
	if days <= 0 {
		return domain.DefaultHorizonDays
	}
	if days > domain.MaxHorizonDays {
		return domain.MaxHorizonDays
	}
	return days
}

// dedupeWeekdays drops repeats, keeping Sunday-first order.
func dedupeWeekdays(in []time.Weekday) []time.Weekday {
	var seen [7]bool
	for _, d := range in {
		seen[d] = true
	}
	out := make([]time.Weekday, 0, len(in))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}
