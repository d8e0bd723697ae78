// Package hazmat answers Emergency Response Guidebook lookups and records
// hazmat incidents against loads.
package hazmat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

const defaultIncidentLimit = 50

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "hazmat")),
		now:   time.Now,
	}
}

// Guidance bundles a material with its response guide page.
type Guidance struct {
	Material Material `json:"material"`
	Guide    Guide    `json:"guide"`
}

// GuidanceFor resolves a UN number to its material and guide page.
func GuidanceFor(un string) (Guidance, error) {
	m, ok := Lookup(un)
	if !ok {
		return Guidance{}, fmt.Errorf("un number %q: %w", normalizeUN(un), domain.ErrNotFound)
	}
	g, ok := GuideByNumber(m.GuideNo)
	if !ok {
		return Guidance{}, fmt.Errorf("guide %d: %w", m.GuideNo, domain.ErrNotFound)
	}
	return Guidance{Material: m, Guide: g}, nil
}

type IncidentInput struct {
	LoadID   string `json:"load_id,omitempty"`
	UNNumber string `json:"un_number,omitempty"`
	Location string `json:"location,omitempty"`
	Note     string `json:"note,omitempty"`
}

// RecordIncident logs a hazmat incident and raises the critical alert
// chain. The UN number may come from the input or from the referenced
// load; it must resolve in the ERG dataset so responders get a guide
// page with the alert.
func (s *Service) RecordIncident(ctx context.Context, in IncidentInput, actor string) (domain.HazmatIncident, error) {
	start := time.Now()

	un := in.UNNumber
	if in.LoadID != "" {
		l, err := s.store.Loads().Get(ctx, in.LoadID)
		if err != nil {
			return domain.HazmatIncident{}, fmt.Errorf("load %s: %w", in.LoadID, err)
		}
		if strings.TrimSpace(un) == "" {
			un = l.UNNumber
		}
	}
	m, ok := Lookup(un)
	if !ok {
		return domain.HazmatIncident{}, domain.Invalid("un_number", fmt.Sprintf("%q is not in the ERG dataset", un))
	}

	incident := domain.HazmatIncident{
		ID:        domain.NewID(),
		LoadID:    in.LoadID,
		UNNumber:  m.UNNumber,
		GuideNo:   m.GuideNo,
		Location:  strings.TrimSpace(in.Location),
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: s.now().UTC(),
	}
	err := s.store.Hazmat().CreateIncident(ctx, incident)
	s.audit(ctx, actor, "hazmat.incident", incident.ID, start, err)
	if err != nil {
		return domain.HazmatIncident{}, fmt.Errorf("store incident: %w", err)
	}

	s.log.Warn("hazmat incident recorded",
		logx.String("incident", incident.ID),
		logx.String("un", incident.UNNumber),
		logx.Int("guide", incident.GuideNo),
		logx.String("load", incident.LoadID))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeHazmatIncident,
		Time: s.now(),
		Data: eventbus.HazmatEvent{Incident: incident},
	})
	return incident, nil
}

// Incidents lists recorded incidents, newest first. An empty loadID
// means all loads.
func (s *Service) Incidents(ctx context.Context, loadID string, limit int) ([]domain.HazmatIncident, error) {
	if limit <= 0 {
		limit = defaultIncidentLimit
	}
	out, err := s.store.Hazmat().ListIncidents(ctx, loadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "hazmat",
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
