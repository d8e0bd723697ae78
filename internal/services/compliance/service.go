// Package compliance tracks credential expiry, hours-of-service clocks and
// vehicle inspections. A daily sweep turns approaching expirations into
// compliance.alert events for the notification layer.
package compliance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

type Config struct {
	// ExpiryWindowDays is the default lookahead for Expiring and Sweep.
	ExpiryWindowDays int
	// CriticalDays flags documents this close to expiry as critical.
	CriticalDays int
}

func (c Config) withDefaults() Config {
	if c.ExpiryWindowDays <= 0 {
		c.ExpiryWindowDays = 90
	}
	if c.CriticalDays <= 0 {
		c.CriticalDays = 30
	}
	return c
}

var docKinds = map[string]bool{
	domain.DocCDL:              true,
	domain.DocMedicalCard:      true,
	domain.DocHazmatEndorse:    true,
	domain.DocInsurance:        true,
	domain.DocVehicleInspClass: true,
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
		log:   log.With(logx.String("component", "compliance")),
		now:   time.Now,
	}
}

// DocInput describes a credential to record. One document exists per
// (subject, kind); recording again renews it in place.
type DocInput struct {
	SubjectID string    `json:"subject_id"`
	Kind      string    `json:"kind"`
	Number    string    `json:"number,omitzero"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (in DocInput) validate() error {
	if strings.TrimSpace(in.SubjectID) == "" {
		return domain.Invalid("subject_id", "required")
	}
	if !docKinds[in.Kind] {
		return domain.Invalid("kind", "unknown document kind")
	}
	if in.ExpiresAt.IsZero() {
		return domain.Invalid("expires_at", "required")
	}
	return nil
}

func (s *Service) UpsertDoc(ctx context.Context, in DocInput, actor string) (domain.ComplianceDoc, error) {
	start := s.now()
	if err := in.validate(); err != nil {
		return domain.ComplianceDoc{}, err
	}
	d := domain.ComplianceDoc{
		ID:        domain.NewID(),
		SubjectID: in.SubjectID,
		Kind:      in.Kind,
		Number:    in.Number,
		ExpiresAt: in.ExpiresAt.UTC(),
		CreatedAt: start.UTC(),
	}
	if err := s.store.Compliance().UpsertDoc(ctx, d); err != nil {
		s.audit(ctx, actor, "compliance.doc_upsert", d.SubjectID, start, err)
		return domain.ComplianceDoc{}, fmt.Errorf("upsert doc: %w", err)
	}
	s.audit(ctx, actor, "compliance.doc_upsert", d.SubjectID, start, nil)
	s.log.Info("document recorded",
		logx.String("subject", d.SubjectID),
		logx.String("kind", d.Kind),
		logx.Time("expires", d.ExpiresAt))
	return d, nil
}

func (s *Service) Docs(ctx context.Context, subjectID string) ([]domain.ComplianceDoc, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.Invalid("subject_id", "required")
	}
	return s.store.Compliance().ListDocsBySubject(ctx, subjectID)
}

// ExpiringDoc pairs a document with the whole days left until expiry.
// Negative means already expired.
type ExpiringDoc struct {
	Doc      domain.ComplianceDoc `json:"doc"`
	DaysLeft int                  `json:"days_left"`
	Critical bool                 `json:"critical"`
}

// Expiring returns documents expiring within the window, soonest first.
// A non-positive window means the configured default.
func (s *Service) Expiring(ctx context.Context, within time.Duration) ([]ExpiringDoc, error) {
	if within <= 0 {
		within = time.Duration(s.cfg.ExpiryWindowDays) * 24 * time.Hour
	}
	now := s.now()
	docs, err := s.store.Compliance().ListExpiring(ctx, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("list expiring: %w", err)
	}
	out := make([]ExpiringDoc, 0, len(docs))
	for _, d := range docs {
		days := daysUntil(now, d.ExpiresAt)
		out = append(out, ExpiringDoc{
			Doc:      d,
			DaysLeft: days,
			Critical: days <= s.cfg.CriticalDays,
		})
	}
	return out, nil
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Checked  int `json:"checked"`
	Critical int `json:"critical"`
}

// Sweep publishes a compliance.alert for every document inside the default
// window. Documents inside the critical window are flagged as such.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	docs, err := s.Expiring(ctx, 0)
	if err != nil {
		return SweepResult{}, err
	}
	var res SweepResult
	for _, ed := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		if ed.Critical {
			res.Critical++
		}
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeComplianceAlert,
			Time: s.now(),
			Data: eventbus.ComplianceAlert{
				SubjectID: ed.Doc.SubjectID,
				Kind:      ed.Doc.Kind,
				Message:   expiryMessage(ed.Doc.Kind, ed.DaysLeft),
				Critical:  ed.Critical,
			},
		})
	}
	s.log.Info("expiry sweep finished",
		logx.Int("checked", res.Checked),
		logx.Int("critical", res.Critical))
	return res, nil
}

func expiryMessage(kind string, daysLeft int) string {
	switch {
	case daysLeft < 0:
		return fmt.Sprintf("%s expired %d days ago", kind, -daysLeft)
	case daysLeft == 0:
		return fmt.Sprintf("%s expires today", kind)
	default:
		return fmt.Sprintf("%s expires in %d days", kind, daysLeft)
	}
}

// daysUntil floors toward negative infinity so an expiry twelve hours gone
// reads -1, not 0.
func daysUntil(now, at time.Time) int {
	return int(math.Floor(at.Sub(now).Hours() / 24))
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "compliance",
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
