// Package gamification scores drivers from their load history: XP, levels,
// one-time achievements and a leaderboard. Profiles recompute whenever a
// load the driver hauled is delivered.
package gamification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// recomputeWindow caps how much history one recompute scans.
const recomputeWindow = 500

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	unsub    func()
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "gamification")),
		now:   time.Now,
	}
}

// Start subscribes to load status changes so delivered loads update the
// hauling driver's profile.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})

	ch, unsub := s.bus.Subscribe(64)
	s.unsub = unsub
	go s.run(ctx, ch, s.stopCh, s.stopDone)
	s.log.Info("gamification started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.unsub()
	select {
	case <-s.stopDone:
	case <-ctx.Done():
	}
	s.stopCh = nil
	s.log.Info("gamification stopped")
}

func (s *Service) run(ctx context.Context, ch <-chan eventbus.Event, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeLoadStatusChanged {
				continue
			}
			sc, ok := e.Data.(eventbus.StatusChange)
			if !ok || sc.Load.Status != domain.StatusDelivered || sc.Load.DriverID == "" {
				continue
			}
			if _, _, err := s.Apply(ctx, sc.Load.DriverID); err != nil {
				s.log.Warn("profile recompute failed", logx.Err(err), logx.String("driver", sc.Load.DriverID))
			}
		}
	}
}

// Apply recomputes the driver's profile from delivered history and awards
// any achievements newly earned. Each achievement is awarded at most once;
// the returned slice holds only the new ones.
func (s *Service) Apply(ctx context.Context, driverID string) (domain.DriverProfile, []Achievement, error) {
	start := s.now()
	if strings.TrimSpace(driverID) == "" {
		return domain.DriverProfile{}, nil, domain.Invalid("driver_id", "required")
	}
	drv, err := s.store.Drivers().Get(ctx, driverID)
	if err != nil {
		return domain.DriverProfile{}, nil, fmt.Errorf("driver %s: %w", driverID, err)
	}
	prof, _, err := s.store.Profiles().Get(ctx, driverID)
	if err != nil {
		return domain.DriverProfile{}, nil, fmt.Errorf("get profile: %w", err)
	}
	prof.DriverID = driverID
	prof.SafetyScore = drv.SafetyScore

	if err := s.recount(ctx, &prof); err != nil {
		return domain.DriverProfile{}, nil, err
	}

	var awarded []Achievement
	for _, a := range catalog {
		if prof.HasAchievement(a.ID) || !a.earned(prof) {
			continue
		}
		prof.Achievements = append(prof.Achievements, a.ID)
		awarded = append(awarded, a)
	}

	prof.XP = XP(prof.LoadsCompleted, prof.SafetyScore, prof.FuelEfficiency) + achievementPoints(prof.Achievements)
	prof.Level = Level(prof.XP)
	prof.UpdatedAt = s.now().UTC()

	if err := s.store.Profiles().Upsert(ctx, prof); err != nil {
		s.audit(ctx, "gamification", "profile.recompute", driverID, start, err)
		return domain.DriverProfile{}, nil, fmt.Errorf("upsert profile: %w", err)
	}
	s.audit(ctx, "gamification", "profile.recompute", driverID, start, nil)

	for _, a := range awarded {
		s.log.Info("achievement earned",
			logx.String("driver", driverID),
			logx.String("achievement", a.ID),
			logx.Int("points", a.Points))
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeAchievement,
			Time: s.now(),
			Data: eventbus.AchievementEvent{
				DriverID:      driverID,
				AchievementID: a.ID,
				XPAward:       a.Points,
			},
		})
	}
	return prof, awarded, nil
}

// recount rebuilds the load-derived counters. Fuel efficiency is fed by
// telematics through SetFuelEfficiency and survives the recount.
func (s *Service) recount(ctx context.Context, prof *domain.DriverProfile) error {
	ls, err := s.store.Loads().List(ctx, storage.LoadFilter{
		DriverID: prof.DriverID,
		Statuses: []domain.LoadStatus{domain.StatusDelivered, domain.StatusCompleted},
		Limit:    recomputeWindow,
	})
	if err != nil {
		return fmt.Errorf("list loads: %w", err)
	}

	prof.LoadsCompleted = len(ls)
	prof.HazmatLoads = 0
	prof.CleanLoadStreak = 0
	onTime := 0
	streakAlive := true

	// Newest first: the streak counts back from the latest delivery and
	// stops at the first load with a recorded incident.
	for _, l := range ls {
		if l.Hazmat() {
			prof.HazmatLoads++
		}
		if s.deliveredOnTime(ctx, l) {
			onTime++
		}
		if streakAlive {
			incidents, err := s.store.Hazmat().ListIncidents(ctx, l.ID, 1)
			if err != nil {
				return fmt.Errorf("list incidents: %w", err)
			}
			if len(incidents) > 0 {
				streakAlive = false
			} else {
				prof.CleanLoadStreak++
			}
		}
	}
	if len(ls) > 0 {
		prof.OnTimeRate = float64(onTime) / float64(len(ls))
	} else {
		prof.OnTimeRate = 0
	}
	return nil
}

// deliveredOnTime checks the delivery timestamp against the promised
// window. Loads without a deadline count as on time.
func (s *Service) deliveredOnTime(ctx context.Context, l domain.Load) bool {
	if l.DeliverBy.IsZero() {
		return true
	}
	entries, err := s.store.Loads().Timeline(ctx, l.ID)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.To == domain.StatusDelivered {
			return !e.At.After(l.DeliverBy)
		}
	}
	return !l.UpdatedAt.After(l.DeliverBy)
}

func achievementPoints(ids []string) int {
	total := 0
	for _, id := range ids {
		if a, ok := achievementByID(id); ok {
			total += a.Points
		}
	}
	return total
}

// SetFuelEfficiency records the telematics-derived efficiency ratio
// (0..1) and re-runs the recompute so dependent achievements fire.
func (s *Service) SetFuelEfficiency(ctx context.Context, driverID string, ratio float64) (domain.DriverProfile, error) {
	if ratio < 0 || ratio > 1 {
		return domain.DriverProfile{}, domain.Invalid("ratio", "must be between 0 and 1")
	}
	prof, _, err := s.store.Profiles().Get(ctx, driverID)
	if err != nil {
		return domain.DriverProfile{}, fmt.Errorf("get profile: %w", err)
	}
	prof.DriverID = driverID
	prof.FuelEfficiency = ratio
	if err := s.store.Profiles().Upsert(ctx, prof); err != nil {
		return domain.DriverProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	prof, _, err = s.Apply(ctx, driverID)
	return prof, err
}

// Profile returns the stored profile, or a zeroed one for unseen drivers.
func (s *Service) Profile(ctx context.Context, driverID string) (domain.DriverProfile, error) {
	prof, ok, err := s.store.Profiles().Get(ctx, driverID)
	if err != nil {
		return domain.DriverProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if !ok {
		prof.DriverID = driverID
		prof.Level = Level(0)
	}
	return prof, nil
}

// RankedProfile is a leaderboard row.
type RankedProfile struct {
	Rank int `json:"rank"`
	domain.DriverProfile
}

// Leaderboard returns the top profiles by XP, rank starting at 1.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]RankedProfile, error) {
	profs, err := s.store.Profiles().Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]RankedProfile, len(profs))
	for i, p := range profs {
		out[i] = RankedProfile{Rank: i + 1, DriverProfile: p}
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "profile",
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
