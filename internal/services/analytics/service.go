// Package analytics computes reporting rollups over the load history:
// dashboard metrics, lane economics, weekly volume and a demand
// projection built on double exponential smoothing.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

const (
	defaultPeriodDays = 30
	defaultWeeks      = 8
	maxWeeks          = 52

	// defaultForecastHistory is how many weeks of volume feed the
	// smoother when the caller does not say.
	defaultForecastHistory = 12
)

type Service struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(logx.String("component", "analytics")),
		now:   time.Now,
	}
}

// Period bounds a report. A zero To means now; a zero From means thirty
// days before To.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) normalize(now time.Time) Period {
	if p.To.IsZero() {
		p.To = now
	}
	if p.From.IsZero() {
		p.From = p.To.AddDate(0, 0, -defaultPeriodDays)
	}
	return p
}

// Dashboard is the operational rollup for one period.
type Dashboard struct {
	From           time.Time                 `json:"from"`
	To             time.Time                 `json:"to"`
	TotalLoads     int                       `json:"total_loads"`
	LoadsByStatus  map[domain.LoadStatus]int `json:"loads_by_status"`
	RevenueCents   int64                     `json:"revenue_cents"`
	OnTimePct      float64                   `json:"on_time_pct"`
	ActiveDrivers  int                       `json:"active_drivers"`
	ActiveVehicles int                       `json:"active_vehicles"`
}

// Dashboard aggregates the loads created in the period. Revenue counts
// delivered and completed loads only; the on-time percentage is taken
// over the same set. Driver and vehicle counts reflect current state,
// not the period.
func (s *Service) Dashboard(ctx context.Context, p Period) (Dashboard, error) {
	p = p.normalize(s.now())
	if p.From.After(p.To) {
		return Dashboard{}, domain.Invalid("period", "from is after to")
	}

	loads, err := s.store.Loads().List(ctx, storage.LoadFilter{
		CreatedAfter:  p.From,
		CreatedBefore: p.To,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list loads: %w", err)
	}

	d := Dashboard{From: p.From, To: p.To, LoadsByStatus: make(map[domain.LoadStatus]int)}
	var done, onTime int
	for _, l := range loads {
		d.TotalLoads++
		d.LoadsByStatus[l.Status]++
		if l.Status == domain.StatusDelivered || l.Status == domain.StatusCompleted {
			d.RevenueCents += l.RateCents
			done++
			if s.deliveredOnTime(ctx, l) {
				onTime++
			}
		}
	}
	if done > 0 {
		d.OnTimePct = float64(onTime) / float64(done)
	}

	drivers, err := s.store.Drivers().List(ctx, storage.DriverFilter{})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list drivers: %w", err)
	}
	for _, dr := range drivers {
		if dr.ActiveLoadID != "" {
			d.ActiveDrivers++
		}
	}

	vehicles, err := s.store.Vehicles().List(ctx, storage.VehicleFilter{})
	if err != nil {
		return Dashboard{}, fmt.Errorf("list vehicles: %w", err)
	}
	for _, v := range vehicles {
		if v.Status == domain.VehicleActive {
			d.ActiveVehicles++
		}
	}

	s.log.Debug("dashboard built",
		logx.Int("loads", d.TotalLoads),
		logx.Int64("revenue_cents", d.RevenueCents))
	return d, nil
}

// Lane is the aggregate for one origin→destination state pair.
type Lane struct {
	Lane           string  `json:"lane"`
	Loads          int     `json:"loads"`
	AvgRatePerMile float64 `json:"avg_rate_per_mile"`
	RevenueCents   int64   `json:"revenue_cents"`
}

// LaneStats groups the period's loads by state pair, busiest lane first.
// Loads missing a state on either end are skipped; the rate-per-mile
// average covers only loads with a known distance.
func (s *Service) LaneStats(ctx context.Context, p Period) ([]Lane, error) {
	p = p.normalize(s.now())
	if p.From.After(p.To) {
		return nil, domain.Invalid("period", "from is after to")
	}

	loads, err := s.store.Loads().List(ctx, storage.LoadFilter{
		CreatedAfter:  p.From,
		CreatedBefore: p.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}

	type agg struct {
		lane    Lane
		rpmSum  float64
		rpmN    int
		revenue int64
	}
	byLane := make(map[string]*agg)
	for _, l := range loads {
		if l.Origin.State == "" || l.Dest.State == "" {
			continue
		}
		key := l.Origin.State + "-" + l.Dest.State
		a := byLane[key]
		if a == nil {
			a = &agg{lane: Lane{Lane: key}}
			byLane[key] = a
		}
		a.lane.Loads++
		a.revenue += l.RateCents
		if l.DistanceMiles > 0 {
			a.rpmSum += geo.RatePerMile(l.RateCents, l.DistanceMiles)
			a.rpmN++
		}
	}

	out := make([]Lane, 0, len(byLane))
	for _, a := range byLane {
		a.lane.RevenueCents = a.revenue
		if a.rpmN > 0 {
			a.lane.AvgRatePerMile = a.rpmSum / float64(a.rpmN)
		}
		out = append(out, a.lane)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Loads != out[j].Loads {
			return out[i].Loads > out[j].Loads
		}
		return out[i].Lane < out[j].Lane
	})
	return out, nil
}

// WeekVolume is the load count for one ISO week.
type WeekVolume struct {
	Year  int `json:"year"`
	Week  int `json:"week"`
	Count int `json:"count"`
}

// WeeklyVolume counts loads created per ISO week for the trailing window,
// oldest week first, with empty weeks present as zeros. A non-positive
// weeks argument means eight.
func (s *Service) WeeklyVolume(ctx context.Context, weeks int) ([]WeekVolume, error) {
	if weeks <= 0 {
		weeks = defaultWeeks
	}
	if weeks > maxWeeks {
		weeks = maxWeeks
	}

	start := startOfISOWeek(s.now()).AddDate(0, 0, -7*(weeks-1))
	loads, err := s.store.Loads().List(ctx, storage.LoadFilter{CreatedAfter: start})
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}

	out := make([]WeekVolume, weeks)
	index := make(map[[2]int]int, weeks)
	for i := range out {
		y, w := start.AddDate(0, 0, 7*i).ISOWeek()
		out[i] = WeekVolume{Year: y, Week: w}
		index[[2]int{y, w}] = i
	}
	for _, l := range loads {
		y, w := l.CreatedAt.UTC().ISOWeek()
		if i, ok := index[[2]int{y, w}]; ok {
			out[i].Count++
		}
	}
	return out, nil
}

// VolumeForecast fits the smoother to recent weekly volume and projects
// it forward. Weeks of history defaults to twelve, the horizon to four.
func (s *Service) VolumeForecast(ctx context.Context, weeks, horizon int) (ForecastResult, error) {
	if weeks <= 0 {
		weeks = defaultForecastHistory
	}
	vols, err := s.WeeklyVolume(ctx, weeks)
	if err != nil {
		return ForecastResult{}, err
	}
	series := make([]float64, len(vols))
	for i, v := range vols {
		series[i] = float64(v.Count)
	}
	return Forecast(series, horizon)
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

// startOfISOWeek returns the UTC midnight that begins t's ISO week.
func startOfISOWeek(t time.Time) time.Time {
	t = t.UTC()
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(wd - 1))
}
