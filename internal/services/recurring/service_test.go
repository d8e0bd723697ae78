package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/services/loads"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// mondayJune2 anchors the tests: 2025-06-02 is a Monday.
var mondayJune2 = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	creator := loads.New(st, eventbus.New(), logx.Nop())
	svc := New(Config{}, st, creator, logx.Nop())
	svc.now = func() time.Time { return mondayJune2 }
	return svc, st
}

func weeklyInput() CreateInput {
	return CreateInput{
		ShipperID: "shp-1",
		Name:      "Houston-Dallas weekly",
		Template: domain.LoadTemplate{
			Origin:     domain.Stop{Facility: "Gulf DC", City: "Houston", State: "TX", Lat: 29.7604, Lon: -95.3698},
			Dest:       domain.Stop{Facility: "Metro Hub", City: "Dallas", State: "TX", Lat: 32.7767, Lon: -96.7970},
			Equipment:  domain.EquipmentVan,
			Commodity:  "electronics",
			RateCents:  185000,
			TransitHrs: 8,
		},
		Weekdays:    []time.Weekday{time.Monday, time.Thursday},
		PickupHour:  9,
		PickupMin:   30,
		Timezone:    "America/Chicago",
		HorizonDays: 14,
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing shipper", func(in *CreateInput) { in.ShipperID = "" }},
		{"empty weekdays", func(in *CreateInput) { in.Weekdays = nil }},
		{"bad hour", func(in *CreateInput) { in.PickupHour = 24 }},
		{"bad minute", func(in *CreateInput) { in.PickupMin = -1 }},
		{"bad timezone", func(in *CreateInput) { in.Timezone = "Mars/Olympus" }},
		{"bad equipment", func(in *CreateInput) { in.Template.Equipment = "sled" }},
		{"zero rate", func(in *CreateInput) { in.Template.RateCents = 0 }},
		{"no origin", func(in *CreateInput) { in.Template.Origin = domain.Stop{} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := weeklyInput()
			tt.mutate(&in)
			if _, err := svc.Create(ctx, in); !domain.IsValidation(err) {
				t.Fatalf("Create error = %v, want validation error", err)
			}
		})
	}
}

func TestCreateNormalizes(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := weeklyInput()
	in.Weekdays = []time.Weekday{time.Thursday, time.Monday, time.Monday}
	in.HorizonDays = 400

	sched, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sched.Weekdays) != 2 || sched.Weekdays[0] != time.Monday || sched.Weekdays[1] != time.Thursday {
		t.Fatalf("Weekdays = %v, want [Monday Thursday]", sched.Weekdays)
	}
	if sched.HorizonDays != domain.MaxHorizonDays {
		t.Fatalf("HorizonDays = %d, want clamp to %d", sched.HorizonDays, domain.MaxHorizonDays)
	}
	if !sched.Active {
		t.Fatal("new schedule not active")
	}

	in.HorizonDays = 0
	sched2, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched2.HorizonDays != domain.DefaultHorizonDays {
		t.Fatalf("HorizonDays = %d, want default %d", sched2.HorizonDays, domain.DefaultHorizonDays)
	}
}

func TestCreateUsesConfiguredDefaults(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{DefaultHorizonDays: 14, DefaultTimezone: "America/Chicago"}
	svc := New(cfg, st, loads.New(st, eventbus.New(), logx.Nop()), logx.Nop())
	svc.now = func() time.Time { return mondayJune2 }
	ctx := context.Background()

	in := weeklyInput()
	in.Timezone = ""
	in.HorizonDays = 0

	sched, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sched.HorizonDays != 14 {
		t.Fatalf("HorizonDays = %d, want configured 14", sched.HorizonDays)
	}
	if sched.Timezone != "America/Chicago" {
		t.Fatalf("Timezone = %q, want configured America/Chicago", sched.Timezone)
	}
}

func TestPauseResumeDelete(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Pause(ctx, sched.ID, "ops")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got.Active {
		t.Fatal("schedule still active after Pause")
	}

	active, err := svc.List(ctx, "", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active schedules = %d, want 0", len(active))
	}

	if _, err := svc.Resume(ctx, sched.ID, "ops"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := svc.Delete(ctx, sched.ID, "ops"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, sched.ID, "ops"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestMaterializeCreatesOnePerOccurrence(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := svc.Materialize(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	// Mon/Thu over 14 days from Mon Jun 2: Jun 2, 5, 9, 12.
	if res.Created != 4 || res.Skipped != 0 || len(res.Failures) != 0 {
		t.Fatalf("Result = %+v, want 4 created", res)
	}

	ls, err := st.Loads().List(ctx, storage.LoadFilter{ScheduleID: sched.ID})
	if err != nil {
		t.Fatalf("List loads: %v", err)
	}
	if len(ls) != 4 {
		t.Fatalf("loads = %d, want 4", len(ls))
	}

	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	wantFirst := time.Date(2025, 6, 2, 9, 30, 0, 0, chicago)
	var sawFirst bool
	for _, l := range ls {
		if l.PickupAt.Equal(wantFirst) {
			sawFirst = true
			if want := wantFirst.Add(8 * time.Hour); !l.DeliverBy.Equal(want) {
				t.Fatalf("DeliverBy = %v, want %v", l.DeliverBy, want)
			}
		}
		if l.ScheduleID != sched.ID || l.Status != domain.StatusPending {
			t.Fatalf("load = %+v", l)
		}
		if l.DistanceMiles <= 0 {
			t.Fatalf("DistanceMiles = %v, want estimated", l.DistanceMiles)
		}
	}
	if !sawFirst {
		t.Fatalf("no load picked up at %v", wantFirst)
	}

	occs, err := svc.Occurrences(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Occurrences: %v", err)
	}
	wantDates := []string{"2025-06-02", "2025-06-05", "2025-06-09", "2025-06-12"}
	if len(occs) != len(wantDates) {
		t.Fatalf("occurrences = %d, want %d", len(occs), len(wantDates))
	}
	for i, o := range occs {
		if o.Date != wantDates[i] {
			t.Fatalf("occurrence[%d] = %s, want %s", i, o.Date, wantDates[i])
		}
		if o.LoadID == "" {
			t.Fatalf("occurrence %s has no load", o.Date)
		}
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Materialize(ctx, sched.ID); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	res, err := svc.Materialize(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Materialize again: %v", err)
	}
	if res.Created != 0 || res.Skipped != 4 {
		t.Fatalf("second pass = %+v, want 0 created, 4 skipped", res)
	}

	ls, err := st.Loads().List(ctx, storage.LoadFilter{ScheduleID: sched.ID})
	if err != nil {
		t.Fatalf("List loads: %v", err)
	}
	if len(ls) != 4 {
		t.Fatalf("loads after rerun = %d, want 4", len(ls))
	}
}

func TestMaterializeRejectsPaused(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pause(ctx, sched.ID, "ops"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := svc.Materialize(ctx, sched.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Materialize error = %v, want ErrConflict", err)
	}
}

// flakyCreator fails creates for one pickup date.
type flakyCreator struct {
	inner    Creator
	failDate string
}

func (f *flakyCreator) Create(ctx context.Context, in loads.CreateInput) (domain.Load, error) {
	if OccurrenceDate(in.PickupAt) == f.failDate {
		return domain.Load{}, errors.New("storage hiccup")
	}
	return f.inner.Create(ctx, in)
}

func TestMaterializePartialFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	flaky := &flakyCreator{inner: svc.creator, failDate: "2025-06-05"}
	svc.creator = flaky

	sched, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := svc.Materialize(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.Created != 3 || len(res.Failures) != 1 {
		t.Fatalf("Result = %+v, want 3 created, 1 failure", res)
	}
	if res.Failures[0].Date != "2025-06-05" {
		t.Fatalf("failed date = %s, want 2025-06-05", res.Failures[0].Date)
	}

	// The fixed-up creator backfills only the missed date.
	flaky.failDate = ""
	res, err = svc.Materialize(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Materialize retry: %v", err)
	}
	if res.Created != 1 || res.Skipped != 3 {
		t.Fatalf("retry = %+v, want 1 created, 3 skipped", res)
	}

	ls, err := st.Loads().List(ctx, storage.LoadFilter{ScheduleID: sched.ID})
	if err != nil {
		t.Fatalf("List loads: %v", err)
	}
	if len(ls) != 4 {
		t.Fatalf("loads = %d, want 4", len(ls))
	}
}

func TestMaterializeAllSkipsPaused(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, weeklyInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	in := weeklyInput()
	in.Name = "paused lane"
	b, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Pause(ctx, b.ID, "ops"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	results, err := svc.MaterializeAll(ctx)
	if err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}
	if len(results) != 1 || results[0].ScheduleID != a.ID {
		t.Fatalf("results = %+v, want only %s", results, a.ID)
	}
}
