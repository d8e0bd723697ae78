package analytics

import (
	"context"
	"testing"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// Monday, start of ISO week 23.
var testClock = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc := New(st, logx.Nop())
	svc.now = func() time.Time { return testClock }
	return svc, st
}

func createLoad(t *testing.T, st storage.Store, l domain.Load) {
	t.Helper()
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	if err := st.Loads().Create(context.Background(), l); err != nil {
		t.Fatalf("Create load %s: %v", l.ID, err)
	}
}

func TestDashboard(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	deadline := testClock.AddDate(0, 0, -1)
	createLoad(t, st, domain.Load{
		ID: "l-ontime", Status: domain.StatusDelivered, RateCents: 100000,
		CreatedAt: testClock.AddDate(0, 0, -2),
		DeliverBy: deadline, UpdatedAt: deadline.Add(-2 * time.Hour),
	})
	createLoad(t, st, domain.Load{
		ID: "l-late", Status: domain.StatusCompleted, RateCents: 50000,
		CreatedAt: testClock.AddDate(0, 0, -3),
		DeliverBy: deadline, UpdatedAt: deadline.Add(3 * time.Hour),
	})
	createLoad(t, st, domain.Load{
		ID: "l-moving", Status: domain.StatusInTransit, RateCents: 70000,
		CreatedAt: testClock.AddDate(0, 0, -1),
	})
	createLoad(t, st, domain.Load{
		ID: "l-open", Status: domain.StatusPending, RateCents: 30000,
		CreatedAt: testClock.AddDate(0, 0, -5),
	})
	// Outside the default thirty day window.
	createLoad(t, st, domain.Load{
		ID: "l-ancient", Status: domain.StatusDelivered, RateCents: 999999,
		CreatedAt: testClock.AddDate(0, 0, -40),
	})

	if err := st.Drivers().Create(ctx, domain.Driver{ID: "drv-a", ActiveLoadID: "l-moving"}); err != nil {
		t.Fatalf("Create driver: %v", err)
	}
	if err := st.Drivers().Create(ctx, domain.Driver{ID: "drv-b"}); err != nil {
		t.Fatalf("Create driver: %v", err)
	}
	if err := st.Vehicles().Create(ctx, domain.Vehicle{ID: "veh-a", Status: domain.VehicleActive}); err != nil {
		t.Fatalf("Create vehicle: %v", err)
	}
	if err := st.Vehicles().Create(ctx, domain.Vehicle{ID: "veh-b", Status: domain.VehicleMaintenance}); err != nil {
		t.Fatalf("Create vehicle: %v", err)
	}

	d, err := svc.Dashboard(ctx, Period{})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalLoads != 4 {
		t.Fatalf("TotalLoads = %d, want 4", d.TotalLoads)
	}
	wantStatus := map[domain.LoadStatus]int{
		domain.StatusDelivered: 1,
		domain.StatusCompleted: 1,
		domain.StatusInTransit: 1,
		domain.StatusPending:   1,
	}
	for status, want := range wantStatus {
		if d.LoadsByStatus[status] != want {
			t.Fatalf("LoadsByStatus[%s] = %d, want %d", status, d.LoadsByStatus[status], want)
		}
	}
	if d.RevenueCents != 150000 {
		t.Fatalf("RevenueCents = %d, want 150000", d.RevenueCents)
	}
	if d.OnTimePct != 0.5 {
		t.Fatalf("OnTimePct = %v, want 0.5", d.OnTimePct)
	}
	if d.ActiveDrivers != 1 {
		t.Fatalf("ActiveDrivers = %d, want 1", d.ActiveDrivers)
	}
	if d.ActiveVehicles != 1 {
		t.Fatalf("ActiveVehicles = %d, want 1", d.ActiveVehicles)
	}

	if _, err := svc.Dashboard(ctx, Period{From: testClock, To: testClock.AddDate(0, 0, -7)}); !domain.IsValidation(err) {
		t.Fatalf("inverted period error = %v, want validation error", err)
	}
}

func TestLaneStats(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	created := testClock.AddDate(0, 0, -2)
	tx := domain.Stop{City: "Houston", State: "TX"}
	il := domain.Stop{City: "Chicago", State: "IL"}
	createLoad(t, st, domain.Load{
		ID: "l-1", Status: domain.StatusDelivered, Origin: tx, Dest: il,
		RateCents: 200000, DistanceMiles: 1000, CreatedAt: created,
	})
	createLoad(t, st, domain.Load{
		ID: "l-2", Status: domain.StatusInTransit, Origin: tx, Dest: il,
		RateCents: 300000, DistanceMiles: 1000, CreatedAt: created,
	})
	// No distance on file, so it counts for volume and revenue only.
	createLoad(t, st, domain.Load{
		ID: "l-3", Status: domain.StatusPending, Origin: tx,
		Dest:      domain.Stop{City: "Tulsa", State: "OK"},
		RateCents: 100000, CreatedAt: created,
	})
	createLoad(t, st, domain.Load{
		ID: "l-4", Status: domain.StatusPending,
		Origin:    domain.Stop{City: "Phoenix", State: "AZ"},
		Dest:      domain.Stop{City: "Fresno", State: "CA"},
		RateCents: 150000, DistanceMiles: 600, CreatedAt: created,
	})
	// Missing destination state cannot form a lane.
	createLoad(t, st, domain.Load{
		ID: "l-5", Status: domain.StatusPending, Origin: tx,
		RateCents: 50000, CreatedAt: created,
	})

	lanes, err := svc.LaneStats(ctx, Period{})
	if err != nil {
		t.Fatalf("LaneStats: %v", err)
	}
	if len(lanes) != 3 {
		t.Fatalf("lanes = %d, want 3", len(lanes))
	}

	if lanes[0].Lane != "TX-IL" || lanes[0].Loads != 2 {
		t.Fatalf("lanes[0] = %+v, want TX-IL with 2 loads", lanes[0])
	}
	if lanes[0].AvgRatePerMile != 2.5 {
		t.Fatalf("TX-IL AvgRatePerMile = %v, want 2.5", lanes[0].AvgRatePerMile)
	}
	if lanes[0].RevenueCents != 500000 {
		t.Fatalf("TX-IL RevenueCents = %d, want 500000", lanes[0].RevenueCents)
	}

	// Single-load lanes tie on count and fall back to name order.
	if lanes[1].Lane != "AZ-CA" || lanes[2].Lane != "TX-OK" {
		t.Fatalf("tie order = %s, %s, want AZ-CA, TX-OK", lanes[1].Lane, lanes[2].Lane)
	}
	if lanes[2].AvgRatePerMile != 0 {
		t.Fatalf("TX-OK AvgRatePerMile = %v, want 0 without distances", lanes[2].AvgRatePerMile)
	}
}

func TestWeeklyVolume(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	// Window of four weeks: W20 through W23 of 2025.
	createLoad(t, st, domain.Load{ID: "w23-a", Status: domain.StatusPending, CreatedAt: testClock.Add(-2 * time.Hour)})
	createLoad(t, st, domain.Load{ID: "w23-b", Status: domain.StatusPending, CreatedAt: testClock.Add(-time.Hour)})
	createLoad(t, st, domain.Load{ID: "w21", Status: domain.StatusPending, CreatedAt: time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)})
	createLoad(t, st, domain.Load{ID: "w22", Status: domain.StatusPending, CreatedAt: time.Date(2025, 5, 28, 9, 0, 0, 0, time.UTC)})
	createLoad(t, st, domain.Load{ID: "w19", Status: domain.StatusPending, CreatedAt: time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)})

	vols, err := svc.WeeklyVolume(ctx, 4)
	if err != nil {
		t.Fatalf("WeeklyVolume: %v", err)
	}
	want := []WeekVolume{
		{Year: 2025, Week: 20, Count: 0},
		{Year: 2025, Week: 21, Count: 1},
		{Year: 2025, Week: 22, Count: 1},
		{Year: 2025, Week: 23, Count: 2},
	}
	if len(vols) != len(want) {
		t.Fatalf("weeks = %d, want %d", len(vols), len(want))
	}
	for i, w := range want {
		if vols[i] != w {
			t.Fatalf("vols[%d] = %+v, want %+v", i, vols[i], w)
		}
	}

	defaults, err := svc.WeeklyVolume(ctx, 0)
	if err != nil {
		t.Fatalf("WeeklyVolume: %v", err)
	}
	if len(defaults) != defaultWeeks {
		t.Fatalf("default weeks = %d, want %d", len(defaults), defaultWeeks)
	}
}

func TestVolumeForecast(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()

	// One load per week for four weeks gives a flat series.
	for i, id := range []string{"f-1", "f-2", "f-3", "f-4"} {
		createLoad(t, st, domain.Load{
			ID:        id,
			Status:    domain.StatusPending,
			CreatedAt: testClock.AddDate(0, 0, -7*i),
		})
	}

	res, err := svc.VolumeForecast(ctx, 4, 2)
	if err != nil {
		t.Fatalf("VolumeForecast: %v", err)
	}
	if len(res.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(res.Points))
	}
	for i, p := range res.Points {
		if !almost(p.Predicted, 1) {
			t.Fatalf("point %d predicted = %v, want 1", i, p.Predicted)
		}
	}

	if _, err := svc.VolumeForecast(ctx, 2, 2); !domain.IsValidation(err) {
		t.Fatalf("short history error = %v, want validation error", err)
	}
}
