package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

// testStores opens every backend the tests can run without external
// services. The suites run against each to keep behavior in parity.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "freight.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })

	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Store{"sqlite": sq, "memory": mem}
}

func testLoad(id string, status domain.LoadStatus, created time.Time) domain.Load {
	return domain.Load{
		ID:        id,
		Ref:       "LD-" + id,
		ShipperID: "ship-1",
		Origin:    domain.Stop{Facility: "Gulf DC", City: "Houston", State: "TX", Lat: 29.76, Lon: -95.37},
		Dest:      domain.Stop{Facility: "Metro Hub", City: "Dallas", State: "TX", Lat: 32.78, Lon: -96.80},
		Equipment: domain.EquipmentVan,
		RateCents: 185000,
		PickupAt:  created.Add(24 * time.Hour),
		DeliverBy: created.Add(48 * time.Hour),
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			want := testLoad("a1", domain.StatusPending, base)
			want.Commodity = "electronics"
			want.UNNumber = "1203"
			want.HazmatClass = "3"
			want.WeightLbs = 42000
			want.DistanceMiles = 239.5
			if err := st.Loads().Create(ctx, want); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := st.Loads().Get(ctx, "a1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Ref != want.Ref || got.UNNumber != want.UNNumber || got.Origin.City != "Houston" {
				t.Fatalf("Get = %+v, want %+v", got, want)
			}
			if !got.PickupAt.Equal(want.PickupAt) || !got.CreatedAt.Equal(want.CreatedAt) {
				t.Fatalf("times: got pickup %v created %v", got.PickupAt, got.CreatedAt)
			}
			if got.CarrierID != "" {
				t.Fatalf("CarrierID = %q, want empty", got.CarrierID)
			}

			got.Status = domain.StatusBooked
			got.CarrierID = "car-9"
			got.UpdatedAt = base.Add(time.Hour)
			if err := st.Loads().Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}
			got2, err := st.Loads().Get(ctx, "a1")
			if err != nil {
				t.Fatalf("Get after update: %v", err)
			}
			if got2.Status != domain.StatusBooked || got2.CarrierID != "car-9" {
				t.Fatalf("after update = %+v", got2)
			}

			if _, err := st.Loads().Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			missing := testLoad("missing", domain.StatusPending, base)
			if err := st.Loads().Update(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("Update missing = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestLoadListFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			seed := []domain.Load{
				testLoad("l1", domain.StatusPending, base),
				testLoad("l2", domain.StatusInTransit, base.Add(time.Minute)),
				testLoad("l3", domain.StatusPending, base.Add(2*time.Minute)),
				testLoad("l4", domain.StatusDelivered, base.Add(3*time.Minute)),
			}
			seed[1].ShipperID = "ship-2"
			for _, l := range seed {
				if err := st.Loads().Create(ctx, l); err != nil {
					t.Fatalf("Create %s: %v", l.ID, err)
				}
			}

			got, err := st.Loads().List(ctx, LoadFilter{Statuses: []domain.LoadStatus{domain.StatusPending}})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("pending loads = %d, want 2", len(got))
			}
			// created_at DESC
			if got[0].ID != "l3" || got[1].ID != "l1" {
				t.Fatalf("order = %s,%s, want l3,l1", got[0].ID, got[1].ID)
			}

			got, err = st.Loads().List(ctx, LoadFilter{ShipperID: "ship-2"})
			if err != nil {
				t.Fatalf("List shipper: %v", err)
			}
			if len(got) != 1 || got[0].ID != "l2" {
				t.Fatalf("shipper filter = %+v", got)
			}

			got, err = st.Loads().List(ctx, LoadFilter{Limit: 2})
			if err != nil {
				t.Fatalf("List limit: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("limited = %d, want 2", len(got))
			}

			got, err = st.Loads().List(ctx, LoadFilter{CreatedAfter: base.Add(90 * time.Second)})
			if err != nil {
				t.Fatalf("List window: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("windowed = %d, want 2", len(got))
			}
		})
	}
}

func TestLoadBoard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			open1 := testLoad("b1", domain.StatusPending, base)
			open1.PickupAt = base.Add(36 * time.Hour)
			open2 := testLoad("b2", domain.StatusPending, base)
			open2.PickupAt = base.Add(12 * time.Hour)
			open2.Equipment = domain.EquipmentReefer
			open2.UNNumber = "1993"
			open2.RateCents = 99000
			taken := testLoad("b3", domain.StatusPending, base)
			taken.CarrierID = "car-1"
			moved := testLoad("b4", domain.StatusInTransit, base)
			for _, l := range []domain.Load{open1, open2, taken, moved} {
				if err := st.Loads().Create(ctx, l); err != nil {
					t.Fatalf("Create %s: %v", l.ID, err)
				}
			}

			got, err := st.Loads().Board(ctx, BoardFilter{})
			if err != nil {
				t.Fatalf("Board: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("board = %d loads, want 2", len(got))
			}
			// pickup_at ASC
			if got[0].ID != "b2" || got[1].ID != "b1" {
				t.Fatalf("board order = %s,%s, want b2,b1", got[0].ID, got[1].ID)
			}

			got, err = st.Loads().Board(ctx, BoardFilter{Equipment: domain.EquipmentReefer})
			if err != nil {
				t.Fatalf("Board equipment: %v", err)
			}
			if len(got) != 1 || got[0].ID != "b2" {
				t.Fatalf("equipment filter = %+v", got)
			}

			got, err = st.Loads().Board(ctx, BoardFilter{HazmatOnly: true})
			if err != nil {
				t.Fatalf("Board hazmat: %v", err)
			}
			if len(got) != 1 || got[0].ID != "b2" {
				t.Fatalf("hazmat filter = %+v", got)
			}

			got, err = st.Loads().Board(ctx, BoardFilter{MinRateCents: 100000})
			if err != nil {
				t.Fatalf("Board rate: %v", err)
			}
			if len(got) != 1 || got[0].ID != "b1" {
				t.Fatalf("rate filter = %+v", got)
			}
		})
	}
}

func TestNextRef(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			a, err := st.Loads().NextRef(ctx)
			if err != nil {
				t.Fatalf("NextRef: %v", err)
			}
			b, err := st.Loads().NextRef(ctx)
			if err != nil {
				t.Fatalf("NextRef: %v", err)
			}
			if a != 1 || b != 2 {
				t.Fatalf("refs = %d,%d, want 1,2", a, b)
			}
		})
	}
}

func TestTimeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			entries := []domain.TimelineEntry{
				{LoadID: "t1", At: base, To: domain.StatusPending, Actor: "ship-1"},
				{LoadID: "t1", At: base.Add(time.Hour), From: domain.StatusPending, To: domain.StatusBooked},
				{LoadID: "t2", At: base, To: domain.StatusPending},
			}
			for _, e := range entries {
				if err := st.Loads().AppendTimeline(ctx, e); err != nil {
					t.Fatalf("AppendTimeline: %v", err)
				}
			}

			got, err := st.Loads().Timeline(ctx, "t1")
			if err != nil {
				t.Fatalf("Timeline: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("timeline = %d entries, want 2", len(got))
			}
			if got[0].To != domain.StatusPending || got[1].To != domain.StatusBooked {
				t.Fatalf("timeline order = %+v", got)
			}
			if got[1].From != domain.StatusPending {
				t.Fatalf("From = %q, want pending", got[1].From)
			}
		})
	}
}

func TestBidsAndAccept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			load := testLoad("bl1", domain.StatusPending, base)
			if err := st.Loads().Create(ctx, load); err != nil {
				t.Fatalf("Create load: %v", err)
			}
			b1 := domain.Bid{ID: "bid-1", LoadID: "bl1", CarrierID: "car-1", AmountCents: 180000,
				Status: domain.BidPending, CreatedAt: base, UpdatedAt: base}
			b2 := domain.Bid{ID: "bid-2", LoadID: "bl1", CarrierID: "car-2", AmountCents: 175000,
				Status: domain.BidPending, CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}
			for _, b := range []domain.Bid{b1, b2} {
				if err := st.Bids().Create(ctx, b); err != nil {
					t.Fatalf("Create bid: %v", err)
				}
			}

			got, ok, err := st.Bids().OpenByLoadAndCarrier(ctx, "bl1", "car-2")
			if err != nil || !ok {
				t.Fatalf("OpenByLoadAndCarrier = %v, %v", ok, err)
			}
			if got.ID != "bid-2" {
				t.Fatalf("open bid = %s, want bid-2", got.ID)
			}
			if _, ok, _ := st.Bids().OpenByLoadAndCarrier(ctx, "bl1", "car-9"); ok {
				t.Fatal("unexpected open bid for car-9")
			}

			now := base.Add(2 * time.Minute)
			b2.Status = domain.BidAccepted
			b2.UpdatedAt = now
			b1.Status = domain.BidRejected
			b1.UpdatedAt = now
			load.Status = domain.StatusBooked
			load.CarrierID = "car-2"
			load.RateCents = b2.AmountCents
			load.UpdatedAt = now
			if err := st.AcceptBid(ctx, b2, []domain.Bid{b1}, load); err != nil {
				t.Fatalf("AcceptBid: %v", err)
			}

			bids, err := st.Bids().ListByLoad(ctx, "bl1")
			if err != nil {
				t.Fatalf("ListByLoad: %v", err)
			}
			if len(bids) != 2 {
				t.Fatalf("bids = %d, want 2", len(bids))
			}
			// Newest bid first.
			if bids[0].Status != domain.BidAccepted || bids[1].Status != domain.BidRejected {
				t.Fatalf("statuses = %s,%s", bids[0].Status, bids[1].Status)
			}
			reloaded, err := st.Loads().Get(ctx, "bl1")
			if err != nil {
				t.Fatalf("Get load: %v", err)
			}
			if reloaded.CarrierID != "car-2" || reloaded.RateCents != 175000 || reloaded.Status != domain.StatusBooked {
				t.Fatalf("load after accept = %+v", reloaded)
			}
		})
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			want := domain.Schedule{
				ID:        "sch-1",
				ShipperID: "ship-1",
				Name:      "Houston-Dallas weekly",
				Template: domain.LoadTemplate{
					Origin:    domain.Stop{City: "Houston", State: "TX", Lat: 29.76, Lon: -95.37},
					Dest:      domain.Stop{City: "Dallas", State: "TX", Lat: 32.78, Lon: -96.80},
					Equipment: domain.EquipmentVan,
					RateCents: 185000,
				},
				Weekdays:    []time.Weekday{time.Monday, time.Thursday},
				PickupHour:  9,
				PickupMin:   30,
				Timezone:    "America/Chicago",
				HorizonDays: 28,
				Active:      true,
				CreatedAt:   base,
				UpdatedAt:   base,
			}
			if err := st.Schedules().Create(ctx, want); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := st.Schedules().Get(ctx, "sch-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got.Weekdays) != 2 || got.Weekdays[0] != time.Monday || got.Weekdays[1] != time.Thursday {
				t.Fatalf("Weekdays = %v", got.Weekdays)
			}
			if got.Template.RateCents != 185000 || got.Template.Origin.City != "Houston" {
				t.Fatalf("Template = %+v", got.Template)
			}
			if !got.Active || got.PickupHour != 9 || got.PickupMin != 30 {
				t.Fatalf("fields = %+v", got)
			}

			got.Active = false
			got.UpdatedAt = base.Add(time.Hour)
			if err := st.Schedules().Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}
			active, err := st.Schedules().List(ctx, ScheduleFilter{ActiveOnly: true})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(active) != 0 {
				t.Fatalf("active = %d, want 0", len(active))
			}

			if err := st.Schedules().Delete(ctx, "sch-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Schedules().Delete(ctx, "sch-1"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("Delete again = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestOccurrenceIdempotency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			o := domain.Occurrence{ScheduleID: "sch-1", Date: "2026-03-09", LoadID: "l-1"}
			if err := st.Schedules().PutOccurrence(ctx, o); err != nil {
				t.Fatalf("PutOccurrence: %v", err)
			}
			// Second put with a different load must not replace the first.
			o2 := o
			o2.LoadID = "l-2"
			if err := st.Schedules().PutOccurrence(ctx, o2); err != nil {
				t.Fatalf("PutOccurrence repeat: %v", err)
			}

			ok, err := st.Schedules().HasOccurrence(ctx, "sch-1", "2026-03-09")
			if err != nil || !ok {
				t.Fatalf("HasOccurrence = %v, %v", ok, err)
			}
			ok, err = st.Schedules().HasOccurrence(ctx, "sch-1", "2026-03-10")
			if err != nil || ok {
				t.Fatalf("HasOccurrence other date = %v, %v", ok, err)
			}

			all, err := st.Schedules().ListOccurrences(ctx, "sch-1")
			if err != nil {
				t.Fatalf("ListOccurrences: %v", err)
			}
			if len(all) != 1 || all[0].LoadID != "l-1" {
				t.Fatalf("occurrences = %+v", all)
			}
		})
	}
}

func TestTelemetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			p1 := domain.Position{VehicleID: "veh-1", Lat: 29.8, Lon: -95.4, SpeedMPH: 61, HeadingDeg: 350, At: base, ReceivedAt: base}
			p2 := p1
			p2.Lat, p2.At, p2.ReceivedAt = 30.1, base.Add(time.Minute), base.Add(time.Minute)
			if err := st.Telemetry().UpsertLast(ctx, p1); err != nil {
				t.Fatalf("UpsertLast: %v", err)
			}
			if err := st.Telemetry().UpsertLast(ctx, p2); err != nil {
				t.Fatalf("UpsertLast: %v", err)
			}

			last, ok, err := st.Telemetry().Last(ctx, "veh-1")
			if err != nil || !ok {
				t.Fatalf("Last = %v, %v", ok, err)
			}
			if last.Lat != 30.1 || !last.At.Equal(p2.At) {
				t.Fatalf("Last = %+v, want latest fix", last)
			}
			if _, ok, _ := st.Telemetry().Last(ctx, "veh-9"); ok {
				t.Fatal("unexpected fix for veh-9")
			}

			var hist []domain.Position
			for i := 0; i < 5; i++ {
				p := p1
				p.At = base.Add(time.Duration(i) * time.Minute)
				hist = append(hist, p)
			}
			if err := st.Telemetry().AppendHistory(ctx, hist); err != nil {
				t.Fatalf("AppendHistory: %v", err)
			}

			got, err := st.Telemetry().History(ctx, "veh-1", base.Add(2*time.Minute), 0)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("history = %d fixes, want 3", len(got))
			}
			if !got[0].At.After(got[1].At) {
				t.Fatalf("history not newest-first: %v, %v", got[0].At, got[1].At)
			}

			if err := st.Telemetry().PruneHistory(ctx, "veh-1", 2); err != nil {
				t.Fatalf("PruneHistory: %v", err)
			}
			got, err = st.Telemetry().History(ctx, "veh-1", time.Time{}, 0)
			if err != nil {
				t.Fatalf("History after prune: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("after prune = %d fixes, want 2", len(got))
			}
			if !got[0].At.Equal(base.Add(4 * time.Minute)) {
				t.Fatalf("kept wrong fixes: %v", got[0].At)
			}

			m, err := st.Telemetry().LastForVehicles(ctx, []string{"veh-1", "veh-9"})
			if err != nil {
				t.Fatalf("LastForVehicles: %v", err)
			}
			if len(m) != 1 || m["veh-1"].Lat != 30.1 {
				t.Fatalf("LastForVehicles = %+v", m)
			}
		})
	}
}

func TestBillingFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			seq1, err := st.Billing().NextInvoiceSeq(ctx, 2026)
			if err != nil {
				t.Fatalf("NextInvoiceSeq: %v", err)
			}
			seq2, err := st.Billing().NextInvoiceSeq(ctx, 2026)
			if err != nil {
				t.Fatalf("NextInvoiceSeq: %v", err)
			}
			other, err := st.Billing().NextInvoiceSeq(ctx, 2027)
			if err != nil {
				t.Fatalf("NextInvoiceSeq: %v", err)
			}
			if seq1 != 1 || seq2 != 2 || other != 1 {
				t.Fatalf("seqs = %d,%d,%d, want 1,2,1", seq1, seq2, other)
			}

			inv := domain.Invoice{
				ID: "inv-1", Number: "INV-2026-00001", LoadID: "l-1", ShipperID: "ship-1",
				AmountCents: 185000, FeeCents: 27750, Status: domain.InvoiceSent,
				IssuedAt: base, DueAt: base.Add(30 * 24 * time.Hour),
			}
			if err := st.Billing().CreateInvoice(ctx, inv); err != nil {
				t.Fatalf("CreateInvoice: %v", err)
			}

			got, err := st.Billing().GetInvoice(ctx, "inv-1")
			if err != nil {
				t.Fatalf("GetInvoice: %v", err)
			}
			if !got.PaidAt.IsZero() {
				t.Fatalf("PaidAt = %v, want zero", got.PaidAt)
			}
			if got.BalanceCents() != 185000 {
				t.Fatalf("Balance = %d, want 185000", got.BalanceCents())
			}

			byLoad, ok, err := st.Billing().InvoiceByLoad(ctx, "l-1")
			if err != nil || !ok || byLoad.ID != "inv-1" {
				t.Fatalf("InvoiceByLoad = %+v, %v, %v", byLoad, ok, err)
			}

			pay := domain.Payment{ID: "pay-1", InvoiceID: "inv-1", AmountCents: 100000, Method: "ach", At: base.Add(time.Hour)}
			inv.PaidCents = 100000
			if err := st.Billing().ApplyPayment(ctx, pay, inv); err != nil {
				t.Fatalf("ApplyPayment: %v", err)
			}
			pay2 := domain.Payment{ID: "pay-2", InvoiceID: "inv-1", AmountCents: 85000, Method: "ach", At: base.Add(2 * time.Hour)}
			inv.PaidCents = 185000
			inv.Status = domain.InvoicePaid
			inv.PaidAt = pay2.At
			if err := st.Billing().ApplyPayment(ctx, pay2, inv); err != nil {
				t.Fatalf("ApplyPayment: %v", err)
			}

			got, err = st.Billing().GetInvoice(ctx, "inv-1")
			if err != nil {
				t.Fatalf("GetInvoice: %v", err)
			}
			if got.Status != domain.InvoicePaid || got.BalanceCents() != 0 || !got.PaidAt.Equal(pay2.At) {
				t.Fatalf("after payments = %+v", got)
			}

			pays, err := st.Billing().ListPayments(ctx, "inv-1")
			if err != nil {
				t.Fatalf("ListPayments: %v", err)
			}
			if len(pays) != 2 || pays[0].ID != "pay-1" {
				t.Fatalf("payments = %+v", pays)
			}

			unpaid, err := st.Billing().ListInvoices(ctx, InvoiceFilter{Status: domain.InvoiceSent})
			if err != nil {
				t.Fatalf("ListInvoices: %v", err)
			}
			if len(unpaid) != 0 {
				t.Fatalf("sent invoices = %d, want 0", len(unpaid))
			}
		})
	}
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c := domain.Credential{
				ID: "cred-1", OwnerID: "user-1", Provider: domain.ProviderTelematics,
				KeyLast4: "4242", KeyEnc: "enc-key", SecretEnc: "enc-secret",
				CreatedAt: base, UpdatedAt: base,
			}
			if err := st.Credentials().Upsert(ctx, c); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			c.KeyLast4 = "9999"
			c.KeyEnc = "enc-key-2"
			c.UpdatedAt = base.Add(time.Hour)
			if err := st.Credentials().Upsert(ctx, c); err != nil {
				t.Fatalf("Upsert again: %v", err)
			}

			got, ok, err := st.Credentials().Get(ctx, "user-1", domain.ProviderTelematics)
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if got.KeyLast4 != "9999" || got.KeyEnc != "enc-key-2" {
				t.Fatalf("after upsert = %+v", got)
			}

			list, err := st.Credentials().List(ctx, "user-1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("list = %d, want 1", len(list))
			}

			if err := st.Credentials().Delete(ctx, "user-1", domain.ProviderTelematics); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			// Removing an absent credential stays quiet.
			if err := st.Credentials().Delete(ctx, "user-1", domain.ProviderTelematics); err != nil {
				t.Fatalf("Delete again: %v", err)
			}
			if _, ok, _ := st.Credentials().Get(ctx, "user-1", domain.ProviderTelematics); ok {
				t.Fatal("credential still present after delete")
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, typ := range []domain.NotificationType{domain.NotifyLoadUpdate, domain.NotifyBidUpdate, domain.NotifyPaymentReceived} {
				n := domain.Notification{
					ID: "n-" + string(rune('a'+i)), UserID: "user-1", Type: typ,
					Title: "update", CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				if err := st.Notifications().Create(ctx, n); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			count, err := st.Notifications().UnreadCount(ctx, "user-1")
			if err != nil {
				t.Fatalf("UnreadCount: %v", err)
			}
			if count != 3 {
				t.Fatalf("unread = %d, want 3", count)
			}

			if err := st.Notifications().MarkRead(ctx, "n-a", "user-1"); err != nil {
				t.Fatalf("MarkRead: %v", err)
			}
			if err := st.Notifications().MarkRead(ctx, "n-b", "user-2"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("MarkRead wrong user = %v, want ErrNotFound", err)
			}

			unread, err := st.Notifications().ListByUser(ctx, "user-1", true, 0)
			if err != nil {
				t.Fatalf("ListByUser: %v", err)
			}
			if len(unread) != 2 {
				t.Fatalf("unread list = %d, want 2", len(unread))
			}
			if unread[0].ID != "n-c" {
				t.Fatalf("newest first, got %s", unread[0].ID)
			}

			marked, err := st.Notifications().MarkAllRead(ctx, "user-1")
			if err != nil {
				t.Fatalf("MarkAllRead: %v", err)
			}
			if marked != 2 {
				t.Fatalf("marked = %d, want 2", marked)
			}
			count, _ = st.Notifications().UnreadCount(ctx, "user-1")
			if count != 0 {
				t.Fatalf("unread after mark all = %d, want 0", count)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Profiles().Get(ctx, "drv-1"); err != nil || ok {
				t.Fatalf("Get before upsert = %v, %v", ok, err)
			}

			p := domain.DriverProfile{
				DriverID: "drv-1", XP: 2200, Level: 2, LoadsCompleted: 12,
				SafetyScore: 0.97, Achievements: []string{"zero_incident_run"}, UpdatedAt: base,
			}
			if err := st.Profiles().Upsert(ctx, p); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			p2 := domain.DriverProfile{DriverID: "drv-2", XP: 4800, Level: 3, UpdatedAt: base}
			if err := st.Profiles().Upsert(ctx, p2); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			got, ok, err := st.Profiles().Get(ctx, "drv-1")
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if len(got.Achievements) != 1 || got.Achievements[0] != "zero_incident_run" {
				t.Fatalf("Achievements = %v", got.Achievements)
			}

			board, err := st.Profiles().Leaderboard(ctx, 10)
			if err != nil {
				t.Fatalf("Leaderboard: %v", err)
			}
			if len(board) != 2 || board[0].DriverID != "drv-2" {
				t.Fatalf("leaderboard = %+v", board)
			}
		})
	}
}

func TestComplianceDocs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			d := domain.ComplianceDoc{ID: "doc-1", SubjectID: "drv-1", Kind: "cdl", Number: "TX123",
				ExpiresAt: base.Add(20 * 24 * time.Hour), CreatedAt: base}
			if err := st.Compliance().UpsertDoc(ctx, d); err != nil {
				t.Fatalf("UpsertDoc: %v", err)
			}
			// Renewal replaces the row for the same (subject, kind).
			d2 := d
			d2.ID = "doc-2"
			d2.ExpiresAt = base.Add(400 * 24 * time.Hour)
			if err := st.Compliance().UpsertDoc(ctx, d2); err != nil {
				t.Fatalf("UpsertDoc renewal: %v", err)
			}
			med := domain.ComplianceDoc{ID: "doc-3", SubjectID: "drv-1", Kind: "medical_card",
				ExpiresAt: base.Add(10 * 24 * time.Hour), CreatedAt: base}
			if err := st.Compliance().UpsertDoc(ctx, med); err != nil {
				t.Fatalf("UpsertDoc: %v", err)
			}

			all, err := st.Compliance().ListDocsBySubject(ctx, "drv-1")
			if err != nil {
				t.Fatalf("ListDocsBySubject: %v", err)
			}
			if len(all) != 2 {
				t.Fatalf("docs = %d, want 2", len(all))
			}

			expiring, err := st.Compliance().ListExpiring(ctx, base.Add(90*24*time.Hour))
			if err != nil {
				t.Fatalf("ListExpiring: %v", err)
			}
			if len(expiring) != 1 || expiring[0].Kind != "medical_card" {
				t.Fatalf("expiring = %+v", expiring)
			}
		})
	}
}

func TestInspections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ins := domain.Inspection{ID: "ins-1", VehicleID: "veh-1", DriverID: "drv-1", At: base,
				Defects: []string{"brake_lamp"}, OutOfService: false}
			if err := st.Compliance().CreateInspection(ctx, ins); err != nil {
				t.Fatalf("CreateInspection: %v", err)
			}
			ins2 := domain.Inspection{ID: "ins-2", VehicleID: "veh-1", At: base.Add(time.Hour), OutOfService: true}
			if err := st.Compliance().CreateInspection(ctx, ins2); err != nil {
				t.Fatalf("CreateInspection: %v", err)
			}

			got, err := st.Compliance().ListInspections(ctx, "veh-1", 0)
			if err != nil {
				t.Fatalf("ListInspections: %v", err)
			}
			if len(got) != 2 || got[0].ID != "ins-2" {
				t.Fatalf("inspections = %+v", got)
			}
			if !got[0].OutOfService || len(got[1].Defects) != 1 {
				t.Fatalf("fields = %+v", got)
			}
		})
	}
}

func TestHazmatIncidents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			in := domain.HazmatIncident{ID: "hz-1", LoadID: "l-1", UNNumber: "1203", GuideNo: 128,
				Location: "I-45 mm 112", CreatedAt: base}
			if err := st.Hazmat().CreateIncident(ctx, in); err != nil {
				t.Fatalf("CreateIncident: %v", err)
			}
			in2 := domain.HazmatIncident{ID: "hz-2", UNNumber: "1005", GuideNo: 125, CreatedAt: base.Add(time.Hour)}
			if err := st.Hazmat().CreateIncident(ctx, in2); err != nil {
				t.Fatalf("CreateIncident: %v", err)
			}

			got, err := st.Hazmat().ListIncidents(ctx, "l-1", 0)
			if err != nil {
				t.Fatalf("ListIncidents: %v", err)
			}
			if len(got) != 1 || got[0].GuideNo != 128 {
				t.Fatalf("incidents = %+v", got)
			}

			all, err := st.Hazmat().ListIncidents(ctx, "", 0)
			if err != nil {
				t.Fatalf("ListIncidents all: %v", err)
			}
			if len(all) != 2 || all[0].ID != "hz-2" {
				t.Fatalf("all incidents = %+v", all)
			}
		})
	}
}

func TestGeofences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			g := domain.Geofence{ID: "gf-1", Name: "REF_HOUSTON", Kind: domain.GeofenceFacility}
			g.Circle.Center.Lat, g.Circle.Center.Lon, g.Circle.RadiusMeters = 29.7604, -95.3698, 5000
			if err := st.Geofences().Put(ctx, g); err != nil {
				t.Fatalf("Put: %v", err)
			}
			g.Circle.RadiusMeters = 6000
			if err := st.Geofences().Put(ctx, g); err != nil {
				t.Fatalf("Put update: %v", err)
			}

			list, err := st.Geofences().List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 || list[0].Circle.RadiusMeters != 6000 {
				t.Fatalf("geofences = %+v", list)
			}

			if err := st.Geofences().Delete(ctx, "gf-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Geofences().Delete(ctx, "gf-1"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("Delete again = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			e := AuditEntry{Actor: "user-1", Action: "load.create", Entity: "load", EntityID: "l-1", OK: true, TookMS: 4}
			if err := st.AppendAudit(ctx, e); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}

func TestOpenBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("Open without driver: expected error")
	}
	if _, err := Open(Config{Driver: "oracle"}, logx.Nop()); err == nil {
		t.Fatal("Open oracle: expected error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("Open sqlite without path: expected error")
	}
}
