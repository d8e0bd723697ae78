package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

var testClock = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, ops *OpsAlerter) (*Service, storage.Store, eventbus.Bus) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New()
	svc := New(st, bus, ops, logx.Nop())
	tick := testClock
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc, st, bus
}

func sampleLoad() domain.Load {
	return domain.Load{
		ID:        "l-1",
		Ref:       "LD-00001",
		ShipperID: "shp-1",
		CarrierID: "car-1",
		DriverID:  "drv-1",
		Origin:    domain.Stop{City: "Houston", State: "TX"},
		Dest:      domain.Stop{City: "Dallas", State: "TX"},
		Equipment: domain.EquipmentVan,
		RateCents: 185000,
		Status:    domain.StatusInTransit,
	}
}

func TestFanoutLoadStatus(t *testing.T) {
	t.Parallel()

	notes := fanout(eventbus.Event{
		Type: eventbus.TypeLoadStatusChanged,
		Data: eventbus.StatusChange{Load: sampleLoad(), From: "loading", Actor: "car-1"},
	})
	// The carrier acted, so only shipper and driver hear about it.
	if len(notes) != 2 {
		t.Fatalf("notes = %d, want 2", len(notes))
	}
	if notes[0].UserID != "shp-1" || notes[1].UserID != "drv-1" {
		t.Fatalf("recipients = %s, %s, want shp-1, drv-1", notes[0].UserID, notes[1].UserID)
	}
	for _, n := range notes {
		if n.Type != domain.NotifyLoadUpdate || n.LoadID != "l-1" {
			t.Fatalf("note = %+v", n)
		}
		if !strings.Contains(n.Title, "in transit") {
			t.Fatalf("title = %q, want humanized status", n.Title)
		}
	}
}

func TestFanoutBidEvents(t *testing.T) {
	t.Parallel()

	bid := domain.Bid{ID: "b-1", LoadID: "l-1", CarrierID: "car-2", AmountCents: 172500}
	submitted := fanout(eventbus.Event{
		Type: eventbus.TypeBidSubmitted,
		Data: eventbus.BidEvent{Bid: bid, Load: sampleLoad()},
	})
	if len(submitted) != 1 || submitted[0].UserID != "shp-1" || submitted[0].Type != domain.NotifyBidUpdate {
		t.Fatalf("submitted notes = %+v", submitted)
	}
	if !strings.Contains(submitted[0].Body, "$1725.00") {
		t.Fatalf("body = %q, want dollar amount", submitted[0].Body)
	}

	accepted := fanout(eventbus.Event{
		Type: eventbus.TypeBidAccepted,
		Data: eventbus.BidEvent{Bid: bid, Load: sampleLoad()},
	})
	if len(accepted) != 1 || accepted[0].UserID != "car-2" {
		t.Fatalf("accepted notes = %+v", accepted)
	}
}

func TestFanoutCompliance(t *testing.T) {
	t.Parallel()

	expiring := fanout(eventbus.Event{
		Type: eventbus.TypeComplianceAlert,
		Data: eventbus.ComplianceAlert{SubjectID: "drv-1", Kind: domain.DocCDL, Message: "cdl expires in 10 days"},
	})
	if len(expiring) != 1 || expiring[0].Type != domain.NotifyDocumentRequired {
		t.Fatalf("expiring notes = %+v, want document_required", expiring)
	}

	oos := fanout(eventbus.Event{
		Type: eventbus.TypeComplianceAlert,
		Data: eventbus.ComplianceAlert{SubjectID: "veh-1", Kind: "vehicle_out_of_service", Message: "unit 4021 failed inspection", Critical: true},
	})
	if len(oos) != 1 || oos[0].Type != domain.NotifyComplianceAlert {
		t.Fatalf("out-of-service notes = %+v, want compliance_alert", oos)
	}
}

func TestOpsMessage(t *testing.T) {
	t.Parallel()

	restricted := domain.Geofence{ID: "g-1", Name: "RESTRICTED_ZONE_LA", Kind: domain.GeofenceRestricted}
	facility := domain.Geofence{ID: "g-2", Name: "Gulf DC", Kind: domain.GeofenceFacility}
	fix := domain.Position{VehicleID: "veh-1"}

	tests := []struct {
		name string
		e    eventbus.Event
		want bool
	}{
		{"restricted entry", eventbus.Event{Type: eventbus.TypeGeofenceEvent, Data: eventbus.GeofenceEvent{Fence: restricted, Position: fix, Entered: true}}, true},
		{"restricted exit", eventbus.Event{Type: eventbus.TypeGeofenceEvent, Data: eventbus.GeofenceEvent{Fence: restricted, Position: fix, Entered: false}}, false},
		{"facility entry", eventbus.Event{Type: eventbus.TypeGeofenceEvent, Data: eventbus.GeofenceEvent{Fence: facility, Position: fix, Entered: true}}, false},
		{"critical compliance", eventbus.Event{Type: eventbus.TypeComplianceAlert, Data: eventbus.ComplianceAlert{SubjectID: "drv-1", Message: "cdl expires in 5 days", Critical: true}}, true},
		{"routine compliance", eventbus.Event{Type: eventbus.TypeComplianceAlert, Data: eventbus.ComplianceAlert{SubjectID: "drv-1", Message: "cdl expires in 80 days"}}, false},
		{"job failure", eventbus.Event{Type: eventbus.TypeJobFailed, Data: eventbus.JobFailure{Job: "compliance.sweep", Error: "boom"}}, true},
		{"hazmat incident", eventbus.Event{Type: eventbus.TypeHazmatIncident, Data: eventbus.HazmatEvent{Incident: domain.HazmatIncident{UNNumber: "1203", GuideNo: 128}}}, true},
		{"position fix", eventbus.Event{Type: eventbus.TypePosition, Data: eventbus.PositionEvent{Position: fix}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, ok := opsMessage(tt.e)
			if ok != tt.want {
				t.Fatalf("opsMessage ok = %v, want %v (msg %q)", ok, tt.want, msg)
			}
			if ok && msg == "" {
				t.Fatal("qualifying event rendered empty message")
			}
		})
	}
}

func TestDispatchAndInAppFlow(t *testing.T) {
	t.Parallel()
	svc, _, bus := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	defer svc.Stop(context.Background())

	bus.Publish(eventbus.Event{
		Type: eventbus.TypeLoadStatusChanged,
		Data: eventbus.StatusChange{Load: sampleLoad(), From: "loading", Actor: "car-1"},
	})

	var notes []domain.Notification
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		notes, err = svc.List(ctx, "shp-1", false, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(notes) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notes = %d, want 1", len(notes))
		}
		time.Sleep(10 * time.Millisecond)
	}

	count, err := svc.UnreadCount(ctx, "shp-1")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("unread = %d, want 1", count)
	}

	if err := svc.MarkRead(ctx, notes[0].ID, "drv-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign mark-read error = %v, want ErrNotFound", err)
	}
	if err := svc.MarkRead(ctx, notes[0].ID, "shp-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	count, err = svc.UnreadCount(ctx, "shp-1")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("unread after mark = %d, want 0", count)
	}

	// Driver got the same fan-out; mark-all clears it.
	n, err := svc.MarkAllRead(ctx, "drv-1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked = %d, want 1", n)
	}
}

func TestListValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t, nil)

	if _, err := svc.List(context.Background(), "", false, 0); !domain.IsValidation(err) {
		t.Fatalf("empty user error = %v, want validation error", err)
	}
	if _, err := svc.UnreadCount(context.Background(), " "); !domain.IsValidation(err) {
		t.Fatalf("blank user error = %v, want validation error", err)
	}
}
