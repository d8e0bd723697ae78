package bids

import (
	"context"
	"errors"
	"testing"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc := New(st, eventbus.New(), logx.Nop())

	// Deterministic, strictly advancing clock so newest-first ordering
	// is stable.
	tick := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc, st
}

func seedLoad(t *testing.T, st storage.Store, id string, status domain.LoadStatus) domain.Load {
	t.Helper()
	l := domain.Load{
		ID:        id,
		Ref:       "LD-" + id,
		ShipperID: "shp-1",
		Origin:    domain.Stop{City: "Houston", State: "TX"},
		Dest:      domain.Stop{City: "Dallas", State: "TX"},
		Equipment: domain.EquipmentVan,
		RateCents: 185000,
		PickupAt:  time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC),
		Status:    status,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := st.Loads().Create(context.Background(), l); err != nil {
		t.Fatalf("seed load: %v", err)
	}
	return l
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()
	seedLoad(t, st, "l-1", domain.StatusPending)

	if _, err := svc.Submit(ctx, "l-1", "", 1000, ""); !domain.IsValidation(err) {
		t.Fatalf("empty carrier error = %v, want validation error", err)
	}
	if _, err := svc.Submit(ctx, "l-1", "car-1", 0, ""); !domain.IsValidation(err) {
		t.Fatalf("zero amount error = %v, want validation error", err)
	}
	if _, err := svc.Submit(ctx, "missing", "car-1", 1000, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing load error = %v, want ErrNotFound", err)
	}

	seedLoad(t, st, "l-2", domain.StatusBooked)
	if _, err := svc.Submit(ctx, "l-2", "car-1", 1000, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("booked load error = %v, want ErrConflict", err)
	}
}

func TestSubmitReplacesOpenBid(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()
	seedLoad(t, st, "l-1", domain.StatusPending)

	first, err := svc.Submit(ctx, "l-1", "car-1", 180000, "first offer")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(ctx, "l-1", "car-1", 172500, "sharper pencil")
	if err != nil {
		t.Fatalf("Submit again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmission created new bid %s, want update of %s", second.ID, first.ID)
	}
	if second.AmountCents != 172500 || second.Note != "sharper pencil" {
		t.Fatalf("bid after resubmit = %+v", second)
	}

	all, err := svc.ListByLoad(ctx, "l-1")
	if err != nil {
		t.Fatalf("ListByLoad: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("bids = %d, want 1", len(all))
	}

	// A different carrier gets its own bid.
	if _, err := svc.Submit(ctx, "l-1", "car-2", 169000, ""); err != nil {
		t.Fatalf("Submit car-2: %v", err)
	}
	all, err = svc.ListByLoad(ctx, "l-1")
	if err != nil {
		t.Fatalf("ListByLoad: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("bids = %d, want 2", len(all))
	}
	if all[0].CarrierID != "car-2" {
		t.Fatalf("newest bid carrier = %s, want car-2", all[0].CarrierID)
	}
}

func TestAcceptAwardsLoadAndRejectsSiblings(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()
	seedLoad(t, st, "l-1", domain.StatusPending)

	if _, err := svc.Submit(ctx, "l-1", "car-1", 180000, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	winner, err := svc.Submit(ctx, "l-1", "car-2", 172500, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "l-1", "car-3", 190000, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := svc.Accept(ctx, winner.ID, "shipper")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got.Status != domain.BidAccepted {
		t.Fatalf("Status = %s, want accepted", got.Status)
	}

	l, err := st.Loads().Get(ctx, "l-1")
	if err != nil {
		t.Fatalf("Get load: %v", err)
	}
	if l.CarrierID != "car-2" || l.RateCents != 172500 || l.Status != domain.StatusBooked {
		t.Fatalf("load after accept = %+v", l)
	}

	all, err := svc.ListByLoad(ctx, "l-1")
	if err != nil {
		t.Fatalf("ListByLoad: %v", err)
	}
	var accepted, rejected int
	for _, b := range all {
		switch b.Status {
		case domain.BidAccepted:
			accepted++
		case domain.BidRejected:
			rejected++
		}
	}
	if accepted != 1 || rejected != 2 {
		t.Fatalf("accepted = %d, rejected = %d, want 1 and 2", accepted, rejected)
	}

	// The load is booked now, no further accepts.
	loser := all[len(all)-1]
	if _, err := svc.Accept(ctx, loser.ID, "shipper"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Accept error = %v, want ErrConflict", err)
	}
}

func TestWithdraw(t *testing.T) {
	t.Parallel()
	svc, st := newTestService(t)
	ctx := context.Background()
	seedLoad(t, st, "l-1", domain.StatusPending)

	b, err := svc.Submit(ctx, "l-1", "car-1", 180000, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Withdraw(ctx, b.ID, "car-2"); !domain.IsValidation(err) {
		t.Fatalf("foreign withdraw error = %v, want validation error", err)
	}

	got, err := svc.Withdraw(ctx, b.ID, "car-1")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got.Status != domain.BidWithdrawn {
		t.Fatalf("Status = %s, want withdrawn", got.Status)
	}
	if _, err := svc.Withdraw(ctx, b.ID, "car-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double withdraw error = %v, want ErrConflict", err)
	}

	// Withdrawn bids cannot be accepted.
	if _, err := svc.Accept(ctx, b.ID, "shipper"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Accept withdrawn error = %v, want ErrConflict", err)
	}
}
