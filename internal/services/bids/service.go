// Package bids runs the carrier bidding flow on open loads.
package bids

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time
}

func New(store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "bids")),
		now:   time.Now,
	}
}

// Submit places a carrier's offer on an open load. A carrier holds at
// most one open bid per load; submitting again replaces the amount.
func (s *Service) Submit(ctx context.Context, loadID, carrierID string, amountCents int64, note string) (domain.Bid, error) {
	start := time.Now()
	if carrierID == "" {
		return domain.Bid{}, domain.Invalid("carrier_id", "required")
	}
	if amountCents <= 0 {
		return domain.Bid{}, domain.Invalid("amount_cents", "must be positive")
	}

	l, err := s.store.Loads().Get(ctx, loadID)
	if err != nil {
		return domain.Bid{}, err
	}
	if l.Status != domain.StatusPending || l.Assigned() {
		return domain.Bid{}, fmt.Errorf("load %s is not open for bids: %w", l.Ref, domain.ErrConflict)
	}

	now := s.now().UTC()
	prev, found, err := s.store.Bids().OpenByLoadAndCarrier(ctx, loadID, carrierID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("bid lookup: %w", err)
	}

	var b domain.Bid
	if found {
		b = prev
		b.AmountCents = amountCents
		b.Note = note
		b.UpdatedAt = now
		err = s.store.Bids().Update(ctx, b)
	} else {
		b = domain.Bid{
			ID:          domain.NewID(),
			LoadID:      loadID,
			CarrierID:   carrierID,
			AmountCents: amountCents,
			Note:        note,
			Status:      domain.BidPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.store.Bids().Create(ctx, b)
	}
	s.audit(ctx, carrierID, "bid.submit", b.ID, start, err)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("save bid: %w", err)
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeBidSubmitted,
		Time: now,
		Data: eventbus.BidEvent{Bid: b, Load: l},
	})
	s.log.Info("bid submitted",
		logx.String("bid", b.ID),
		logx.String("load", loadID),
		logx.String("carrier", carrierID),
		logx.Int64("amount_cents", amountCents),
		logx.Bool("replaced", found))
	return b, nil
}

// ListByLoad returns all bids on a load, newest first.
func (s *Service) ListByLoad(ctx context.Context, loadID string) ([]domain.Bid, error) {
	if _, err := s.store.Loads().Get(ctx, loadID); err != nil {
		return nil, err
	}
	return s.store.Bids().ListByLoad(ctx, loadID)
}

// Accept awards the load to one bid. Sibling open bids are rejected, the
// carrier is assigned and the load rate becomes the bid amount, all in a
// single transaction.
func (s *Service) Accept(ctx context.Context, bidID, actor string) (domain.Bid, error) {
	start := time.Now()
	b, err := s.store.Bids().Get(ctx, bidID)
	if err != nil {
		return domain.Bid{}, err
	}
	if !b.Open() {
		return domain.Bid{}, fmt.Errorf("bid is %s: %w", b.Status, domain.ErrConflict)
	}
	l, err := s.store.Loads().Get(ctx, b.LoadID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("load %s: %w", b.LoadID, err)
	}
	if l.Status != domain.StatusPending || l.Assigned() {
		return domain.Bid{}, fmt.Errorf("load %s already %s: %w", l.Ref, l.Status, domain.ErrConflict)
	}

	siblings, err := s.store.Bids().ListByLoad(ctx, b.LoadID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("list bids: %w", err)
	}

	now := s.now().UTC()
	b.Status = domain.BidAccepted
	b.UpdatedAt = now

	var rejected []domain.Bid
	for _, sib := range siblings {
		if sib.ID == b.ID || !sib.Open() {
			continue
		}
		sib.Status = domain.BidRejected
		sib.UpdatedAt = now
		rejected = append(rejected, sib)
	}

	prev := l.Status
	l.CarrierID = b.CarrierID
	l.RateCents = b.AmountCents
	l.Status = domain.StatusBooked
	l.UpdatedAt = now

	err = s.store.AcceptBid(ctx, b, rejected, l)
	s.audit(ctx, actor, "bid.accept", b.ID, start, err)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("accept bid: %w", err)
	}
	if terr := s.store.Loads().AppendTimeline(ctx, domain.TimelineEntry{
		LoadID: l.ID, At: now, From: prev, To: l.Status, Actor: actor,
		Note: fmt.Sprintf("bid accepted from %s", b.CarrierID),
	}); terr != nil {
		s.log.Warn("timeline append failed", logx.Err(terr), logx.String("load", l.ID))
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeBidAccepted,
		Time: now,
		Data: eventbus.BidEvent{Bid: b, Load: l},
	})
	s.log.Info("bid accepted",
		logx.String("bid", b.ID),
		logx.String("load", l.ID),
		logx.String("carrier", b.CarrierID),
		logx.Int("rejected", len(rejected)))
	return b, nil
}

// Withdraw retracts a carrier's own open bid.
func (s *Service) Withdraw(ctx context.Context, bidID, carrierID string) (domain.Bid, error) {
	start := time.Now()
	b, err := s.store.Bids().Get(ctx, bidID)
	if err != nil {
		return domain.Bid{}, err
	}
	if b.CarrierID != carrierID {
		return domain.Bid{}, domain.Invalid("carrier_id", "bid belongs to another carrier")
	}
	if !b.Open() {
		return domain.Bid{}, fmt.Errorf("bid is %s: %w", b.Status, domain.ErrConflict)
	}

	b.Status = domain.BidWithdrawn
	b.UpdatedAt = s.now().UTC()
	err = s.store.Bids().Update(ctx, b)
	s.audit(ctx, carrierID, "bid.withdraw", b.ID, start, err)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("update bid: %w", err)
	}
	s.log.Info("bid withdrawn", logx.String("bid", b.ID), logx.String("carrier", carrierID))
	return b, nil
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "bid",
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
