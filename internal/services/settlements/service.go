// Package settlements turns delivered loads into invoices and follows
// the money: payments, aging and factoring quotes.
package settlements

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

type Config struct {
	// CommissionBP is the platform fee in basis points of the load rate.
	CommissionBP int
	// TermsDays is the invoice net term.
	TermsDays int
}

func (c Config) withDefaults() Config {
	if c.CommissionBP <= 0 {
		c.CommissionBP = 1500 // 15% flat
	}
	if c.TermsDays <= 0 {
		c.TermsDays = 30
	}
	return c
}

type Service struct {
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	unsub    func()
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   bus,
		log:   log.With(logx.String("component", "settlements")),
		now:   time.Now,
	}
}

// Start subscribes to load status changes so delivered loads invoice
// themselves.
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
	s.log.Info("settlements started")
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
	s.log.Info("settlements stopped")
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
			if !ok || sc.Load.Status != domain.StatusDelivered {
				continue
			}
			if _, err := s.GenerateInvoice(ctx, sc.Load.ID, "settlements"); err != nil {
				s.log.Warn("auto invoice failed", logx.Err(err), logx.String("load", sc.Load.ID))
			}
		}
	}
}

// GenerateInvoice bills the shipper for a delivered load. One invoice
// per load; a second call is a conflict.
func (s *Service) GenerateInvoice(ctx context.Context, loadID, actor string) (domain.Invoice, error) {
	start := time.Now()
	l, err := s.store.Loads().Get(ctx, loadID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if l.Status != domain.StatusDelivered && l.Status != domain.StatusCompleted {
		return domain.Invoice{}, fmt.Errorf("load %s is %s, not delivered: %w", l.Ref, l.Status, domain.ErrConflict)
	}
	if _, exists, err := s.store.Billing().InvoiceByLoad(ctx, loadID); err != nil {
		return domain.Invoice{}, fmt.Errorf("invoice lookup: %w", err)
	} else if exists {
		return domain.Invoice{}, fmt.Errorf("load %s already invoiced: %w", l.Ref, domain.ErrConflict)
	}

	now := s.now().UTC()
	seq, err := s.store.Billing().NextInvoiceSeq(ctx, now.Year())
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("invoice seq: %w", err)
	}

	inv := domain.Invoice{
		ID:          domain.NewID(),
		Number:      fmt.Sprintf("INV-%d-%05d", now.Year(), seq),
		LoadID:      l.ID,
		ShipperID:   l.ShipperID,
		AmountCents: l.RateCents,
		FeeCents:    s.feeCents(l.RateCents),
		Status:      domain.InvoiceDraft,
		IssuedAt:    now,
		DueAt:       now.AddDate(0, 0, s.cfg.TermsDays),
	}
	err = s.store.Billing().CreateInvoice(ctx, inv)
	s.audit(ctx, actor, "invoice.create", inv.ID, start, err)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	s.log.Info("invoice generated",
		logx.String("invoice", inv.Number),
		logx.String("load", l.Ref),
		logx.Int64("amount_cents", inv.AmountCents),
		logx.Int64("fee_cents", inv.FeeCents))
	return inv, nil
}

// Send marks a draft invoice as delivered to the shipper.
func (s *Service) Send(ctx context.Context, invoiceID, actor string) (domain.Invoice, error) {
	start := time.Now()
	inv, err := s.store.Billing().GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.Status != domain.InvoiceDraft {
		return domain.Invoice{}, fmt.Errorf("invoice is %s: %w", inv.Status, domain.ErrConflict)
	}
	inv.Status = domain.InvoiceSent
	err = s.store.Billing().UpdateInvoice(ctx, inv)
	s.audit(ctx, actor, "invoice.send", inv.ID, start, err)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	s.log.Info("invoice sent", logx.String("invoice", inv.Number))
	return inv, nil
}

// RecordPayment applies money to an invoice. Partial payments are fine;
// paying past the balance is rejected; reaching zero marks it paid.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, amountCents int64, method, reference string) (domain.Invoice, error) {
	start := time.Now()
	if amountCents <= 0 {
		return domain.Invoice{}, domain.Invalid("amount_cents", "must be positive")
	}
	inv, err := s.store.Billing().GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.Status == domain.InvoicePaid || inv.Status == domain.InvoiceVoid {
		return domain.Invoice{}, fmt.Errorf("invoice is %s: %w", inv.Status, domain.ErrConflict)
	}
	if amountCents > inv.BalanceCents() {
		return domain.Invoice{}, domain.Invalid("amount_cents",
			fmt.Sprintf("exceeds balance of %d cents", inv.BalanceCents()))
	}

	now := s.now().UTC()
	p := domain.Payment{
		ID:          domain.NewID(),
		InvoiceID:   inv.ID,
		AmountCents: amountCents,
		Method:      method,
		Reference:   reference,
		At:          now,
	}
	inv.PaidCents += amountCents
	if inv.BalanceCents() == 0 {
		inv.Status = domain.InvoicePaid
		inv.PaidAt = now
	}

	err = s.store.Billing().ApplyPayment(ctx, p, inv)
	s.audit(ctx, method, "invoice.payment", inv.ID, start, err)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("apply payment: %w", err)
	}

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypePaymentReceived,
		Time: now,
		Data: eventbus.PaymentEvent{Invoice: inv, Payment: p},
	})
	s.log.Info("payment recorded",
		logx.String("invoice", inv.Number),
		logx.Int64("amount_cents", amountCents),
		logx.Int64("balance_cents", inv.BalanceCents()))
	return inv, nil
}

func (s *Service) Invoice(ctx context.Context, id string) (domain.Invoice, error) {
	return s.store.Billing().GetInvoice(ctx, id)
}

func (s *Service) Invoices(ctx context.Context, f storage.InvoiceFilter) ([]domain.Invoice, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.Billing().ListInvoices(ctx, f)
}

func (s *Service) Payments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	if _, err := s.store.Billing().GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.store.Billing().ListPayments(ctx, invoiceID)
}

// Factoring quotes same-day funding on an open invoice's balance.
func (s *Service) Factoring(ctx context.Context, invoiceID string) (FactoringQuote, error) {
	inv, err := s.store.Billing().GetInvoice(ctx, invoiceID)
	if err != nil {
		return FactoringQuote{}, err
	}
	if inv.Status == domain.InvoicePaid || inv.Status == domain.InvoiceVoid {
		return FactoringQuote{}, fmt.Errorf("invoice is %s: %w", inv.Status, domain.ErrConflict)
	}
	return quoteFactoring(inv.ID, inv.BalanceCents()), nil
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "invoice",
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
