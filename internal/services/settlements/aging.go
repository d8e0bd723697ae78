package settlements

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
)

// AgingBucket totals unpaid balances for one days-past-due band.
type AgingBucket struct {
	Label        string `json:"label"`
	Count        int    `json:"count"`
	BalanceCents int64  `json:"balance_cents"`
}

// AgingReport is the classic receivables view: current, 1-30, 31-60,
// 61-90 and 90+ days past due.
type AgingReport struct {
	AsOf         time.Time     `json:"as_of"`
	Buckets      []AgingBucket `json:"buckets"`
	TotalCents   int64         `json:"total_cents"`
	InvoiceCount int           `json:"invoice_count"`
}

// Aging buckets every invoice still carrying a balance by how far past
// due it is at asOf. A zero asOf means now.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}

	rep := AgingReport{
		AsOf: asOf,
		Buckets: []AgingBucket{
			{Label: "current"},
			{Label: "1-30"},
			{Label: "31-60"},
			{Label: "61-90"},
			{Label: "90+"},
		},
	}

	for _, status := range []domain.InvoiceStatus{domain.InvoiceDraft, domain.InvoiceSent} {
		invs, err := s.store.Billing().ListInvoices(ctx, storage.InvoiceFilter{Status: status, Limit: 10000})
		if err != nil {
			return AgingReport{}, fmt.Errorf("invoice list: %w", err)
		}
		for _, inv := range invs {
			bal := inv.BalanceCents()
			if bal <= 0 {
				continue
			}
			b := &rep.Buckets[bucketIndex(asOf, inv.DueAt)]
			b.Count++
			b.BalanceCents += bal
			rep.TotalCents += bal
			rep.InvoiceCount++
		}
	}
	return rep, nil
}

func bucketIndex(asOf, due time.Time) int {
	daysPast := int(asOf.Sub(due).Hours() / 24)
	switch {
	case daysPast <= 0:
		return 0
	case daysPast <= 30:
		return 1
	case daysPast <= 60:
		return 2
	case daysPast <= 90:
		return 3
	default:
		return 4
	}
}

// Summary rolls up a billing period.
type Summary struct {
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	InvoiceCount      int       `json:"invoice_count"`
	RevenueCents      int64     `json:"revenue_cents"`
	FeeCents          int64     `json:"fee_cents"`
	CarrierPayCents   int64     `json:"carrier_pay_cents"`
	CollectedCents    int64     `json:"collected_cents"`
	OutstandingCents  int64     `json:"outstanding_cents"`
}

// SummarizePeriod totals invoices issued in [from, to).
func (s *Service) SummarizePeriod(ctx context.Context, from, to time.Time) (Summary, error) {
	invs, err := s.store.Billing().ListInvoices(ctx, storage.InvoiceFilter{Limit: 10000})
	if err != nil {
		return Summary{}, fmt.Errorf("invoice list: %w", err)
	}

	sum := Summary{From: from, To: to}
	for _, inv := range invs {
		if inv.Status == domain.InvoiceVoid {
			continue
		}
		if inv.IssuedAt.Before(from) || !inv.IssuedAt.Before(to) {
			continue
		}
		sum.InvoiceCount++
		sum.RevenueCents += inv.AmountCents
		sum.FeeCents += inv.FeeCents
		sum.CarrierPayCents += inv.AmountCents - inv.FeeCents
		sum.CollectedCents += inv.PaidCents
		sum.OutstandingCents += inv.BalanceCents()
	}
	return sum, nil
}
