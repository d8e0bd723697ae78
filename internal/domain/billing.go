package domain

import "time"

// InvoiceStatus is the collection state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

// Invoice bills a shipper for a delivered load. Amounts are cents.
type Invoice struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	LoadID      string        `json:"load_id"`
	ShipperID   string        `json:"shipper_id"`
	AmountCents int64         `json:"amount_cents"`
	FeeCents    int64         `json:"fee_cents"`
	PaidCents   int64         `json:"paid_cents"`
	Status      InvoiceStatus `json:"status"`
	IssuedAt    time.Time     `json:"issued_at"`
	DueAt       time.Time     `json:"due_at"`
	PaidAt      time.Time     `json:"paid_at,omitzero"`
}

// BalanceCents returns the unpaid remainder.
func (i Invoice) BalanceCents() int64 {
	return i.AmountCents - i.PaidCents
}

// Payment records money applied to an invoice.
type Payment struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	At          time.Time `json:"at"`
}
