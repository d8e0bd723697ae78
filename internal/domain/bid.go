package domain

import "time"

// BidStatus is the state of a carrier's offer on a load.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// Bid is a carrier's proposed price for a load.
type Bid struct {
	ID          string    `json:"id"`
	LoadID      string    `json:"load_id"`
	CarrierID   string    `json:"carrier_id"`
	AmountCents int64     `json:"amount_cents"`
	Note        string    `json:"note,omitempty"`
	Status      BidStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Open reports whether the bid is still actionable.
func (b Bid) Open() bool {
	return b.Status == BidPending
}
