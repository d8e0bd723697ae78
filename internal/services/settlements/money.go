package settlements

// Factoring terms, in basis points. Commission comes from Config.
const (
	factoringAdvBP   = 9500 // 95% advance
	factoringFeeBP   = 250  // 2.5% fee
	basisPointsWhole = 10000
)

// bpOf applies a basis-point rate to a cent amount, rounding half up.
func bpOf(amountCents int64, bp int64) int64 {
	return (amountCents*bp + basisPointsWhole/2) / basisPointsWhole
}

// feeCents is the platform's cut of a load rate.
func (s *Service) feeCents(rateCents int64) int64 {
	return bpOf(rateCents, int64(s.cfg.CommissionBP))
}

// CarrierPayCents is what the carrier clears after the platform fee.
func (s *Service) CarrierPayCents(rateCents int64) int64 {
	return rateCents - s.feeCents(rateCents)
}

// FactoringQuote prices same-day funding of an invoice balance.
type FactoringQuote struct {
	InvoiceID    string `json:"invoice_id"`
	BalanceCents int64  `json:"balance_cents"`
	AdvanceCents int64  `json:"advance_cents"`
	FeeCents     int64  `json:"fee_cents"`
	NetCents     int64  `json:"net_cents"`
}

func quoteFactoring(invoiceID string, balanceCents int64) FactoringQuote {
	adv := bpOf(balanceCents, factoringAdvBP)
	fee := bpOf(balanceCents, factoringFeeBP)
	return FactoringQuote{
		InvoiceID:    invoiceID,
		BalanceCents: balanceCents,
		AdvanceCents: adv,
		FeeCents:     fee,
		NetCents:     adv - fee,
	}
}
