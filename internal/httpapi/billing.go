package httpapi

import (
	"net/http"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
)

func (s *Server) handleInvoiceList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := domain.InvoiceStatus(q.Get("status"))
	switch status {
	case "", domain.InvoiceDraft, domain.InvoiceSent, domain.InvoicePaid, domain.InvoiceVoid:
	default:
		s.fail(w, r, domain.Invalid("status", "unknown invoice status"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Settlements.Invoices(r.Context(), storage.InvoiceFilter{
		Status:    status,
		ShipperID: q.Get("shipper_id"),
		Limit:     limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleInvoiceCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		LoadID string `json:"load_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	inv, err := s.svc.Settlements.GenerateInvoice(r.Context(), in.LoadID, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, inv)
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.Settlements.Invoice(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, inv)
}

func (s *Server) handleInvoiceSend(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.Settlements.Send(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, inv)
}

func (s *Server) handlePaymentList(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Settlements.Payments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handlePaymentRecord(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AmountCents int64  `json:"amount_cents"`
		Method      string `json:"method"`
		Reference   string `json:"reference"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	inv, err := s.svc.Settlements.RecordPayment(r.Context(), r.PathValue("id"), in.AmountCents, in.Method, in.Reference)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, inv)
}

func (s *Server) handleFactoringQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.svc.Settlements.Factoring(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, quote)
}

func (s *Server) handleAging(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryTime(r, "as_of")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.svc.Settlements.Aging(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, rep)
}

func (s *Server) handleAccountingSummary(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	sum, err := s.svc.Settlements.SummarizePeriod(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sum)
}
