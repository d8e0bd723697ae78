package httpapi

import (
	"net/http"
	"strings"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/loads"
)

func (s *Server) handleLoadList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var statuses []domain.LoadStatus
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := domain.ParseLoadStatus(strings.TrimSpace(part))
			if !ok {
				s.fail(w, r, domain.Invalid("status", "unknown status "+part))
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Loads.List(r.Context(), loads.Filter{
		Statuses:  statuses,
		ShipperID: q.Get("shipper_id"),
		CarrierID: q.Get("carrier_id"),
		DriverID:  q.Get("driver_id"),
		Limit:     limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleLoadCreate(w http.ResponseWriter, r *http.Request) {
	var in loads.CreateInput
	if !s.decode(w, r, &in) {
		return
	}
	in.Actor = actorFrom(r)
	l, err := s.svc.Loads.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, l)
}

func (s *Server) handleLoadGet(w http.ResponseWriter, r *http.Request) {
	l, err := s.svc.Loads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, l)
}

func (s *Server) handleLoadBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	equipment := domain.Equipment(q.Get("equipment"))
	if equipment != "" && !domain.ValidEquipment(equipment) {
		s.fail(w, r, domain.Invalid("equipment", "unknown equipment type"))
		return
	}
	hazmatOnly, err := queryBool(r, "hazmat_only")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	minRate, err := queryInt64(r, "min_rate_cents")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Loads.Board(r.Context(), loads.BoardQuery{
		OriginState:  q.Get("origin_state"),
		Equipment:    equipment,
		HazmatOnly:   hazmatOnly,
		MinRateCents: minRate,
		Limit:        limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	next, ok := domain.ParseLoadStatus(in.Status)
	if !ok {
		s.fail(w, r, domain.Invalid("status", "unknown status "+in.Status))
		return
	}
	l, err := s.svc.Loads.UpdateStatus(r.Context(), r.PathValue("id"), next, actorFrom(r), in.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, l)
}

func (s *Server) handleLoadAssign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CarrierID string `json:"carrier_id"`
		DriverID  string `json:"driver_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	l, err := s.svc.Loads.Assign(r.Context(), r.PathValue("id"), in.CarrierID, in.DriverID, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, l)
}

func (s *Server) handleLoadCancel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	l, err := s.svc.Loads.Cancel(r.Context(), r.PathValue("id"), actorFrom(r), in.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, l)
}

func (s *Server) handleLoadTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Loads.Timeline(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Telemetry.LoadProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, p)
}

func (s *Server) handleBidList(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Bids.ListByLoad(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleBidSubmit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CarrierID   string `json:"carrier_id"`
		AmountCents int64  `json:"amount_cents"`
		Note        string `json:"note"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	b, err := s.svc.Bids.Submit(r.Context(), r.PathValue("id"), in.CarrierID, in.AmountCents, in.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, b)
}

func (s *Server) handleBidAccept(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Bids.Accept(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, b)
}

func (s *Server) handleBidWithdraw(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CarrierID string `json:"carrier_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	b, err := s.svc.Bids.Withdraw(r.Context(), r.PathValue("id"), in.CarrierID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, b)
}
