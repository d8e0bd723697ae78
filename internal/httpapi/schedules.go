package httpapi

import (
	"net/http"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/recurring"
)

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Recurring.List(r.Context(), r.URL.Query().Get("shipper_id"), activeOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var in recurring.CreateInput
	if !s.decode(w, r, &in) {
		return
	}
	in.Actor = actorFrom(r)
	sched, err := s.svc.Recurring.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, sched)
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	sched, err := s.svc.Recurring.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sched)
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Recurring.Delete(r.Context(), r.PathValue("id"), actorFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleSchedulePause(w http.ResponseWriter, r *http.Request) {
	sched, err := s.svc.Recurring.Pause(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sched)
}

func (s *Server) handleScheduleResume(w http.ResponseWriter, r *http.Request) {
	sched, err := s.svc.Recurring.Resume(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sched)
}

// handleScheduleMaterialize expands the schedule synchronously so the
// caller sees which occurrences were created and which failed.
func (s *Server) handleScheduleMaterialize(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Recurring.Materialize(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleScheduleOccurrences(w http.ResponseWriter, r *http.Request) {
	occ, err := s.svc.Recurring.Occurrences(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, occ)
}

func (s *Server) handleDispatchRecommend(w http.ResponseWriter, r *http.Request) {
	loadID := r.URL.Query().Get("load_id")
	if loadID == "" {
		s.fail(w, r, domain.Invalid("load_id", "required"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.svc.Dispatch.Recommend(r.Context(), loadID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, recs)
}
