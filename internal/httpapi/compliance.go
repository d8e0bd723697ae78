package httpapi

import (
	"net/http"
	"time"

	"eusotrip/internal/services/compliance"
	"eusotrip/internal/services/hazmat"
)

func (s *Server) handleComplianceExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Compliance.Expiring(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleComplianceDocs(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Compliance.Docs(r.Context(), r.URL.Query().Get("subject_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleComplianceDocUpsert(w http.ResponseWriter, r *http.Request) {
	var in compliance.DocInput
	if !s.decode(w, r, &in) {
		return
	}
	doc, err := s.svc.Compliance.UpsertDoc(r.Context(), in, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, doc)
}

func (s *Server) handleDriverHOS(w http.ResponseWriter, r *http.Request) {
	tripMinutes, err := queryInt(r, "trip_minutes")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Compliance.HOSCheck(r.Context(), r.PathValue("id"), tripMinutes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleInspectionList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Compliance.Inspections(r.Context(), r.URL.Query().Get("vehicle_id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleInspectionRecord(w http.ResponseWriter, r *http.Request) {
	var in compliance.InspectionInput
	if !s.decode(w, r, &in) {
		return
	}
	insp, err := s.svc.Compliance.RecordInspection(r.Context(), in, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, insp)
}

func (s *Server) handleHazmatGuide(w http.ResponseWriter, r *http.Request) {
	g, err := hazmat.GuidanceFor(r.PathValue("un"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, g)
}

func (s *Server) handleHazmatIncidentList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Hazmat.Incidents(r.Context(), r.URL.Query().Get("load_id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleHazmatIncidentRecord(w http.ResponseWriter, r *http.Request) {
	var in hazmat.IncidentInput
	if !s.decode(w, r, &in) {
		return
	}
	inc, err := s.svc.Hazmat.RecordIncident(r.Context(), in, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, inc)
}
