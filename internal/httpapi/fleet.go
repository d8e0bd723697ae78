package httpapi

import (
	"net/http"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/telemetry"
)

func (s *Server) handlePositionReport(w http.ResponseWriter, r *http.Request) {
	var p domain.Position
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.svc.Telemetry.Report(r.Context(), p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Telemetry.Fleet(r.Context(), r.URL.Query().Get("carrier_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleVehicleHistory(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Telemetry.History(r.Context(), r.PathValue("id"), since, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleGeofenceList(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Telemetry.Geofences(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleGeofencePut(w http.ResponseWriter, r *http.Request) {
	var in telemetry.GeofenceInput
	if !s.decode(w, r, &in) {
		return
	}
	f, err := s.svc.Telemetry.PutGeofence(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, f)
}

func (s *Server) handleGeofenceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Telemetry.DeleteGeofence(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}
