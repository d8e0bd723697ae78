package httpapi

import (
	"net/http"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/fleet"
)

func (s *Server) handleDriverRegister(w http.ResponseWriter, r *http.Request) {
	var in fleet.DriverInput
	if !s.decode(w, r, &in) {
		return
	}
	in.Actor = actorFrom(r)
	d, err := s.svc.Fleet.RegisterDriver(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, d)
}

func (s *Server) handleDriverList(w http.ResponseWriter, r *http.Request) {
	available, err := queryBool(r, "available")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Fleet.Drivers(r.Context(), r.URL.Query().Get("carrier_id"), available)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleDriverGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Fleet.Driver(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, d)
}

func (s *Server) handleDriverDuty(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Duty string           `json:"duty"`
		HOS  *domain.HOSClock `json:"hos"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	duty, ok := domain.ParseDutyStatus(in.Duty)
	if !ok {
		s.fail(w, r, domain.Invalid("duty", "unknown duty status "+in.Duty))
		return
	}
	d, err := s.svc.Fleet.SetDuty(r.Context(), r.PathValue("id"), fleet.DutyUpdate{
		Duty:  duty,
		Clock: in.HOS,
		Actor: actorFrom(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, d)
}

func (s *Server) handleVehicleRegister(w http.ResponseWriter, r *http.Request) {
	var in fleet.VehicleInput
	if !s.decode(w, r, &in) {
		return
	}
	in.Actor = actorFrom(r)
	v, err := s.svc.Fleet.RegisterVehicle(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, v)
}

func (s *Server) handleVehicleList(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Fleet.Vehicles(r.Context(), r.URL.Query().Get("carrier_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleVehicleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Fleet.Vehicle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}

func (s *Server) handleVehicleStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status        string `json:"status"`
		OdometerMiles int64  `json:"odometer_miles"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	status, ok := domain.ParseVehicleStatus(in.Status)
	if !ok {
		s.fail(w, r, domain.Invalid("status", "unknown vehicle status "+in.Status))
		return
	}
	v, err := s.svc.Fleet.SetVehicleStatus(r.Context(), r.PathValue("id"), status, in.OdometerMiles, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}

func (s *Server) handleVehicleDriver(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DriverID string `json:"driver_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	v, err := s.svc.Fleet.AssignVehicleDriver(r.Context(), r.PathValue("id"), in.DriverID, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}
