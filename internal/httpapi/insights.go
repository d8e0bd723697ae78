package httpapi

import (
	"net/http"

	"eusotrip/internal/services/analytics"
)

func (s *Server) analyticsPeriod(w http.ResponseWriter, r *http.Request) (analytics.Period, bool) {
	from, err := queryTime(r, "from")
	if err != nil {
		s.fail(w, r, err)
		return analytics.Period{}, false
	}
	to, err := queryTime(r, "to")
	if err != nil {
		s.fail(w, r, err)
		return analytics.Period{}, false
	}
	return analytics.Period{From: from, To: to}, true
}

func (s *Server) handleAnalyticsDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.analyticsPeriod(w, r)
	if !ok {
		return
	}
	dash, err := s.svc.Analytics.Dashboard(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, dash)
}

func (s *Server) handleAnalyticsLanes(w http.ResponseWriter, r *http.Request) {
	p, ok := s.analyticsPeriod(w, r)
	if !ok {
		return
	}
	lanes, err := s.svc.Analytics.LaneStats(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, lanes)
}

func (s *Server) handleAnalyticsWeekly(w http.ResponseWriter, r *http.Request) {
	weeks, err := queryInt(r, "weeks")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Analytics.WeeklyVolume(r.Context(), weeks)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleAnalyticsForecast(w http.ResponseWriter, r *http.Request) {
	weeks, err := queryInt(r, "weeks")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	horizon, err := queryInt(r, "horizon")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fc, err := s.svc.Analytics.VolumeForecast(r.Context(), weeks, horizon)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, fc)
}

func (s *Server) handleGamificationProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.svc.Gamification.Profile(r.Context(), r.PathValue("driverID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, prof)
}

func (s *Server) handleGamificationLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	board, err := s.svc.Gamification.Leaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, board)
}

// handleFuelEfficiency takes the fuel score feed from the telematics
// integration; gamification recomputes XP off it.
func (s *Server) handleFuelEfficiency(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Ratio float64 `json:"ratio"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	prof, err := s.svc.Gamification.SetFuelEfficiency(r.Context(), r.PathValue("id"), in.Ratio)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, prof)
}
