package httpapi

import (
	"net/http"
	"time"

	"eusotrip/internal/eventbus"
	"eusotrip/internal/jobs"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusView struct {
	UptimeSec int64            `json:"uptime_sec"`
	Jobs      *jobs.Snapshot   `json:"jobs,omitempty"`
	Schedules []jobs.CronEntry `json:"schedules,omitempty"`
	Events    *eventbus.Stats  `json:"events,omitempty"`
}

// handleStatus is the operator view: queue depth, per-job outcomes,
// registered cron schedules, event bus counters.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	view := statusView{UptimeSec: int64(time.Since(started).Seconds())}
	if s.svc.Jobs != nil {
		snap := s.svc.Jobs.Snapshot()
		view.Jobs = &snap
	}
	if s.svc.Cron != nil {
		view.Schedules = s.svc.Cron.Entries()
	}
	if s.svc.Bus != nil {
		if bs, ok := eventbus.StatsOf(s.svc.Bus); ok {
			view.Events = &bs
		}
	}
	s.respond(w, http.StatusOK, view)
}
