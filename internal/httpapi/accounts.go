package httpapi

import (
	"net/http"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/integrations"
)

func (s *Server) handleIntegrationList(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Integrations.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleIntegrationSave(w http.ResponseWriter, r *http.Request) {
	var in integrations.SaveInput
	if !s.decode(w, r, &in) {
		return
	}
	cred, err := s.svc.Integrations.Save(r.Context(), in, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, cred)
}

func (s *Server) handleIntegrationRemove(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	provider := domain.IntegrationProvider(r.PathValue("provider"))
	if err := s.svc.Integrations.Remove(r.Context(), ownerID, provider, actorFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleIntegrationStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	provider := domain.IntegrationProvider(r.PathValue("provider"))
	st, err := s.svc.Integrations.Status(r.Context(), ownerID, provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, st)
}

func (s *Server) handleIntegrationVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OwnerID string `json:"owner_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	provider := domain.IntegrationProvider(r.PathValue("provider"))
	st, err := s.svc.Integrations.Verify(r.Context(), in.OwnerID, provider, actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, st)
}

func (s *Server) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	unreadOnly, err := queryBool(r, "unread")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.svc.Notify.List(r.Context(), r.URL.Query().Get("user_id"), unreadOnly, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleNotificationUnread(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Notify.UnreadCount(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	if err := s.svc.Notify.MarkRead(r.Context(), r.PathValue("id"), in.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleNotificationReadAll(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	n, err := s.svc.Notify.MarkAllRead(r.Context(), in.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int64{"marked": n})
}
