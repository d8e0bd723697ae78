package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

// Error kinds the UI's RPC layer distinguishes. Reads fail as
// query_failed and are safe to retry; mutations carry the message the
// UI surfaces in its toast.
const (
	kindQueryFailed     = "query_failed"
	kindMutationFailed  = "mutation_failed"
	kindNotFound        = "not_found"
	kindInvalidArgument = "invalid_argument"
	kindConflict        = "conflict"
	kindUnauthorized    = "unauthorized"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response write failed", logx.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	s.respond(w, status, errorEnvelope{Error: errorBody{Kind: kind, Message: message, Retryable: retryable}})
}

// fail maps a service error onto the envelope. Unclassified read
// failures are query_failed (retryable); unclassified write failures
// are mutation_failed, retryable only when the deadline hit.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, retryable := classify(r.Method, err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Err(err))
	}
	s.writeError(w, status, kind, err.Error(), retryable)
}

func classify(method string, err error) (status int, kind string, retryable bool) {
	var te *domain.TransitionError
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, kindInvalidArgument, false
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, kindNotFound, false
	case errors.Is(err, domain.ErrConflict) || errors.As(err, &te):
		return http.StatusConflict, kindConflict, false
	}
	if isRead(method) {
		return http.StatusInternalServerError, kindQueryFailed, true
	}
	return http.StatusInternalServerError, kindMutationFailed, errors.Is(err, context.DeadlineExceeded)
}

// decode reads a bounded JSON body into v, answering invalid_argument
// on malformed input.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, kindInvalidArgument, "malformed body: "+err.Error(), false)
		return false
	}
	return true
}

// actorFrom identifies the caller for audit entries. The UI sends the
// signed-in user in X-Actor; anything else books as "api".
func actorFrom(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "api"
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid(key, "not an integer")
	}
	return n, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.Invalid(key, "not an integer")
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.Invalid(key, "not a boolean")
	}
	return b, nil
}

// queryTime parses an RFC 3339 timestamp; empty is the zero time.
func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.Invalid(key, "not an RFC 3339 timestamp")
	}
	return t, nil
}
