package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "eusotrip/pkg/logx"
)

const (
	maxTrackedClients = 1024
	clientIdleEvict   = 10 * time.Minute
)

// clientLimiter holds one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	clients map[string]*clientEntry
}

type clientEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(perSec, burst int) *clientLimiter {
	return &clientLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		clients: make(map[string]*clientEntry),
	}
}

func (l *clientLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.clients[key]
	if e == nil {
		if len(l.clients) >= maxTrackedClients {
			l.pruneLocked(now)
		}
		e = &clientEntry{lim: rate.NewLimiter(l.perSec, l.burst)}
		l.clients[key] = e
	}
	e.seen = now
	return e.lim.Allow()
}

// pruneLocked drops idle clients; if everyone is active it drops the
// least recently seen so the map stays bounded.
func (l *clientLimiter) pruneLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range l.clients {
		if now.Sub(e.seen) > clientIdleEvict {
			delete(l.clients, k)
			continue
		}
		if oldestKey == "" || e.seen.Before(oldest) {
			oldestKey, oldest = k, e.seen
		}
	}
	if len(l.clients) >= maxTrackedClients && oldestKey != "" {
		delete(l.clients, oldestKey)
	}
}

// wrap applies the per-client rate limit and bearer auth to a handler.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			kind := kindMutationFailed
			if isRead(r.Method) {
				kind = kindQueryFailed
			}
			s.writeError(w, http.StatusTooManyRequests, kind, "rate limit exceeded", true)
			return
		}
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, http.StatusUnauthorized, kindUnauthorized, "missing or invalid token", false)
			return
		}
		h(w, r)
	}
}

// authorized accepts either "Authorization: Bearer <token>" or the
// ?token= query param. An empty configured token leaves the API open;
// Start refuses that on non-loopback binds.
func (s *Server) authorized(r *http.Request) bool {
	tok := s.cfg.Token
	if tok == "" {
		return true
	}
	if got := r.URL.Query().Get("token"); got != "" {
		return got == tok
	}
	if ah := r.Header.Get("Authorization"); ah != "" {
		const p = "Bearer "
		return strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok
	}
	return false
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", rec.status),
			logx.Duration("dur", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
