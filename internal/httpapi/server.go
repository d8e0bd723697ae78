// Package httpapi is the HTTP/JSON transport for the freight backend.
// One bearer token guards the whole /api/v1 surface; /healthz stays
// open for probes. Failures leave in the error envelope the UI's RPC
// layer expects: {"error":{"kind","message","retryable"}}.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"eusotrip/internal/eventbus"
	"eusotrip/internal/jobs"
	"eusotrip/internal/services/analytics"
	"eusotrip/internal/services/bids"
	"eusotrip/internal/services/compliance"
	"eusotrip/internal/services/dispatch"
	"eusotrip/internal/services/fleet"
	"eusotrip/internal/services/gamification"
	"eusotrip/internal/services/hazmat"
	"eusotrip/internal/services/integrations"
	"eusotrip/internal/services/loads"
	"eusotrip/internal/services/notify"
	"eusotrip/internal/services/recurring"
	"eusotrip/internal/services/settlements"
	"eusotrip/internal/services/telemetry"
	logx "eusotrip/pkg/logx"
)

// Config controls the API listener.
//
// Security:
//   - Prefer binding to localhost behind a reverse proxy.
//   - A non-loopback bind requires Token or an explicit AllowInsecure.
type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	RatePerSec int
	RateBurst  int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 2 * c.RatePerSec
	}
	return c
}

// Services are the domain services the transport exposes. Jobs, Cron
// and Bus feed the /status snapshot and may be nil.
type Services struct {
	Loads        *loads.Service
	Bids         *bids.Service
	Recurring    *recurring.Service
	Dispatch     *dispatch.Service
	Fleet        *fleet.Service
	Telemetry    *telemetry.Service
	Settlements  *settlements.Service
	Compliance   *compliance.Service
	Gamification *gamification.Service
	Notify       *notify.Service
	Analytics    *analytics.Service
	Integrations *integrations.Service
	Hazmat       *hazmat.Service

	Jobs *jobs.Runner
	Cron *jobs.Cron
	Bus  eventbus.Bus
}

type Server struct {
	cfg     Config
	svc     Services
	log     logx.Logger
	limiter *clientLimiter

	mu      sync.Mutex
	ln      net.Listener
	srv     *http.Server
	started time.Time
}

func New(cfg Config, svc Services, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		svc:     svc,
		log:     log.With(logx.String("component", "httpapi")),
		limiter: newClientLimiter(cfg.RatePerSec, cfg.RateBurst),
	}
}

// Start binds the listener and serves in the background. Idempotent
// while running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	cfg := s.cfg
	if cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
		if !cfg.AllowInsecure {
			return fmt.Errorf("refusing to bind %s without a token; set server.token or allow_insecure", cfg.Addr)
		}
		s.log.Warn("api serving without token on non-loopback addr (insecure)",
			logx.String("addr", cfg.Addr))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.ln = ln
	s.srv = srv
	s.started = time.Now()

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server exited", logx.Err(err))
		}
	}()
	s.log.Info("api listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cfg.Token != ""))
	return nil
}

// Stop drains in-flight requests, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("api shutdown incomplete, closing", logx.Err(err))
		_ = srv.Close()
		return
	}
	s.log.Info("api stopped")
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	api := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.wrap(h))
	}

	api("GET /status", s.handleStatus)

	// Loads and bids.
	api("GET /api/v1/loads", s.handleLoadList)
	api("POST /api/v1/loads", s.handleLoadCreate)
	api("GET /api/v1/loads/board", s.handleLoadBoard)
	api("GET /api/v1/loads/{id}", s.handleLoadGet)
	api("POST /api/v1/loads/{id}/status", s.handleLoadStatus)
	api("POST /api/v1/loads/{id}/assign", s.handleLoadAssign)
	api("POST /api/v1/loads/{id}/cancel", s.handleLoadCancel)
	api("GET /api/v1/loads/{id}/timeline", s.handleLoadTimeline)
	api("GET /api/v1/loads/{id}/progress", s.handleLoadProgress)
	api("GET /api/v1/loads/{id}/bids", s.handleBidList)
	api("POST /api/v1/loads/{id}/bids", s.handleBidSubmit)
	api("POST /api/v1/bids/{id}/accept", s.handleBidAccept)
	api("POST /api/v1/bids/{id}/withdraw", s.handleBidWithdraw)

	// Recurring schedules and dispatch.
	api("GET /api/v1/schedules", s.handleScheduleList)
	api("POST /api/v1/schedules", s.handleScheduleCreate)
	api("GET /api/v1/schedules/{id}", s.handleScheduleGet)
	api("DELETE /api/v1/schedules/{id}", s.handleScheduleDelete)
	api("POST /api/v1/schedules/{id}/pause", s.handleSchedulePause)
	api("POST /api/v1/schedules/{id}/resume", s.handleScheduleResume)
	api("POST /api/v1/schedules/{id}/materialize", s.handleScheduleMaterialize)
	api("GET /api/v1/schedules/{id}/occurrences", s.handleScheduleOccurrences)
	api("GET /api/v1/dispatch/recommendations", s.handleDispatchRecommend)

	// Roster.
	api("GET /api/v1/drivers", s.handleDriverList)
	api("POST /api/v1/drivers", s.handleDriverRegister)
	api("GET /api/v1/drivers/{id}", s.handleDriverGet)
	api("POST /api/v1/drivers/{id}/duty", s.handleDriverDuty)
	api("GET /api/v1/vehicles", s.handleVehicleList)
	api("POST /api/v1/vehicles", s.handleVehicleRegister)
	api("GET /api/v1/vehicles/{id}", s.handleVehicleGet)
	api("POST /api/v1/vehicles/{id}/status", s.handleVehicleStatus)
	api("POST /api/v1/vehicles/{id}/driver", s.handleVehicleDriver)

	// Telemetry, fleet, geofences.
	api("POST /api/v1/telemetry/positions", s.handlePositionReport)
	api("GET /api/v1/fleet", s.handleFleet)
	api("GET /api/v1/vehicles/{id}/history", s.handleVehicleHistory)
	api("GET /api/v1/geofences", s.handleGeofenceList)
	api("PUT /api/v1/geofences", s.handleGeofencePut)
	api("DELETE /api/v1/geofences/{id}", s.handleGeofenceDelete)

	// Billing.
	api("GET /api/v1/invoices", s.handleInvoiceList)
	api("POST /api/v1/invoices", s.handleInvoiceCreate)
	api("GET /api/v1/invoices/{id}", s.handleInvoiceGet)
	api("POST /api/v1/invoices/{id}/send", s.handleInvoiceSend)
	api("GET /api/v1/invoices/{id}/payments", s.handlePaymentList)
	api("POST /api/v1/invoices/{id}/payments", s.handlePaymentRecord)
	api("GET /api/v1/invoices/{id}/factoring", s.handleFactoringQuote)
	api("GET /api/v1/accounting/aging", s.handleAging)
	api("GET /api/v1/accounting/summary", s.handleAccountingSummary)

	// Compliance and hazmat.
	api("GET /api/v1/compliance/expiring", s.handleComplianceExpiring)
	api("GET /api/v1/compliance/docs", s.handleComplianceDocs)
	api("POST /api/v1/compliance/docs", s.handleComplianceDocUpsert)
	api("GET /api/v1/drivers/{id}/hos", s.handleDriverHOS)
	api("GET /api/v1/inspections", s.handleInspectionList)
	api("POST /api/v1/inspections", s.handleInspectionRecord)
	api("GET /api/v1/hazmat/guide/{un}", s.handleHazmatGuide)
	api("GET /api/v1/hazmat/incidents", s.handleHazmatIncidentList)
	api("POST /api/v1/hazmat/incidents", s.handleHazmatIncidentRecord)

	// Analytics and gamification.
	api("GET /api/v1/analytics/dashboard", s.handleAnalyticsDashboard)
	api("GET /api/v1/analytics/lanes", s.handleAnalyticsLanes)
	api("GET /api/v1/analytics/weekly", s.handleAnalyticsWeekly)
	api("GET /api/v1/analytics/forecast", s.handleAnalyticsForecast)
	api("GET /api/v1/gamification/profile/{driverID}", s.handleGamificationProfile)
	api("GET /api/v1/gamification/leaderboard", s.handleGamificationLeaderboard)
	api("POST /api/v1/drivers/{id}/fuel-efficiency", s.handleFuelEfficiency)

	// Integrations and notifications.
	api("GET /api/v1/integrations", s.handleIntegrationList)
	api("POST /api/v1/integrations", s.handleIntegrationSave)
	api("DELETE /api/v1/integrations/{provider}", s.handleIntegrationRemove)
	api("GET /api/v1/integrations/{provider}/status", s.handleIntegrationStatus)
	api("POST /api/v1/integrations/{provider}/verify", s.handleIntegrationVerify)
	api("GET /api/v1/notifications", s.handleNotificationList)
	api("GET /api/v1/notifications/unread-count", s.handleNotificationUnread)
	api("POST /api/v1/notifications/read-all", s.handleNotificationReadAll)
	api("POST /api/v1/notifications/{id}/read", s.handleNotificationRead)

	return s.withAccessLog(mux)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// Empty host binds all interfaces.
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
