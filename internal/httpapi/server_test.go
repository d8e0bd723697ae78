package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eusotrip/internal/domain"
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
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

const testToken = "sesame"

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New()

	cipher, err := integrations.NewCipher(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	loadsSvc := loads.New(st, bus, logx.Nop())
	svc := Services{
		Loads:        loadsSvc,
		Bids:         bids.New(st, bus, logx.Nop()),
		Recurring:    recurring.New(recurring.Config{}, st, loadsSvc, logx.Nop()),
		Dispatch:     dispatch.New(st, logx.Nop()),
		Fleet:        fleet.New(st, logx.Nop()),
		Telemetry:    telemetry.New(telemetry.Config{}, st, bus, logx.Nop()),
		Settlements:  settlements.New(settlements.Config{}, st, bus, logx.Nop()),
		Compliance:   compliance.New(compliance.Config{}, st, bus, logx.Nop()),
		Gamification: gamification.New(st, bus, logx.Nop()),
		Notify:       notify.New(st, bus, nil, logx.Nop()),
		Analytics:    analytics.New(st, logx.Nop()),
		Integrations: integrations.New(st, cipher, logx.Nop()),
		Hazmat:       hazmat.New(st, bus, logx.Nop()),
		Bus:          bus,
	}

	if cfg.Token == "" {
		cfg.Token = testToken
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	srv := New(cfg, svc, logx.Nop())
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

// call performs an authenticated request and decodes the JSON response
// into out when it is non-nil.
func call(t *testing.T, ts *httptest.Server, method, path string, body, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp
}

func wantEnvelope(t *testing.T, ts *httptest.Server, method, path string, body any, status int, kind string) errorBody {
	t.Helper()
	var env errorEnvelope
	resp := call(t, ts, method, path, body, &env)
	if resp.StatusCode != status {
		t.Fatalf("%s %s status = %d, want %d", method, path, resp.StatusCode, status)
	}
	if env.Error.Kind != kind {
		t.Fatalf("%s %s kind = %q, want %q", method, path, env.Error.Kind, kind)
	}
	return env.Error
}

func testCreateBody() loads.CreateInput {
	return loads.CreateInput{
		ShipperID: "shp-1",
		Origin:    domain.Stop{Facility: "DC 14", City: "Dallas", State: "TX", Lat: 32.78, Lon: -96.80},
		Dest:      domain.Stop{Facility: "Yard 3", City: "Chicago", State: "IL", Lat: 41.88, Lon: -87.63},
		Equipment: domain.EquipmentVan,
		Commodity: "paper",
		RateCents: 250000,
		PickupAt:  time.Now().Add(24 * time.Hour).UTC(),
		DeliverBy: time.Now().Add(72 * time.Hour).UTC(),
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{})

	// Probes stay open.
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	// API requires the token.
	resp, err = ts.Client().Get(ts.URL + "/api/v1/loads")
	if err != nil {
		t.Fatalf("unauthenticated get: %v", err)
	}
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Kind != kindUnauthorized {
		t.Fatalf("unauthenticated = %d %q, want 401 unauthorized", resp.StatusCode, env.Error.Kind)
	}

	// Query-param token also passes.
	resp, err = ts.Client().Get(ts.URL + "/api/v1/loads?token=" + testToken)
	if err != nil {
		t.Fatalf("token query get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token query status = %d, want 200", resp.StatusCode)
	}

	// Wrong bearer fails.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/loads", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("wrong token get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", resp.StatusCode)
	}
}

func TestLoadLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{})

	var created domain.Load
	resp := call(t, ts, http.MethodPost, "/api/v1/loads", testCreateBody(), &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if created.Status != domain.StatusPending || !strings.HasPrefix(created.Ref, "LD-") {
		t.Fatalf("created = %+v", created)
	}
	if created.DistanceMiles <= 0 {
		t.Fatalf("DistanceMiles = %v, want > 0 from stop coords", created.DistanceMiles)
	}

	var fetched domain.Load
	resp = call(t, ts, http.MethodGet, "/api/v1/loads/"+created.ID, nil, &fetched)
	if resp.StatusCode != http.StatusOK || fetched.ID != created.ID {
		t.Fatalf("get = %d %+v", resp.StatusCode, fetched)
	}

	var listed []domain.Load
	resp = call(t, ts, http.MethodGet, "/api/v1/loads?status=pending", nil, &listed)
	if resp.StatusCode != http.StatusOK || len(listed) != 1 {
		t.Fatalf("list = %d, %d loads, want 1", resp.StatusCode, len(listed))
	}

	var booked domain.Load
	resp = call(t, ts, http.MethodPost, "/api/v1/loads/"+created.ID+"/status",
		map[string]string{"status": "booked", "note": "confirmed"}, &booked)
	if resp.StatusCode != http.StatusOK || booked.Status != domain.StatusBooked {
		t.Fatalf("status change = %d %v", resp.StatusCode, booked.Status)
	}

	// Lifecycle violations surface as conflicts.
	env := wantEnvelope(t, ts, http.MethodPost, "/api/v1/loads/"+created.ID+"/status",
		map[string]string{"status": "delivered"}, http.StatusConflict, kindConflict)
	if !strings.Contains(env.Message, "booked") || !strings.Contains(env.Message, "delivered") {
		t.Fatalf("conflict message = %q, want both states named", env.Message)
	}
	if env.Retryable {
		t.Fatal("conflict marked retryable")
	}

	var timeline []domain.TimelineEntry
	resp = call(t, ts, http.MethodGet, "/api/v1/loads/"+created.ID+"/timeline", nil, &timeline)
	if resp.StatusCode != http.StatusOK || len(timeline) != 2 {
		t.Fatalf("timeline = %d, %d entries, want 2", resp.StatusCode, len(timeline))
	}

	wantEnvelope(t, ts, http.MethodGet, "/api/v1/loads/ghost", nil, http.StatusNotFound, kindNotFound)
	wantEnvelope(t, ts, http.MethodGet, "/api/v1/loads?status=bogus", nil, http.StatusBadRequest, kindInvalidArgument)
	wantEnvelope(t, ts, http.MethodPost, "/api/v1/loads", map[string]string{"shipper_id": ""},
		http.StatusBadRequest, kindInvalidArgument)
}

func TestBidFlowOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{})

	var created domain.Load
	call(t, ts, http.MethodPost, "/api/v1/loads", testCreateBody(), &created)

	var bid domain.Bid
	resp := call(t, ts, http.MethodPost, "/api/v1/loads/"+created.ID+"/bids",
		map[string]any{"carrier_id": "car-9", "amount_cents": 240000, "note": "team drivers"}, &bid)
	if resp.StatusCode != http.StatusCreated || bid.Status != domain.BidPending {
		t.Fatalf("submit = %d %+v", resp.StatusCode, bid)
	}

	var openBids []domain.Bid
	resp = call(t, ts, http.MethodGet, "/api/v1/loads/"+created.ID+"/bids", nil, &openBids)
	if resp.StatusCode != http.StatusOK || len(openBids) != 1 {
		t.Fatalf("bid list = %d, %d bids, want 1", resp.StatusCode, len(openBids))
	}

	var accepted domain.Bid
	resp = call(t, ts, http.MethodPost, "/api/v1/bids/"+bid.ID+"/accept", nil, &accepted)
	if resp.StatusCode != http.StatusOK || accepted.Status != domain.BidAccepted {
		t.Fatalf("accept = %d %+v", resp.StatusCode, accepted)
	}

	var after domain.Load
	call(t, ts, http.MethodGet, "/api/v1/loads/"+created.ID, nil, &after)
	if after.Status != domain.StatusBooked || after.CarrierID != "car-9" || after.RateCents != 240000 {
		t.Fatalf("load after accept = %+v", after)
	}
}

func TestRosterOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{})

	var d domain.Driver
	resp := call(t, ts, http.MethodPost, "/api/v1/drivers", map[string]any{
		"name":            "Rosa Vega",
		"carrier_id":      "car-1",
		"cdl_class":       "a",
		"hazmat_endorsed": true,
		"safety_score":    0.94,
		"home_base":       map[string]float64{"lat": 41.88, "lon": -87.63},
	}, &d)
	if resp.StatusCode != http.StatusCreated || d.CDLClass != "A" {
		t.Fatalf("register driver = %d %+v", resp.StatusCode, d)
	}

	var onDuty domain.Driver
	resp = call(t, ts, http.MethodPost, "/api/v1/drivers/"+d.ID+"/duty", map[string]any{
		"duty": "driving",
		"hos":  map[string]int{"drive_min": 300, "shift_min": 400, "cycle_min": 1200},
	}, &onDuty)
	if resp.StatusCode != http.StatusOK || onDuty.Duty != domain.DutyDriving || onDuty.HOS.DriveMin != 300 {
		t.Fatalf("duty = %d %+v", resp.StatusCode, onDuty)
	}

	var free []domain.Driver
	resp = call(t, ts, http.MethodGet, "/api/v1/drivers?carrier_id=car-1&available=true", nil, &free)
	if resp.StatusCode != http.StatusOK || len(free) != 0 {
		t.Fatalf("available list = %d, %d drivers, want 0 while driving", resp.StatusCode, len(free))
	}

	var v domain.Vehicle
	resp = call(t, ts, http.MethodPost, "/api/v1/vehicles", map[string]any{
		"unit_number": "TRK-101",
		"carrier_id":  "car-1",
		"driver_id":   d.ID,
	}, &v)
	if resp.StatusCode != http.StatusCreated || v.Status != domain.VehicleActive || v.DriverID != d.ID {
		t.Fatalf("register vehicle = %d %+v", resp.StatusCode, v)
	}

	var shopped domain.Vehicle
	resp = call(t, ts, http.MethodPost, "/api/v1/vehicles/"+v.ID+"/status", map[string]any{
		"status":         "maintenance",
		"odometer_miles": 120000,
	}, &shopped)
	if resp.StatusCode != http.StatusOK || shopped.Status != domain.VehicleMaintenance {
		t.Fatalf("vehicle status = %d %+v", resp.StatusCode, shopped)
	}

	wantEnvelope(t, ts, http.MethodPost, "/api/v1/drivers/"+d.ID+"/duty",
		map[string]string{"duty": "napping"}, http.StatusBadRequest, kindInvalidArgument)
	wantEnvelope(t, ts, http.MethodGet, "/api/v1/drivers/ghost", nil, http.StatusNotFound, kindNotFound)
	wantEnvelope(t, ts, http.MethodPost, "/api/v1/vehicles",
		map[string]string{"carrier_id": "car-1"}, http.StatusBadRequest, kindInvalidArgument)
}

func TestHazmatGuideRoute(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{})

	var g hazmat.Guidance
	resp := call(t, ts, http.MethodGet, "/api/v1/hazmat/guide/1203", nil, &g)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guide status = %d, want 200", resp.StatusCode)
	}
	if g.Material.Name != "Gasoline" || g.Guide.Number != 128 {
		t.Fatalf("guidance = %+v", g)
	}

	wantEnvelope(t, ts, http.MethodGet, "/api/v1/hazmat/guide/9999", nil, http.StatusNotFound, kindNotFound)
}

func TestStatusRoute(t *testing.T) {
	t.Parallel()
	srv, ts := newTestServer(t, Config{})

	runner := jobs.New(jobs.Config{}, eventbus.New(), logx.Nop())
	srv.svc.Jobs = runner

	var view statusView
	resp := call(t, ts, http.MethodGet, "/status", nil, &view)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if view.Jobs == nil || view.Jobs.Workers != 2 {
		t.Fatalf("jobs view = %+v, want worker count", view.Jobs)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Config{RatePerSec: 1, RateBurst: 1})

	limited := false
	for i := 0; i < 5; i++ {
		var env errorEnvelope
		resp := call(t, ts, http.MethodGet, "/api/v1/loads", nil, &env)
		if resp.StatusCode == http.StatusTooManyRequests {
			if env.Error.Kind != kindQueryFailed || !env.Error.Retryable {
				t.Fatalf("throttled envelope = %+v, want retryable query_failed", env.Error)
			}
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("burst of requests never throttled")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, Config{})
	srv.cfg.Addr = "127.0.0.1:0"
	srv.cfg.Token = ""

	ctx := t.Context()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("Addr empty after start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatalf("healthz over listener: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", resp.StatusCode)
	}

	srv.Stop(ctx)
	if srv.Addr() != "" {
		t.Fatal("Addr non-empty after stop")
	}
	if _, err := http.Get(fmt.Sprintf("http://%s/healthz", addr)); err == nil {
		t.Fatal("listener still accepting after stop")
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	srv := New(Config{Addr: "0.0.0.0:0"}, Services{}, logx.Nop())
	if err := srv.Start(t.Context()); err == nil {
		srv.Stop(t.Context())
		t.Fatal("non-loopback bind without token accepted")
	}
}
