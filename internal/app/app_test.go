package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const smokeConfig = `server:
  addr: "127.0.0.1:0"
  token: "sesame"
logging:
  level: error
storage:
  driver: memory
recurring:
  enabled: true
geofences:
  - name: "Yard A"
    kind: facility
    lat: 41.8781
    lon: -87.6298
    radius_m: 500
`

func writeSmokeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppLifecycle(t *testing.T) {
	t.Parallel()

	a, err := NewApp(writeSmokeConfig(t, smokeConfig))
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatalf("second Start() error = nil, want already started")
	}

	addr := a.api.Addr()
	if addr == "" {
		t.Fatalf("api.Addr() = %q, want a bound address", addr)
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	a.Stop(stopCtx)
	a.Stop(stopCtx)

	select {
	case <-a.Done():
	default:
		t.Fatalf("Done() still open after Stop")
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	t.Parallel()

	path := writeSmokeConfig(t, "server:\n  read_timeout: nonsense\n")
	if _, err := NewApp(path); err == nil {
		t.Fatalf("NewApp() error = nil, want invalid duration error")
	}
}

func TestNewAppRejectsBadCronSpec(t *testing.T) {
	t.Parallel()

	cfg := `storage:
  driver: memory
recurring:
  enabled: true
  materialize_spec: "not a cron spec"
`
	if _, err := NewApp(writeSmokeConfig(t, cfg)); err == nil {
		t.Fatalf("NewApp() error = nil, want cron spec error")
	}
}
