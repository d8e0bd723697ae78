package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.yaml", `
server:
  addr: "127.0.0.1:9090"
  rate_per_sec: 50
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./test.db
recurring:
  enabled: true
  materialize_spec: "0 2 * * *"
  horizon_days: 14
telemetry:
  stale_after: 5m
billing:
  commission_bp: 1500
compliance:
  expiry_window_days: 90
integrations: {}
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("Server.Addr = %q, want 127.0.0.1:9090", cfg.Server.Addr)
	}
	if cfg.Server.RatePerSec != 50 {
		t.Fatalf("Server.RatePerSec = %d, want 50", cfg.Server.RatePerSec)
	}
	if !cfg.Recurring.Enabled || cfg.Recurring.HorizonDays != 14 {
		t.Fatalf("Recurring = %+v, want enabled with horizon 14", cfg.Recurring)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get() did not return committed config")
	}
}

func TestManagerParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.yaml", `
server:
  addr: ":8080"
  tokenn: "typo"
logging: {}
storage: {}
recurring: {}
telemetry: {}
billing: {}
compliance: {}
integrations: {}
`)

	m := NewManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("Parse() accepted unknown field, want error")
	}
}

func TestManagerParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", `{"server":{},"logging":{},"storage":{},"recurring":{},"telemetry":{},"billing":{},"compliance":{},"integrations":{}}{"extra":1}`)

	m := NewManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("Parse() accepted trailing data, want error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Storage:   StorageConfig{Driver: "sqlite", Path: "./x.db"},
			Recurring: RecurringConfig{HorizonDays: 28},
			Billing:   BillingConfig{CommissionBP: 1500, TermsDays: 30},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad duration", func(c *Config) { c.Telemetry.StaleAfter = "soon" }, "stale_after"},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "oracle" }, "unknown driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"horizon too large", func(c *Config) { c.Recurring.HorizonDays = 120 }, "horizon_days"},
		{"bad timezone", func(c *Config) { c.Recurring.Timezone = "Mars/Olympus" }, "timezone"},
		{"commission out of range", func(c *Config) { c.Billing.CommissionBP = 20000 }, "commission_bp"},
		{"critical exceeds window", func(c *Config) {
			c.Compliance.ExpiryWindowDays = 30
			c.Compliance.CriticalDays = 60
		}, "critical_days"},
		{"secret key not hex", func(c *Config) { c.Integrations.SecretKey = "zz" }, "not valid hex"},
		{"secret key wrong size", func(c *Config) { c.Integrations.SecretKey = "abcd" }, "16, 24 or 32"},
		{"alerts enabled without token", func(c *Config) {
			c.Alerts = &AlertsConfig{Enabled: true, ChatID: 1}
		}, "alerts.token"},
		{"geofence bad kind", func(c *Config) {
			c.Geofences = []GeofenceConfig{{Name: "x", Kind: "polygon", RadiusM: 10}}
		}, "kind"},
		{"geofence bad radius", func(c *Config) {
			c.Geofences = []GeofenceConfig{{Name: "x", Kind: "facility", RadiusM: 0}}
		}, "radius_m"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
