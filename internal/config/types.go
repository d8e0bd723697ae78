package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Recurring controls the scheduler that expands weekly load templates
	// into dated load records.
	Recurring RecurringConfig `json:"recurring"`

	// Jobs controls the async job runner (reports, materialization runs,
	// compliance sweeps). If omitted, defaults apply.
	Jobs *JobsConfig `json:"jobs,omitempty"`

	// Alerts configures the Telegram ops-alert channel. Omitted = disabled.
	Alerts *AlertsConfig `json:"alerts,omitempty"`

	Telemetry    TelemetryConfig    `json:"telemetry"`
	Billing      BillingConfig      `json:"billing"`
	Compliance   ComplianceConfig   `json:"compliance"`
	Integrations IntegrationsConfig `json:"integrations"`

	// Geofences are seeded at startup; more can be added via the API.
	Geofences []GeofenceConfig `json:"geofences,omitempty"`
}

// ServerConfig controls the HTTP API listener.
//
// Security note:
//   - Prefer binding to localhost behind a reverse proxy.
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type ServerConfig struct {
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Per-client request rate limiting. Zero keeps the defaults
	// (20 req/s, burst 40).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RateBurst  int `json:"rate_burst,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts forwards high-severity log records to the ops-alert channel.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "sqlite": local database file (default)
//   - "postgres": shared deployments (dsn required)
//   - "memory": non-durable, for development and tests
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // sqlite file path
	DSN         string `json:"dsn,omitempty"`          // postgres connection string (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RecurringConfig controls recurring-schedule materialization.
//
// MaterializeSpec is a cron expression (5-field, optional seconds field,
// @-descriptors accepted). The run expands every active schedule over its
// horizon and creates the missing dated loads.
type RecurringConfig struct {
	Enabled         bool   `json:"enabled"`
	MaterializeSpec string `json:"materialize_spec,omitempty"` // default: "0 2 * * *"
	Timezone        string `json:"timezone,omitempty"`         // default: UTC
	HorizonDays     int    `json:"horizon_days,omitempty"`     // default: 28, max 90
}

// JobsConfig controls the async job runner.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - history_size: 200
//   - default_timeout: "2m"
type JobsConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// AlertsConfig is the Telegram ops-alert channel. Geofence violations,
// near-expiry compliance items and job failures land here.
type AlertsConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token"` // bot token (do not log)
	ChatID      int64  `json:"chat_id"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"` // default: "15m"
}

type TelemetryConfig struct {
	// StaleAfter marks a vehicle's fix stale in fleet snapshots
	// (Go duration string, default "15m").
	StaleAfter string `json:"stale_after,omitempty"`
	// HistoryKeep bounds retained fixes per vehicle (default 500).
	HistoryKeep int `json:"history_keep,omitempty"`
}

type BillingConfig struct {
	// CommissionBP is the platform fee in basis points (default 1500 = 15%).
	CommissionBP int `json:"commission_bp,omitempty"`
	// TermsDays is the invoice net term (default 30).
	TermsDays int `json:"terms_days,omitempty"`
}

type ComplianceConfig struct {
	// ExpiryWindowDays is the default lookahead for expiring credentials
	// (default 90). CriticalDays triggers ops alerts (default 30).
	ExpiryWindowDays int `json:"expiry_window_days,omitempty"`
	CriticalDays     int `json:"critical_days,omitempty"`
	// SweepSpec schedules the daily compliance sweep (default "0 6 * * *").
	SweepSpec string `json:"sweep_spec,omitempty"`
}

type IntegrationsConfig struct {
	// SecretKey encrypts stored integration credentials at rest.
	// Hex-encoded, 32 bytes (AES-256). Required before credentials
	// can be saved. Do not log.
	SecretKey string `json:"secret_key,omitempty"`
}

type GeofenceConfig struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"` // "facility" or "restricted"
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	RadiusM float64 `json:"radius_m"`
}
