package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration string. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault parses an optional duration, substituting def when
// the field is empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate rejects structurally invalid configs. Service-specific checks
// (cron specs, listener reachability) run in the owning services.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	type durField struct{ path, raw string }
	durations := []durField{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.idle_timeout", cfg.Server.IdleTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"telemetry.stale_after", cfg.Telemetry.StaleAfter},
	}
	if cfg.Jobs != nil {
		durations = append(durations, durField{"jobs.default_timeout", cfg.Jobs.DefaultTimeout})
	}
	if cfg.Alerts != nil {
		durations = append(durations, durField{"alerts.dedup_window", cfg.Alerts.DedupWindow})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Recurring.HorizonDays < 0 || cfg.Recurring.HorizonDays > 90 {
		return fmt.Errorf("recurring.horizon_days: must be in [0, 90], got %d", cfg.Recurring.HorizonDays)
	}
	if tz := strings.TrimSpace(cfg.Recurring.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("recurring.timezone: %w", err)
		}
	}

	if bp := cfg.Billing.CommissionBP; bp < 0 || bp > 10000 {
		return fmt.Errorf("billing.commission_bp: must be in [0, 10000], got %d", bp)
	}
	if cfg.Billing.TermsDays < 0 {
		return fmt.Errorf("billing.terms_days: must be >= 0")
	}

	if cfg.Compliance.ExpiryWindowDays < 0 {
		return fmt.Errorf("compliance.expiry_window_days: must be >= 0")
	}
	if cd, ew := cfg.Compliance.CriticalDays, cfg.Compliance.ExpiryWindowDays; cd > 0 && ew > 0 && cd > ew {
		return fmt.Errorf("compliance.critical_days: must not exceed expiry_window_days")
	}

	if key := strings.TrimSpace(cfg.Integrations.SecretKey); key != "" {
		b, err := hex.DecodeString(key)
		if err != nil {
			return fmt.Errorf("integrations.secret_key: not valid hex")
		}
		switch len(b) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("integrations.secret_key: must decode to 16, 24 or 32 bytes, got %d", len(b))
		}
	}

	if a := cfg.Alerts; a != nil && a.Enabled {
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("alerts.token is required when alerts are enabled")
		}
		if a.ChatID == 0 {
			return fmt.Errorf("alerts.chat_id is required when alerts are enabled")
		}
	}

	for i, g := range cfg.Geofences {
		switch strings.ToLower(strings.TrimSpace(g.Kind)) {
		case "facility", "restricted":
		default:
			return fmt.Errorf("geofences[%d].kind: must be facility or restricted, got %q", i, g.Kind)
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("geofences[%d].name is required", i)
		}
		if g.RadiusM <= 0 {
			return fmt.Errorf("geofences[%d].radius_m: must be > 0", i)
		}
		if g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180 {
			return fmt.Errorf("geofences[%d]: coordinates out of range", i)
		}
	}

	return nil
}
