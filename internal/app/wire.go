package app

import (
	"fmt"
	"strings"
	"time"

	"eusotrip/internal/config"
	"eusotrip/internal/domain"
	"eusotrip/internal/httpapi"
	"eusotrip/internal/jobs"
	"eusotrip/internal/services/compliance"
	"eusotrip/internal/services/notify"
	"eusotrip/internal/services/recurring"
	"eusotrip/internal/services/settlements"
	"eusotrip/internal/services/telemetry"
	"eusotrip/internal/storage"
	"eusotrip/internal/transport/telegram"
	logx "eusotrip/pkg/logx"
)

// Cron cadences for jobs the config doesn't schedule explicitly.
const (
	defaultMaterializeSpec = "0 2 * * *"
	defaultSweepSpec       = "0 6 * * *"
	reportSpec             = "0 7 * * *"
	pruneSpec              = "@hourly"
)

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    lc.Alerts.Enabled,
			MinLevel:   lc.Alerts.MinLevel,
			RatePerSec: lc.Alerts.RatePerSec,
		},
	}
}

func mapStorageConfig(sc config.StorageConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	out := storage.Config{
		Driver: driver,
		Path:   strings.TrimSpace(sc.Path),
		DSN:    strings.TrimSpace(sc.DSN),
	}

	switch driver {
	case "sqlite", "sqlite3":
		if out.Path == "" {
			out.Path = "./eusotrip.db"
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	case "postgres", "postgresql":
		if out.DSN == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", sc.Driver)
	}
	return out, nil
}

func mapServerConfig(sc config.ServerConfig) (httpapi.Config, error) {
	read, err := config.ParseDurationField("server.read_timeout", sc.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("server.write_timeout", sc.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationField("server.idle_timeout", sc.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:          sc.Addr,
		Token:         sc.Token,
		AllowInsecure: sc.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
		RatePerSec:    sc.RatePerSec,
		RateBurst:     sc.RateBurst,
	}, nil
}

func mapJobsConfig(jc *config.JobsConfig) (jobs.Config, error) {
	if jc == nil {
		return jobs.Config{}, nil
	}
	timeout, err := config.ParseDurationField("jobs.default_timeout", jc.DefaultTimeout)
	if err != nil {
		return jobs.Config{}, err
	}
	return jobs.Config{
		Workers:        jc.Workers,
		QueueSize:      jc.QueueSize,
		DefaultTimeout: timeout,
		HistorySize:    jc.HistorySize,
	}, nil
}

func mapTelemetryConfig(tc config.TelemetryConfig) (telemetry.Config, error) {
	stale, err := config.ParseDurationField("telemetry.stale_after", tc.StaleAfter)
	if err != nil {
		return telemetry.Config{}, err
	}
	return telemetry.Config{StaleAfter: stale, HistoryKeep: tc.HistoryKeep}, nil
}

func mapRecurringConfig(rc config.RecurringConfig) recurring.Config {
	return recurring.Config{
		DefaultHorizonDays: rc.HorizonDays,
		DefaultTimezone:    strings.TrimSpace(rc.Timezone),
	}
}

func mapSettlementsConfig(bc config.BillingConfig) settlements.Config {
	return settlements.Config{CommissionBP: bc.CommissionBP, TermsDays: bc.TermsDays}
}

func mapComplianceConfig(cc config.ComplianceConfig) compliance.Config {
	return compliance.Config{ExpiryWindowDays: cc.ExpiryWindowDays, CriticalDays: cc.CriticalDays}
}

func mapOpsConfig(ac *config.AlertsConfig) (notify.OpsConfig, error) {
	if ac == nil {
		return notify.OpsConfig{}, nil
	}
	dedup, err := config.ParseDurationField("alerts.dedup_window", ac.DedupWindow)
	if err != nil {
		return notify.OpsConfig{}, err
	}
	return notify.OpsConfig{
		Enabled:     ac.Enabled,
		RatePerSec:  ac.RatePerSec,
		DedupWindow: dedup,
	}, nil
}

func mapSenderConfig(ac *config.AlertsConfig) telegram.Config {
	if ac == nil {
		return telegram.Config{}
	}
	return telegram.Config{Token: ac.Token, ChatID: ac.ChatID}
}

func geofenceSeeds(gs []config.GeofenceConfig) []telemetry.GeofenceInput {
	out := make([]telemetry.GeofenceInput, 0, len(gs))
	for _, g := range gs {
		out = append(out, telemetry.GeofenceInput{
			Name:         g.Name,
			Kind:         domain.GeofenceKind(strings.ToLower(strings.TrimSpace(g.Kind))),
			Lat:          g.Lat,
			Lon:          g.Lon,
			RadiusMeters: g.RadiusM,
		})
	}
	return out
}

// materializeSpec is the schedule-expansion cadence, carrying the
// configured timezone when the spec doesn't already name one.
func materializeSpec(rc config.RecurringConfig) string {
	spec := strings.TrimSpace(rc.MaterializeSpec)
	if spec == "" {
		spec = defaultMaterializeSpec
	}
	tz := strings.TrimSpace(rc.Timezone)
	if tz != "" && !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "@") {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec
}

func sweepSpec(cc config.ComplianceConfig) string {
	if spec := strings.TrimSpace(cc.SweepSpec); spec != "" {
		return spec
	}
	return defaultSweepSpec
}
