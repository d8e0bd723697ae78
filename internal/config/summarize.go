package config

import (
	"reflect"
	"strings"

	logx "eusotrip/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (tokens, DSNs, keys) never appear
// in the attrs.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.token_set", strings.TrimSpace(newCfg.Server.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Recurring, newCfg.Recurring) {
		changed = append(changed, "recurring")
		attrs = append(attrs,
			logx.Bool("recurring.enabled", newCfg.Recurring.Enabled),
			logx.String("recurring.spec", strings.TrimSpace(newCfg.Recurring.MaterializeSpec)),
			logx.Int("recurring.horizon_days", newCfg.Recurring.HorizonDays),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
	}

	if !reflect.DeepEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		enabled := newCfg.Alerts != nil && newCfg.Alerts.Enabled
		attrs = append(attrs, logx.Bool("alerts.enabled", enabled))
	}

	if !reflect.DeepEqual(oldCfg.Telemetry, newCfg.Telemetry) {
		changed = append(changed, "telemetry")
	}
	if !reflect.DeepEqual(oldCfg.Billing, newCfg.Billing) {
		changed = append(changed, "billing")
		attrs = append(attrs, logx.Int("billing.commission_bp", newCfg.Billing.CommissionBP))
	}
	if !reflect.DeepEqual(oldCfg.Compliance, newCfg.Compliance) {
		changed = append(changed, "compliance")
	}
	if !reflect.DeepEqual(oldCfg.Integrations, newCfg.Integrations) {
		changed = append(changed, "integrations")
		attrs = append(attrs, logx.Bool("integrations.key_set", strings.TrimSpace(newCfg.Integrations.SecretKey) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Geofences, newCfg.Geofences) {
		changed = append(changed, "geofences")
		attrs = append(attrs, logx.Int("geofences.count", len(newCfg.Geofences)))
	}

	return changed, attrs
}
