// Package systemd notifies the service manager about process state when
// running under a Type=notify unit: readiness, shutdown and watchdog
// keepalives. Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "eusotrip/pkg/logx"
)

// NotifyReady reports startup finished. Call once the API listener and
// background workers are up.
func NotifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify READY failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify READY")
	}
}

// NotifyStopping reports that shutdown began, so the manager stops
// routing new work before the process exits.
func NotifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warn("sd_notify STOPPING failed", logx.Err(err))
	}
}

// Watchdog pings WATCHDOG=1 at half the interval the unit's WatchdogSec
// arms, until ctx ends. Returns immediately when no watchdog is armed,
// so callers can start it unconditionally.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog probe failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}

	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	log.Info("systemd watchdog armed", logx.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog ping failed", logx.Err(err))
			}
		}
	}
}
