// Package app assembles the freight backend: configuration, logging,
// storage, the event bus, the domain services, background jobs and the
// HTTP API, with ordered startup and bounded shutdown.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"eusotrip/internal/config"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/httpapi"
	"eusotrip/internal/jobs"
	"eusotrip/internal/runtime/supervisor"
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
	"eusotrip/internal/transport/telegram"
	logx "eusotrip/pkg/logx"
	"eusotrip/pkg/systemd"
)

// App owns every long-lived component and the order they start and
// stop in. Build it with NewApp, run it with Start, tear it down with
// Stop.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store

	loads        *loads.Service
	bids         *bids.Service
	recurring    *recurring.Service
	dispatch     *dispatch.Service
	fleet        *fleet.Service
	telemetry    *telemetry.Service
	settlements  *settlements.Service
	compliance   *compliance.Service
	gamification *gamification.Service
	notify       *notify.Service
	analytics    *analytics.Service
	integrations *integrations.Service
	hazmat       *hazmat.Service

	runner *jobs.Runner
	cron   *jobs.Cron
	api    *httpapi.Server

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

// NewApp loads and validates the config file at cfgPath and builds
// every component. Nothing listens or runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logs, rootLog := logx.New(mapLoggingConfig(cfg.Logging))
	cfgm.SetLogger(rootLog.With(logx.String("component", "config")))
	log := rootLog.With(logx.String("component", "app"))

	fail := func(err error) (*App, error) {
		logs.Close()
		return nil, err
	}

	// Map everything that can fail before opening any resource.
	storCfg, err := mapStorageConfig(cfg.Storage)
	if err != nil {
		return fail(err)
	}
	srvCfg, err := mapServerConfig(cfg.Server)
	if err != nil {
		return fail(err)
	}
	jobsCfg, err := mapJobsConfig(cfg.Jobs)
	if err != nil {
		return fail(err)
	}
	telCfg, err := mapTelemetryConfig(cfg.Telemetry)
	if err != nil {
		return fail(err)
	}
	opsCfg, err := mapOpsConfig(cfg.Alerts)
	if err != nil {
		return fail(err)
	}
	if err := jobs.ParseSpec(materializeSpec(cfg.Recurring)); err != nil {
		return fail(fmt.Errorf("recurring.materialize_spec: %w", err))
	}
	if err := jobs.ParseSpec(sweepSpec(cfg.Compliance)); err != nil {
		return fail(fmt.Errorf("compliance.sweep_spec: %w", err))
	}
	var cipher *integrations.Cipher
	if key := strings.TrimSpace(cfg.Integrations.SecretKey); key != "" {
		cipher, err = integrations.NewCipher(key)
		if err != nil {
			return fail(fmt.Errorf("integrations.secret_key: %w", err))
		}
	}

	st, err := storage.Open(storCfg, rootLog)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}

	a := &App{cfgm: cfgm, logs: logs, log: log, store: st}
	a.bus = eventbus.New()

	// The ops alert channel is auxiliary: a down Telegram API must not
	// block boot, it just leaves alerts off until the next restart.
	var sender notify.AlertSender
	if opsCfg.Enabled {
		s, err := telegram.NewSender(mapSenderConfig(cfg.Alerts), rootLog)
		if err != nil {
			log.Warn("telegram sender unavailable, ops alerts disabled", logx.Err(err))
			opsCfg.Enabled = false
		} else {
			sender = s
		}
	}
	ops := notify.NewOpsAlerter(opsCfg, sender, rootLog)

	a.loads = loads.New(st, a.bus, rootLog)
	a.bids = bids.New(st, a.bus, rootLog)
	a.recurring = recurring.New(mapRecurringConfig(cfg.Recurring), st, a.loads, rootLog)
	a.dispatch = dispatch.New(st, rootLog)
	a.fleet = fleet.New(st, rootLog)
	a.telemetry = telemetry.New(telCfg, st, a.bus, rootLog)
	a.settlements = settlements.New(mapSettlementsConfig(cfg.Billing), st, a.bus, rootLog)
	a.compliance = compliance.New(mapComplianceConfig(cfg.Compliance), st, a.bus, rootLog)
	a.gamification = gamification.New(st, a.bus, rootLog)
	a.notify = notify.New(st, a.bus, ops, rootLog)
	a.analytics = analytics.New(st, rootLog)
	a.integrations = integrations.New(st, cipher, rootLog)
	a.hazmat = hazmat.New(st, a.bus, rootLog)

	a.runner = jobs.New(jobsCfg, a.bus, rootLog)
	a.cron = jobs.NewCron(a.runner, rootLog)

	a.api = httpapi.New(srvCfg, httpapi.Services{
		Loads:        a.loads,
		Bids:         a.bids,
		Recurring:    a.recurring,
		Dispatch:     a.dispatch,
		Fleet:        a.fleet,
		Telemetry:    a.telemetry,
		Settlements:  a.settlements,
		Compliance:   a.compliance,
		Gamification: a.gamification,
		Notify:       a.notify,
		Analytics:    a.analytics,
		Integrations: a.integrations,
		Hazmat:       a.hazmat,
		Jobs:         a.runner,
		Cron:         a.cron,
		Bus:          a.bus,
	}, rootLog)

	return a, nil
}

// Start brings the app up: geofence seeds, event consumers, the job
// runner and cron, the HTTP listener, and the config watch. The ctx
// bounds the whole run; cancelling it has the same effect as Stop
// except that resources are only released once Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.sup != nil {
		a.mu.Unlock()
		return fmt.Errorf("app already started")
	}
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)
	a.sup = sup
	a.mu.Unlock()

	runCtx := sup.Context()

	// Reject a reloaded file before it is published to subscribers. The
	// cron specs get a real parse here because config.Validate does not
	// know the schedule grammar.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if err := jobs.ParseSpec(materializeSpec(cfg.Recurring)); err != nil {
			return fmt.Errorf("recurring.materialize_spec: %w", err)
		}
		if err := jobs.ParseSpec(sweepSpec(cfg.Compliance)); err != nil {
			return fmt.Errorf("compliance.sweep_spec: %w", err)
		}
		return nil
	})

	if a.notify.Ops().Enabled() {
		a.logs.SetAlertSink(a.notify.Ops())
	}

	cfg := a.cfgm.Get()

	if len(cfg.Geofences) > 0 {
		if err := a.telemetry.SeedGeofences(runCtx, geofenceSeeds(cfg.Geofences)); err != nil {
			return fmt.Errorf("seed geofences: %w", err)
		}
	}

	// Consumers subscribe before anything can publish.
	a.notify.Start(runCtx)
	a.settlements.Start(runCtx)
	a.gamification.Start(runCtx)

	a.runner.Start(runCtx)
	if err := a.registerJobs(cfg); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	a.cron.Start()

	if err := a.api.Start(runCtx); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("at", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub)
	})
	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("systemd.watchdog", func(ctx context.Context) {
		systemd.Watchdog(ctx, a.log)
	})

	systemd.NotifyReady(a.log)
	a.log.Info("app started", logx.String("addr", a.api.Addr()))
	return nil
}

// registerJobs wires the recurring maintenance work into the cron:
// schedule materialization, the compliance expiry sweep, telemetry
// history pruning and the daily ops report.
func (a *App) registerJobs(cfg *config.Config) error {
	if cfg.Recurring.Enabled {
		err := a.cron.Add(materializeSpec(cfg.Recurring), "schedules.materialize", 10*time.Minute,
			func(ctx context.Context) error { return a.materializeOnce(ctx) })
		if err != nil {
			return err
		}
	} else {
		a.log.Info("recurring load materialization disabled")
	}

	if err := a.cron.Add(sweepSpec(cfg.Compliance), "compliance.sweep", 5*time.Minute,
		func(ctx context.Context) error {
			_, err := a.compliance.Sweep(ctx)
			return err
		}); err != nil {
		return err
	}

	if err := a.cron.Add(pruneSpec, "telemetry.prune", 2*time.Minute,
		func(ctx context.Context) error { return a.telemetry.PruneAll(ctx) }); err != nil {
		return err
	}

	return a.cron.Add(reportSpec, "analytics.report", 2*time.Minute,
		func(ctx context.Context) error { return a.reportOnce(ctx) })
}

// materializeOnce expands every active schedule and logs the pass.
// Occurrence failures are surfaced as a job error so the run shows up
// in the failure history; the pass itself is idempotent, so a retry
// only picks up what failed.
func (a *App) materializeOnce(ctx context.Context) error {
	results, err := a.recurring.MaterializeAll(ctx)
	if err != nil {
		return err
	}
	var created, skipped, failed int
	for _, r := range results {
		created += r.Created
		skipped += r.Skipped
		failed += len(r.Failures)
	}
	a.log.Info("materialization pass finished",
		logx.Int("schedules", len(results)),
		logx.Int("created", created),
		logx.Int("skipped", skipped),
		logx.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("materialize: %d occurrences failed", failed)
	}
	return nil
}

// reportOnce logs a trailing-week operations digest.
func (a *App) reportOnce(ctx context.Context) error {
	to := time.Now().UTC()
	dash, err := a.analytics.Dashboard(ctx, analytics.Period{From: to.AddDate(0, 0, -7), To: to})
	if err != nil {
		return err
	}
	a.log.Info("weekly operations report",
		logx.Int("loads", dash.TotalLoads),
		logx.Int64("revenue_cents", dash.RevenueCents),
		logx.Float64("on_time_pct", dash.OnTimePct),
		logx.Int("active_drivers", dash.ActiveDrivers),
		logx.Int("active_vehicles", dash.ActiveVehicles))
	return nil
}

// reloadLoop applies config changes published by the watcher. Logging
// and geofences apply live; everything else is built once in NewApp, so
// a change there is logged as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce a burst of reloads down to the newest one.
			for {
				select {
				case newer, more := <-sub:
					if !more {
						goto APPLY
					}
					next = newer
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(last, next)
			last = next
			if len(sections) == 0 {
				a.log.Debug("config reloaded, no effective changes")
				continue
			}

			var restart []string
			for _, sec := range sections {
				switch sec {
				case "logging":
					a.logs.Apply(mapLoggingConfig(next.Logging))
				case "geofences":
					if err := a.telemetry.SeedGeofences(ctx, geofenceSeeds(next.Geofences)); err != nil {
						a.log.Warn("geofence reseed failed", logx.Err(err))
					}
				default:
					restart = append(restart, sec)
				}
			}
			if len(restart) > 0 {
				a.log.Warn("config changes need a restart to take effect",
					logx.String("sections", strings.Join(restart, ",")))
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// Done closes when the app's run context ends, whether from Stop, from
// the parent context, or from a fatal background error. Before Start it
// is already closed.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return a.sup.Context().Done()
}

// Stop tears the app down in reverse dependency order. Each step gets a
// bounded slice of the caller's deadline; a step that overruns is
// abandoned with a warning rather than wedging shutdown.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	if sup == nil {
		return
	}

	a.log.Info("stopping")
	systemd.NotifyStopping(a.log)
	sup.Cancel()

	step := func(name string, max time.Duration, fn func(ctx context.Context) error) {
		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic: %v", r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			took := time.Since(start)
			if err != nil {
				a.log.Warn("shutdown step failed", logx.String("step", name), logx.Err(err))
				return
			}
			if took >= 500*time.Millisecond {
				a.log.Info("shutdown step done", logx.String("step", name), logx.Duration("took", took))
			} else {
				a.log.Debug("shutdown step done", logx.String("step", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("shutdown step timed out, abandoning",
				logx.String("step", name), logx.Duration("after", time.Since(start)))
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("abandoned step finished late with error",
						logx.String("step", name), logx.Err(err))
				} else {
					a.log.Info("abandoned step finished late", logx.String("step", name))
				}
			}()
		}
	}

	step("api", 5*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("cron", 3*time.Second, func(c context.Context) error { a.cron.Stop(c); return nil })
	step("jobs", 10*time.Second, func(c context.Context) error { a.runner.Stop(c); return nil })
	step("notify", 5*time.Second, func(c context.Context) error { a.notify.Stop(c); return nil })
	step("settlements", 3*time.Second, func(c context.Context) error { a.settlements.Stop(c); return nil })
	step("gamification", 3*time.Second, func(c context.Context) error { a.gamification.Stop(c); return nil })
	step("storage", 3*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 3*time.Second, func(c context.Context) error { return sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
}
