package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "eusotrip/pkg/logx"
)

var (
	ErrAlertsDisabled = errors.New("ops alerts disabled")
	ErrAlertQueueFull = errors.New("alert queue full")
	ErrAlertsStopped  = errors.New("ops alerts stopped")
)

// AlertSender delivers one rendered alert. *telegram.Sender satisfies it.
type AlertSender interface {
	Send(ctx context.Context, text string) error
}

type OpsConfig struct {
	Enabled     bool
	RatePerSec  int           // default 1
	QueueSize   int           // default 64
	DedupWindow time.Duration // default 15m, 0 disables dedup
	RetryMax    int           // extra attempts after the first, default 2
	RetryBase   time.Duration // default 500ms, doubled per attempt
	SendTimeout time.Duration // default 10s
	MaxDedup    int           // dedup cache cap, default 1000
}

func (c OpsConfig) withDefaults() OpsConfig {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 15 * time.Minute
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxDedup <= 0 {
		c.MaxDedup = 1000
	}
	return c
}

// OpsAlerter is the async alert pipeline: bounded queue, one sender
// worker, token-bucket rate limit, retry with backoff, and a suppression
// window so a flapping condition posts once. It also serves as the
// logger's alert sink.
type OpsAlerter struct {
	cfg    OpsConfig
	sender AlertSender
	log    logx.Logger

	limiter *rate.Limiter

	mu       sync.Mutex
	queue    chan string
	stopCh   chan struct{}
	stopDone chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time
}

// NewOpsAlerter returns an alerter; a nil sender or disabled config turns
// every Alert into ErrAlertsDisabled.
func NewOpsAlerter(cfg OpsConfig, sender AlertSender, log logx.Logger) *OpsAlerter {
	cfg = cfg.withDefaults()
	if sender == nil {
		cfg.Enabled = false
	}
	return &OpsAlerter{
		cfg:     cfg,
		sender:  sender,
		log:     log.With(logx.String("component", "ops_alerts")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

func (o *OpsAlerter) Enabled() bool { return o.cfg.Enabled }

func (o *OpsAlerter) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.cfg.Enabled || o.queue != nil {
		return
	}
	o.queue = make(chan string, o.cfg.QueueSize)
	o.stopCh = make(chan struct{})
	o.stopDone = make(chan struct{})
	go o.run(ctx, o.queue, o.stopCh, o.stopDone)
	o.log.Info("ops alerts started", logx.Int("rate_per_sec", o.cfg.RatePerSec))
}

// Stop halts intake and waits for the worker, best-effort until ctx ends.
func (o *OpsAlerter) Stop(ctx context.Context) {
	o.mu.Lock()
	if o.queue == nil {
		o.mu.Unlock()
		return
	}
	close(o.stopCh)
	done := o.stopDone
	o.queue = nil
	o.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Alert queues one message. Duplicate text inside the dedup window is
// silently dropped.
func (o *OpsAlerter) Alert(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	q := o.queue
	enabled := o.cfg.Enabled
	o.mu.Unlock()

	if !enabled {
		return ErrAlertsDisabled
	}
	if q == nil {
		return ErrAlertsStopped
	}
	if o.cfg.DedupWindow > 0 && !o.dedupAllow(dedupKey(msg)) {
		return nil
	}
	select {
	case q <- msg:
		return nil
	default:
		return ErrAlertQueueFull
	}
}

// SendAlert lets the alerter stand in as the logger's alert sink.
func (o *OpsAlerter) SendAlert(ctx context.Context, msg string) error {
	return o.Alert(ctx, msg)
}

func (o *OpsAlerter) run(ctx context.Context, q <-chan string, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			// Drain what is already queued.
			for {
				select {
				case msg := <-q:
					o.deliver(ctx, msg)
				default:
					return
				}
			}
		case msg := <-q:
			o.deliver(ctx, msg)
		}
	}
}

func (o *OpsAlerter) deliver(ctx context.Context, msg string) {
	attempts := 1 + o.cfg.RetryMax
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
		err := o.sender.Send(callCtx, msg)
		cancel()
		if err == nil {
			return
		}
		o.log.Debug("alert send failed",
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts))
		if attempt == attempts {
			o.log.Warn("alert dropped after retries", logx.Err(err))
			return
		}
		t := time.NewTimer(o.cfg.RetryBase << (attempt - 1))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func dedupKey(msg string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(msg))
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether the key is outside its suppression window,
// opening a new window when it is.
func (o *OpsAlerter) dedupAllow(key string) bool {
	now := time.Now()
	o.dmu.Lock()
	defer o.dmu.Unlock()

	if until, ok := o.dedup[key]; ok && now.Before(until) {
		return false
	}
	o.dedup[key] = now.Add(o.cfg.DedupWindow)

	for k, until := range o.dedup {
		if !now.Before(until) {
			delete(o.dedup, k)
		}
	}
	// Cap by evicting the soonest-expiring entries.
	for len(o.dedup) > o.cfg.MaxDedup {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range o.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(o.dedup, minKey)
	}
	return true
}
