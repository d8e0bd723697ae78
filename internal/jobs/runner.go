// Package jobs runs queued background work on a fixed worker pool:
// schedule materialization, compliance sweeps, report generation. The
// queue is bounded, repeat submissions of a running job are skipped by
// name, failures retry with backoff, and a consecutive-failure circuit
// breaker stops a broken job from hammering its dependencies. A history
// ring feeds the status endpoint.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"eusotrip/internal/eventbus"
	logx "eusotrip/pkg/logx"
)

type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
	RetryMax       int

	CircuitTrip       int
	CircuitBaseDelay  time.Duration
	CircuitMaxDelay   time.Duration
	CircuitResetAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 2 * time.Minute
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.CircuitTrip <= 0 {
		c.CircuitTrip = 5
	}
	if c.CircuitBaseDelay <= 0 {
		c.CircuitBaseDelay = 5 * time.Second
	}
	if c.CircuitMaxDelay <= 0 {
		c.CircuitMaxDelay = 2 * time.Minute
	}
	if c.CircuitResetAfter <= 0 {
		c.CircuitResetAfter = 5 * time.Minute
	}
	return c
}

type OverlapPolicy int

const (
	// OverlapSkip drops a submission while a run with the same name is
	// queued or executing. The default: scheduled jobs must not pile up
	// behind a slow run.
	OverlapSkip OverlapPolicy = iota
	OverlapAllow
)

type Options struct {
	Overlap OverlapPolicy
	// RetryMax < 0 disables retries; 0 uses the runner default.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64
}

func (o Options) withDefaults(cfg Config) Options {
	switch {
	case o.RetryMax < 0:
		o.RetryMax = 0
	case o.RetryMax == 0:
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

// Job is one unit of queued work.
type Job struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     Options
}

// runState gates overlap per job name: "running" includes queued, so a
// schedule firing faster than its job executes cannot grow the queue.
type runState struct {
	mu       sync.Mutex
	inflight int
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// HistoryItem is one finished (or skipped) run.
type HistoryItem struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// JobStats aggregates outcomes per job name.
type JobStats struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Snapshot is the runner's diagnostic view.
type Snapshot struct {
	Workers      int                 `json:"workers"`
	QueueLen     int                 `json:"queue_len"`
	QueueCap     int                 `json:"queue_cap"`
	InFlight     int                 `json:"in_flight"`
	Dropped      uint64              `json:"dropped"`
	Jobs         map[string]JobStats `json:"jobs"`
	CircuitsOpen []string            `json:"circuits_open,omitempty"`
	History      []HistoryItem       `json:"history"`
}

type queuedJob struct {
	job        Job
	enqueuedAt time.Time
	timeout    time.Duration
	opt        Options
	state      *runState
	track      bool
}

type Runner struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q        chan queuedJob
	stopCh   chan struct{}
	stopDone chan struct{}
	wg       sync.WaitGroup

	stateMu sync.Mutex
	states  map[string]*runState

	circuits circuitStore

	statsMu sync.Mutex
	stats   map[string]*JobStats

	hmu     sync.Mutex
	history []HistoryItem

	inFlight atomic.Int32
	dropped  atomic.Uint64
	idSeq    atomic.Uint64
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Runner {
	return &Runner{
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("component", "jobs")),
		bus:    bus,
		states: make(map[string]*runState),
		stats:  make(map[string]*JobStats),
	}
}

// Start brings up the worker pool. Idempotent while running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		return
	}
	r.q = make(chan queuedJob, r.cfg.QueueSize)
	r.stopCh = make(chan struct{})
	r.stopDone = nil

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(r.stopCh, r.q, i)
	}
	r.log.Info("job runner started",
		logx.Int("workers", r.cfg.Workers),
		logx.Int("queue", r.cfg.QueueSize))
}

// Stop shuts the pool down. Queued jobs that have not started are
// dropped; the in-flight ones finish unless ctx expires first.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return
	}
	if r.stopDone != nil {
		done := r.stopDone
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	r.stopDone = done
	close(r.stopCh)
	r.mu.Unlock()

	go func() {
		r.wg.Wait()
		r.mu.Lock()
		r.q = nil
		r.stopCh = nil
		r.stopDone = nil
		r.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("job runner stopped")
	case <-ctx.Done():
		r.log.Warn("job runner stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue submits a job without blocking; a full queue is an error.
func (r *Runner) Enqueue(j Job) error {
	return r.enqueue(context.Background(), j, false)
}

// Submit enqueues with backpressure: it blocks until the job is
// accepted, ctx is canceled or the runner stops.
func (r *Runner) Submit(ctx context.Context, j Job) error {
	return r.enqueue(ctx, j, true)
}

func (r *Runner) enqueue(ctx context.Context, j Job, block bool) error {
	if j.Run == nil {
		return fmt.Errorf("job %q: nil Run", j.Name)
	}
	if j.Name == "" {
		return errors.New("job name required")
	}
	now := time.Now()
	if j.ID == "" {
		j.ID = fmt.Sprintf("job-%x-%x", now.UnixNano(), r.idSeq.Add(1))
	}

	r.mu.Lock()
	cfg := r.cfg
	q := r.q
	stopCh := r.stopCh
	stopping := r.stopDone != nil
	r.mu.Unlock()

	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	opt := j.Opt.withDefaults(cfg)

	if open, until := r.circuits.isOpen(now, j.Name, cfg); open {
		r.log.Debug("job skipped: circuit open",
			logx.String("job", j.Name),
			logx.Time("until", until))
		r.appendHistory(HistoryItem{ID: j.ID, Name: j.Name, Started: now, Error: "circuit_open"})
		return ErrCircuitOpen
	}

	st := r.stateFor(j.Name)
	track := opt.Overlap == OverlapSkip
	if track && !st.tryAcquire() {
		r.log.Debug("job skipped: already running", logx.String("job", j.Name))
		return ErrOverlapSkip
	}

	qj := queuedJob{job: j, enqueuedAt: now, timeout: timeout, opt: opt, state: st, track: track}
	if !block {
		select {
		case q <- qj:
			return nil
		default:
			if track {
				st.release()
			}
			r.dropped.Add(1)
			r.log.Warn("job dropped: queue full",
				logx.String("job", j.Name),
				logx.Int("queue_cap", cap(q)))
			return ErrQueueFull
		}
	}
	select {
	case q <- qj:
		return nil
	case <-ctx.Done():
		if track {
			st.release()
		}
		return ctx.Err()
	case <-stopCh:
		if track {
			st.release()
		}
		return ErrStopping
	}
}

func (r *Runner) worker(stopCh <-chan struct{}, queue chan queuedJob, idx int) {
	defer r.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(idx)<<32))
	for {
		select {
		case <-stopCh:
			return
		default:
		}
		select {
		case <-stopCh:
			return
		case qj := <-queue:
			r.inFlight.Add(1)
			r.execOne(stopCh, qj, rng)
			r.inFlight.Add(-1)
		}
	}
}

func (r *Runner) execOne(stopCh <-chan struct{}, qj queuedJob, rng *rand.Rand) {
	start := time.Now()
	queueDelay := start.Sub(qj.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}
	if qj.track {
		defer qj.state.release()
	}

	r.log.Debug("job started",
		logx.String("job", qj.job.Name),
		logx.Duration("queue_delay", queueDelay))

	var err error
	attempts := 0
	maxAttempts := 1 + qj.opt.RetryMax
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		err = r.runOnce(qj)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempt >= maxAttempts {
			break
		}
		delay := backoffDelay(qj.opt, attempt, rng)
		r.log.Debug("job retry scheduled",
			logx.String("job", qj.job.Name),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-stopCh:
			if !tmr.Stop() {
				<-tmr.C
			}
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: qj.job.ID, Name: qj.job.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		r.log.Warn("job failed",
			logx.String("job", qj.job.Name),
			logx.Err(err),
			logx.Duration("dur", dur),
			logx.Int("attempts", attempts))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{
				Type: eventbus.TypeJobFailed,
				Time: time.Now(),
				Data: eventbus.JobFailure{Job: qj.job.Name, Error: err.Error()},
			})
		}
	} else {
		r.log.Debug("job completed",
			logx.String("job", qj.job.Name),
			logx.Duration("dur", dur),
			logx.Int("attempts", attempts))
	}

	r.circuits.record(time.Now(), qj.job.Name, r.cfg, err)
	r.recordStats(qj.job.Name, start, err)
	r.appendHistory(item)
}

// runOnce executes a single attempt with the job timeout and a panic
// guard, so one bad job cannot take a worker down.
func (r *Runner) runOnce(qj queuedJob) (err error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if qj.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, qj.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			r.log.Error("job panicked",
				logx.String("job", qj.job.Name),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return qj.job.Run(ctx)
}

func backoffDelay(opt Options, attempt int, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	if opt.RetryJitter > 0 {
		j := (rng.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + j))
		if d < 0 {
			d = 0
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}

func (r *Runner) stateFor(name string) *runState {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	st := r.states[name]
	if st == nil {
		st = &runState{}
		r.states[name] = st
	}
	return st
}

func (r *Runner) recordStats(name string, started time.Time, err error) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	st := r.stats[name]
	if st == nil {
		st = &JobStats{}
		r.stats[name] = st
	}
	st.Runs++
	st.LastRun = started
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
}

func (r *Runner) appendHistory(item HistoryItem) {
	r.hmu.Lock()
	r.history = append(r.history, item)
	if len(r.history) > r.cfg.HistorySize {
		r.history = r.history[len(r.history)-r.cfg.HistorySize:]
	}
	r.hmu.Unlock()
}

// Snapshot returns a copy of the runner's state for diagnostics.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	cfg := r.cfg
	q := r.q
	r.mu.Unlock()

	snap := Snapshot{
		Workers:  cfg.Workers,
		InFlight: int(r.inFlight.Load()),
		Dropped:  r.dropped.Load(),
		Jobs:     make(map[string]JobStats),
	}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}

	r.statsMu.Lock()
	for name, st := range r.stats {
		snap.Jobs[name] = *st
	}
	r.statsMu.Unlock()

	snap.CircuitsOpen = r.circuits.open(time.Now())

	r.hmu.Lock()
	snap.History = make([]HistoryItem, len(r.history))
	copy(snap.History, r.history)
	r.hmu.Unlock()

	return snap
}
