package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "eusotrip/pkg/logx"
)

// Cron fires recurring jobs into the runner on cron schedules. Specs
// accept an optional seconds field and descriptors like @hourly; all
// schedules evaluate in UTC so a host timezone change cannot shift
// sweep times.
type Cron struct {
	c      *cron.Cron
	runner *Runner
	log    logx.Logger

	mu      sync.Mutex
	entries []cronEntry
}

type cronEntry struct {
	id   cron.EntryID
	name string
	spec string
}

func specParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ParseSpec rejects schedule expressions Add would refuse, without
// registering anything. Used to validate config before committing it.
func ParseSpec(spec string) error {
	_, err := specParser().Parse(spec)
	return err
}

func NewCron(runner *Runner, log logx.Logger) *Cron {
	return &Cron{
		c:      cron.New(cron.WithParser(specParser()), cron.WithLocation(time.UTC)),
		runner: runner,
		log:    log.With(logx.String("component", "cron")),
	}
}

// Add registers run under name on the given spec. Fires enqueue with
// overlap skip, so a schedule cannot stack runs behind a slow one.
func (c *Cron) Add(spec, name string, timeout time.Duration, run func(ctx context.Context) error) error {
	id, err := c.c.AddFunc(spec, func() {
		err := c.runner.Enqueue(Job{
			Name:    name,
			Timeout: timeout,
			Run:     run,
			Opt:     Options{Overlap: OverlapSkip},
		})
		switch {
		case err == nil:
		case errors.Is(err, ErrOverlapSkip), errors.Is(err, ErrCircuitOpen):
			// already logged by the runner
		default:
			c.log.Warn("scheduled job not queued",
				logx.String("job", name),
				logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q for job %q: %w", spec, name, err)
	}
	c.mu.Lock()
	c.entries = append(c.entries, cronEntry{id: id, name: name, spec: spec})
	c.mu.Unlock()
	c.log.Info("job scheduled",
		logx.String("job", name),
		logx.String("spec", spec))
	return nil
}

func (c *Cron) Start() {
	c.c.Start()
}

// Stop halts scheduling and waits for in-flight trigger callbacks,
// bounded by ctx.
func (c *Cron) Stop(ctx context.Context) {
	select {
	case <-c.c.Stop().Done():
	case <-ctx.Done():
		c.log.Warn("cron stop timed out", logx.Err(ctx.Err()))
	}
}

// CronEntry describes one registered schedule.
type CronEntry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next,omitzero"`
	Prev time.Time `json:"prev,omitzero"`
}

// Entries lists the registered schedules with their next fire times.
func (c *Cron) Entries() []CronEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CronEntry, 0, len(c.entries))
	for _, e := range c.entries {
		ent := c.c.Entry(e.id)
		out = append(out, CronEntry{Name: e.name, Spec: e.spec, Next: ent.Next, Prev: ent.Prev})
	}
	return out
}
