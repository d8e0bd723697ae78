package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "eusotrip/pkg/logx"
)

func TestCronRejectsBadSpec(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner(t, Config{})
	c := NewCron(r, logx.Nop())

	err := c.Add("not a cron line", "broken", 0, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("malformed spec accepted")
	}
	if got := len(c.Entries()); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}

	for _, spec := range []string{"0 6 * * *", "*/30 * * * * *", "@hourly", "@every 15m"} {
		if err := c.Add(spec, "ok-"+spec, 0, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Add(%q) = %v", spec, err)
		}
	}
	if got := len(c.Entries()); got != 4 {
		t.Fatalf("entries = %d, want 4", got)
	}
}

func TestCronFiresJob(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner(t, Config{})
	c := NewCron(r, logx.Nop())

	var fired atomic.Int32
	err := c.Add("@every 1s", "heartbeat", 0, func(ctx context.Context) error {
		fired.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	ents := c.Entries()
	if len(ents) != 1 || ents[0].Name != "heartbeat" || ents[0].Spec != "@every 1s" {
		t.Fatalf("entries = %+v", ents)
	}
	if !ents[0].Next.IsZero() {
		t.Fatalf("Next = %v before start, want zero", ents[0].Next)
	}

	c.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Stop(ctx)
	}()

	waitFor(t, func() bool { return fired.Load() >= 1 }, "schedule never fired")
	if next := c.Entries()[0].Next; next.IsZero() {
		t.Fatal("Next still zero after start")
	}
}
