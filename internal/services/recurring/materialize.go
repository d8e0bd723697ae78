package recurring

import (
	"context"
	"fmt"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/services/loads"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// OccurrenceError reports one pickup date that failed to materialize.
type OccurrenceError struct {
	Date string `json:"date"`
	Err  string `json:"err"`
}

// Result summarizes one materialization pass over a schedule.
type Result struct {
	ScheduleID string            `json:"schedule_id"`
	Created    int               `json:"created"`
	Skipped    int               `json:"skipped"`
	Failures   []OccurrenceError `json:"failures,omitzero"`
}

// Materialize creates one load per expanded occurrence that is not on
// record yet. Each occurrence is its own create call; a failed date is
// reported and the pass moves on, so a partial batch is possible and
// re-running fills the gaps.
func (s *Service) Materialize(ctx context.Context, scheduleID string) (Result, error) {
	sched, err := s.store.Schedules().Get(ctx, scheduleID)
	if err != nil {
		return Result{}, err
	}
	if !sched.Active {
		return Result{}, fmt.Errorf("schedule %s is paused: %w", scheduleID, domain.ErrConflict)
	}
	return s.materialize(ctx, sched)
}

func (s *Service) materialize(ctx context.Context, sched domain.Schedule) (Result, error) {
	res := Result{ScheduleID: sched.ID}

	for _, occ := range Expand(sched, s.now()) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		date := OccurrenceDate(occ)

		done, err := s.store.Schedules().HasOccurrence(ctx, sched.ID, date)
		if err != nil {
			return res, fmt.Errorf("occurrence lookup: %w", err)
		}
		if done {
			res.Skipped++
			continue
		}

		l, err := s.createOccurrence(ctx, sched, occ)
		if err != nil {
			res.Failures = append(res.Failures, OccurrenceError{Date: date, Err: err.Error()})
			s.log.Warn("occurrence failed",
				logx.String("schedule", sched.ID),
				logx.String("date", date),
				logx.Err(err))
			continue
		}

		if err := s.store.Schedules().PutOccurrence(ctx, domain.Occurrence{
			ScheduleID: sched.ID,
			Date:       date,
			LoadID:     l.ID,
			CreatedAt:  s.now().UTC(),
		}); err != nil {
			// The load exists but the marker write failed; the next pass
			// would duplicate it. Surface loudly.
			res.Failures = append(res.Failures, OccurrenceError{Date: date, Err: "marker: " + err.Error()})
			s.log.Error("occurrence marker failed",
				logx.String("schedule", sched.ID),
				logx.String("date", date),
				logx.String("load", l.ID),
				logx.Err(err))
			continue
		}
		res.Created++
	}

	s.log.Info("schedule materialized",
		logx.String("schedule", sched.ID),
		logx.Int("created", res.Created),
		logx.Int("skipped", res.Skipped),
		logx.Int("failed", len(res.Failures)))
	return res, nil
}

func (s *Service) createOccurrence(ctx context.Context, sched domain.Schedule, occ time.Time) (domain.Load, error) {
	t := sched.Template
	in := loads.CreateInput{
		ShipperID:   sched.ShipperID,
		Origin:      t.Origin,
		Dest:        t.Dest,
		Equipment:   t.Equipment,
		Commodity:   t.Commodity,
		HazmatClass: t.HazmatClass,
		UNNumber:    t.UNNumber,
		WeightLbs:   t.WeightLbs,
		RateCents:   t.RateCents,
		PickupAt:    occ,
		ScheduleID:  sched.ID,
		Actor:       "scheduler",
	}
	if t.TransitHrs > 0 {
		in.DeliverBy = occ.Add(time.Duration(t.TransitHrs) * time.Hour)
	}
	return s.creator.Create(ctx, in)
}

// MaterializeAll runs every active schedule. Per-schedule errors are
// collected, not fatal; the daily sweep calls this.
func (s *Service) MaterializeAll(ctx context.Context) ([]Result, error) {
	scheds, err := s.store.Schedules().List(ctx, storage.ScheduleFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	out := make([]Result, 0, len(scheds))
	for _, sched := range scheds {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.materialize(ctx, sched)
		if err != nil {
			s.log.Error("materialize pass failed", logx.String("schedule", sched.ID), logx.Err(err))
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
