package controller

import (
	"context"
	"time"
)

// ScheduleDispatcher triggers scans for schedules that are due.
type ScheduleDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time, batch int) (int, error)
}

// ScheduleDispatchController turns due schedules into queued scans.
type ScheduleDispatchController struct {
	dispatcher ScheduleDispatcher
	interval   time.Duration
	batch      int
	now        func() time.Time
}

// NewScheduleDispatchController creates the controller. Zero values fall
// back to a one minute interval and a batch of 100.
func NewScheduleDispatchController(d ScheduleDispatcher, interval time.Duration, batch int) *ScheduleDispatchController {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &ScheduleDispatchController{
		dispatcher: d,
		interval:   interval,
		batch:      batch,
		now:        time.Now,
	}
}

func (c *ScheduleDispatchController) Name() string            { return "schedule-dispatch" }
func (c *ScheduleDispatchController) Interval() time.Duration { return c.interval }

// maxDispatchRounds caps the batches drained by one pass.
const maxDispatchRounds = 10

// Reconcile drains due schedules in batches until a short batch comes back.
func (c *ScheduleDispatchController) Reconcile(ctx context.Context) (int, error) {
	now := c.now().UTC()
	total := 0
	for round := 0; round < maxDispatchRounds; round++ {
		n, err := c.dispatcher.DispatchDue(ctx, now, c.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < c.batch || ctx.Err() != nil {
			return total, nil
		}
	}
	return total, nil
}
