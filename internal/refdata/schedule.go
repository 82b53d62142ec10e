package refdata

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/franz/pjsk-record/internal/util"
)

// Refresher replaces the local reference documents
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ScheduleOptions controls the daily refresh
type ScheduleOptions struct {
	Hour   int           // Local hour of the daily run (0-23)
	Minute int           // Minute of the daily run
	Jitter time.Duration // Upper bound of the random delay added to each daily run
}

// DefaultScheduleOptions refreshes daily at 01:00 with up to two minutes of jitter
func DefaultScheduleOptions() ScheduleOptions {
	return ScheduleOptions{Hour: 1, Minute: 0, Jitter: 2 * time.Minute}
}

// Schedule refreshes once immediately and then once a day until ctx is done.
// Refresh errors are logged and never stop the schedule; the next cycle is
// the only retry.
func Schedule(ctx context.Context, r Refresher, opts ScheduleOptions) error {
	runRefresh(ctx, r)

	for {
		next := NextRun(time.Now(), opts)
		util.DebugLog("Next reference data refresh at %s", next.Format(time.DateTime))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			runRefresh(ctx, r)
		}
	}
}

func runRefresh(ctx context.Context, r Refresher) {
	if err := r.Refresh(ctx); err != nil {
		util.WarnLog("Reference data refresh incomplete, continuing with stale data: %v", err)
		return
	}
	util.SuccessLog("Reference data refreshed")
}

// NextRun returns the first daily run time strictly after now, including jitter
func NextRun(now time.Time, opts ScheduleOptions) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), opts.Hour, opts.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	if opts.Jitter > 0 {
		next = next.Add(rand.N(opts.Jitter))
	}

	return next
}
