/*
scheduler.go - Birthday reminder sweep

PURPOSE:
  Once a day, finds customers celebrating their birthday who have not yet
  received this year's bonus stamp, and queues a reminder inviting them in.
  The bonus itself is only ever granted by a staff scan.

DESIGN:
  - Driven by robfig/cron with a standard 5-field spec (default "0 8 * * *")
  - Evaluated in the configured time zone
  - Idempotent per customer and year: the reminder dedupe key is
    birthday-<customer>-<year>, so a rerun or a second instance queues nothing
  - Also prunes idle entries from the duplicate-scan guard

CONFIGURATION:
  - Spec:     Cron expression (STAMPCARD_BIRTHDAY_SWEEP_CRON)
  - Location: Time zone for the spec and for "today"
  - Enabled:  Whether the scheduler starts at all

USAGE:
  scheduler := NewBirthdayScheduler(svc, outbox, guard, "0 8 * * *", time.UTC, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - loyalty/service.go: BirthdaysDue
  - notify/notify.go: Outbox deduplication
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/metrics"
	"github.com/warp/stampcard/notify"
)

// BirthdayScheduler queues birthday reminders on a cron schedule.
type BirthdayScheduler struct {
	Service  *loyalty.Service
	Notifier notify.Notifier
	Guard    *ScanGuard
	Spec     string
	Location *time.Location
	Enabled  bool

	logger  *slog.Logger
	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

// NewBirthdayScheduler creates a new scheduler. A nil location means UTC.
func NewBirthdayScheduler(svc *loyalty.Service, notifier notify.Notifier, guard *ScanGuard, spec string, loc *time.Location, logger *slog.Logger) *BirthdayScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BirthdayScheduler{
		Service:  svc,
		Notifier: notifier,
		Guard:    guard,
		Spec:     spec,
		Location: loc,
		Enabled:  true,
		logger:   logger.With("component", "birthday-scheduler"),
	}
}

// Start registers the sweep and starts the cron runner.
func (bs *BirthdayScheduler) Start() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.logger.Info("scheduler disabled, not starting")
		return nil
	}
	if bs.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(bs.Location))
	id, err := c.AddFunc(bs.Spec, bs.sweep)
	if err != nil {
		return fmt.Errorf("schedule birthday sweep %q: %w", bs.Spec, err)
	}
	c.Start()
	bs.cron = c
	bs.entryID = id

	bs.logger.Info("scheduler started", "spec", bs.Spec, "location", bs.Location.String(), "next_run", c.Entry(id).Next)
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (bs *BirthdayScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.cron == nil {
		return
	}
	<-bs.cron.Stop().Done()
	bs.cron = nil
	bs.logger.Info("scheduler stopped")
}

// NextRun returns when the next sweep will occur, or the zero time when the
// scheduler is not running.
func (bs *BirthdayScheduler) NextRun() time.Time {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.cron == nil {
		return time.Time{}
	}
	return bs.cron.Entry(bs.entryID).Next
}

func (bs *BirthdayScheduler) sweep() {
	ctx := context.Background()
	if _, err := bs.RunOnce(ctx, bs.Service.Now()); err != nil {
		bs.logger.Error("birthday sweep failed", "error", err)
	}
}

// RunOnce queues reminders for every birthday due on now's date and returns
// how many were handed to the notifier.
func (bs *BirthdayScheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()

	due, err := bs.Service.BirthdaysDue(ctx, now)
	if err != nil {
		metrics.RecordBirthdaySweep(0, time.Since(start), err)
		return 0, err
	}

	queued := 0
	var failed int
	for _, c := range due {
		err := bs.Notifier.Notify(ctx, notify.Notification{
			CustomerID: string(c.ID),
			Kind:       notify.KindBirthdayReminder,
			Title:      fmt.Sprintf("Happy birthday, %s!", c.Name),
			Body:       "Drop by today and we'll add a bonus stamp to your card.",
			DedupeKey:  fmt.Sprintf("birthday-%s-%d", c.ID, now.Year()),
			CreatedAt:  now,
		})
		if err != nil {
			failed++
			bs.logger.Warn("birthday reminder failed", "customer_id", string(c.ID), "error", err)
			continue
		}
		queued++
	}

	if bs.Guard != nil {
		if removed := bs.Guard.Cleanup(); removed > 0 {
			bs.logger.Debug("scan guard pruned", "removed", removed)
		}
	}

	var sweepErr error
	if failed > 0 {
		sweepErr = fmt.Errorf("%d of %d birthday reminders failed", failed, len(due))
	}
	metrics.RecordBirthdaySweep(queued, time.Since(start), sweepErr)
	bs.logger.Info("birthday sweep completed", "due", len(due), "queued", queued, "failed", failed)
	return queued, sweepErr
}
