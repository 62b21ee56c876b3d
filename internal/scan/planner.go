// Package scan holds the periodic workers that sweep the appointments
// table: the planner that queues reminder jobs, the direct scanner that
// backstops the one hour reminder, and the confirmation notifier that
// tells barbers about confirmed bookings.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuttime/reminder-service/internal/jobs"
	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/libs/db"
)

// PlannerStore is the slice of the appointment repository the planner needs.
type PlannerStore interface {
	Unscheduled(ctx context.Context, limit int) ([]model.Appointment, error)
	ScheduleReminders(ctx context.Context, appointmentID string, planned []jobs.Job) error
}

// Planner walks approved appointments that have no reminders yet, resolves
// their start time and queues the reminder jobs. Each appointment commits on
// its own, so one bad row never holds up the rest of the batch.
type Planner struct {
	store     PlannerStore
	logger    *slog.Logger
	loc       *time.Location
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type PlannerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewPlanner(store PlannerStore, logger *slog.Logger, loc *time.Location, cfg PlannerConfig) *Planner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Planner{
		store:     store,
		logger:    logger,
		loc:       loc,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (p *Planner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.planBatch(ctx); err != nil {
				if errors.Is(err, db.ErrNotConfigured) {
					p.logger.Warn("plan cycle skipped", "err", err)
				} else {
					p.logger.Error("plan cycle failed", "err", err)
				}
			}
		}
	}
}

func (p *Planner) planBatch(ctx context.Context) error {
	appts, err := p.store.Unscheduled(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(appts) == 0 {
		return nil
	}

	now := p.now().UTC()
	planned := 0
	skipped := 0
	for _, appt := range appts {
		at, err := model.ScheduleTime(appt.Date, appt.Time, p.loc)
		if err != nil {
			// Latch untouched: the row comes back next cycle in case the
			// record gets fixed.
			p.logger.Warn("appointment skipped",
				"appointment_id", appt.ID,
				"reason", model.SkipReason(err),
				"err", err)
			skipped++
			continue
		}

		// An empty batch still latches the appointment below; late
		// approvals forfeit their queued reminders instead of being
		// rescanned forever.
		batch := jobs.PlanReminders(appt, at, now)
		if err := p.store.ScheduleReminders(ctx, appt.ID, batch); err != nil {
			p.logger.Error("schedule reminders failed", "appointment_id", appt.ID, "err", err)
			continue
		}
		planned++
	}

	p.logger.Info("plan cycle complete", "appointments", len(appts), "planned", planned, "skipped", skipped)
	return nil
}
