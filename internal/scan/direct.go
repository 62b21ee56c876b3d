package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuttime/reminder-service/internal/jobs"
	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/internal/push"
	"github.com/cuttime/reminder-service/libs/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DirectStore is the slice of the appointment repository the direct scanner
// needs.
type DirectStore interface {
	DueToday(ctx context.Context, date string, limit int) ([]model.Appointment, error)
	MarkOneHourReminderSent(ctx context.Context, sent []model.Appointment, at time.Time) error
}

// DirectScanner backstops the one hour reminder. Every minute it re-reads
// today's approved appointments straight from the table and pushes to any
// customer whose appointment starts within the next hour, covering jobs the
// planner never queued. Unlike the dispatcher it latches only after the
// gateway accepted the push, so a failed send is retried on the next sweep.
type DirectScanner struct {
	store     DirectStore
	sender    push.Sender
	logger    *slog.Logger
	loc       *time.Location
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type DirectScannerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewDirectScanner(store DirectStore, sender push.Sender, logger *slog.Logger, loc *time.Location, cfg DirectScannerConfig) *DirectScanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &DirectScanner{
		store:     store,
		sender:    sender,
		logger:    logger,
		loc:       loc,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (s *DirectScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scanBatch(ctx); err != nil {
				if errors.Is(err, db.ErrNotConfigured) {
					s.logger.Warn("one hour reminder cycle skipped", "err", err)
				} else {
					s.logger.Error("one hour reminder cycle failed", "err", err)
				}
			}
		}
	}
}

func (s *DirectScanner) scanBatch(ctx context.Context) error {
	now := s.now().UTC()
	// The sweep is bounded to today's date in the schedule zone; an
	// appointment in the first hour after midnight can slip past while the
	// clock still reads yesterday, which the planner's queued job covers.
	today := now.In(s.loc).Format("2006-01-02")

	appts, err := s.store.DueToday(ctx, today, s.batchSize)
	if err != nil {
		return err
	}

	var sent []model.Appointment
	skipped := 0
	failed := 0
	for _, appt := range appts {
		if appt.Status != model.StatusApproved {
			s.logger.Info("appointment skipped", "appointment_id", appt.ID, "reason", model.ReasonNotApproved)
			skipped++
			continue
		}
		at, err := model.ScheduleTime(appt.Date, appt.Time, s.loc)
		if err != nil {
			s.logger.Warn("appointment skipped",
				"appointment_id", appt.ID,
				"reason", model.SkipReason(err),
				"err", err)
			skipped++
			continue
		}
		mins := at.Sub(now).Minutes()
		if mins <= 0 || mins > 60 {
			s.logger.Info("appointment skipped",
				"appointment_id", appt.ID,
				"reason", model.ReasonTimeNotInRange,
				"minutes_until", mins)
			skipped++
			continue
		}

		sendCtx, span := otel.Tracer("reminder").Start(ctx, "push.send",
			trace.WithAttributes(
				attribute.String("push.target", appt.CustomerID),
				attribute.String("appointment.id", appt.ID),
			),
		)
		err = s.sender.Send(sendCtx, jobs.OneHourNotification(appt))
		if err != nil {
			span.RecordError(err)
			span.End()
			s.logger.Error("one hour reminder push failed", "appointment_id", appt.ID, "err", err)
			failed++
			continue
		}
		span.End()
		sent = append(sent, appt)
	}

	if len(sent) > 0 {
		if err := s.store.MarkOneHourReminderSent(ctx, sent, now); err != nil {
			return err
		}
	}

	s.logger.Info("one hour reminder cycle",
		"checked", len(appts),
		"sent", len(sent),
		"skipped", skipped,
		"failed", failed)
	return nil
}
