package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuttime/reminder-service/internal/push"
	"github.com/cuttime/reminder-service/libs/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DispatcherStore is the slice of the job store the dispatcher needs.
type DispatcherStore interface {
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkSent(ctx context.Context, sent []Job, at time.Time) error
}

// Dispatcher polls for due jobs and pushes them through the gateway. One
// attempt per job: the whole batch is marked sent in a single transaction
// whether or not the gateway accepted each send. That trades guaranteed
// delivery for never spamming a customer with repeats of the same reminder.
type Dispatcher struct {
	store     DispatcherStore
	sender    push.Sender
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewDispatcher(store DispatcherStore, sender push.Sender, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Run ticks until the context ends. The batch runs synchronously on the
// ticker goroutine, so a slow cycle delays the next tick instead of
// overlapping it.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.dispatchBatch(ctx); err != nil {
				if errors.Is(err, db.ErrNotConfigured) {
					d.logger.Warn("dispatch cycle skipped", "err", err)
				} else {
					d.logger.Error("dispatch cycle failed", "err", err)
				}
			}
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	now := d.now().UTC()
	due, err := d.store.Due(ctx, now, d.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	failed := 0
	for _, job := range due {
		sendCtx, span := otel.Tracer("reminder").Start(ctx, "push.send",
			trace.WithAttributes(
				attribute.String("push.target", job.UserID),
				attribute.String("appointment.id", job.AppointmentID),
			),
		)
		if err := d.sender.Send(sendCtx, job.notification()); err != nil {
			failed++
			span.RecordError(err)
			d.logger.Error("job push failed", "job_id", job.ID, "appointment_id", job.AppointmentID, "err", err)
		}
		span.End()
	}

	if err := d.store.MarkSent(ctx, due, now); err != nil {
		return err
	}
	d.logger.Info("dispatch cycle complete", "dispatched", len(due), "failed", failed)
	return nil
}
