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

// ConfirmationStore is the slice of the appointment repository the
// confirmation notifier needs.
type ConfirmationStore interface {
	ConfirmedUnnotified(ctx context.Context, limit int) ([]model.Appointment, error)
	MarkBarberNotified(ctx context.Context, notified []model.Appointment, at time.Time) error
}

// ConfirmationNotifier tells barbers about customers who confirmed. It
// latches only appointments whose push the gateway accepted; a failed send
// stays unlatched and retries, which can duplicate the barber's ping if the
// process dies between the push and the commit.
type ConfirmationNotifier struct {
	store     ConfirmationStore
	sender    push.Sender
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type ConfirmationNotifierConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewConfirmationNotifier(store ConfirmationStore, sender push.Sender, logger *slog.Logger, cfg ConfirmationNotifierConfig) *ConfirmationNotifier {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &ConfirmationNotifier{
		store:     store,
		sender:    sender,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (n *ConfirmationNotifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.notifyBatch(ctx); err != nil {
				if errors.Is(err, db.ErrNotConfigured) {
					n.logger.Warn("confirmation cycle skipped", "err", err)
				} else {
					n.logger.Error("confirmation cycle failed", "err", err)
				}
			}
		}
	}
}

func (n *ConfirmationNotifier) notifyBatch(ctx context.Context) error {
	appts, err := n.store.ConfirmedUnnotified(ctx, n.batchSize)
	if err != nil {
		return err
	}
	if len(appts) == 0 {
		return nil
	}

	now := n.now().UTC()
	var notified []model.Appointment
	failed := 0
	for _, appt := range appts {
		sendCtx, span := otel.Tracer("reminder").Start(ctx, "push.send",
			trace.WithAttributes(
				attribute.String("push.target", appt.BarberID),
				attribute.String("appointment.id", appt.ID),
			),
		)
		err := n.sender.Send(sendCtx, jobs.ConfirmationNotification(appt))
		if err != nil {
			span.RecordError(err)
			span.End()
			n.logger.Error("barber push failed", "appointment_id", appt.ID, "barber_id", appt.BarberID, "err", err)
			failed++
			continue
		}
		span.End()
		notified = append(notified, appt)
	}

	if len(notified) > 0 {
		if err := n.store.MarkBarberNotified(ctx, notified, now); err != nil {
			return err
		}
	}

	n.logger.Info("confirmation cycle complete", "checked", len(appts), "notified", len(notified), "failed", failed)
	return nil
}
