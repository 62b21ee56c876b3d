package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cuttime/reminder-service/internal/jobs"
	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/internal/outbox"
	"github.com/cuttime/reminder-service/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppointmentRepository is the pgx repository over appointments. The grouped
// methods (ScheduleReminders, MarkOneHourReminderSent, MarkBarberNotified)
// each commit one cycle's writes in a single transaction together with their
// outbox events; the tx-taking methods are building blocks for the HTTP
// handlers' own transactions.
type AppointmentRepository struct {
	pool   *db.Pool
	jobs   *jobs.Store
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, jobStore *jobs.Store, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, jobs: jobStore, outbox: outboxRepo}
}

// date and time stay text columns on purpose: records written by older
// clients can carry malformed values, and the scanners must be able to read,
// skip and log them instead of failing the whole query.
const appointmentFields = `id, customer_id, barber_id, COALESCE(customer_name, ''), COALESCE(date, ''), COALESCE(time, ''), COALESCE(appointment_time, ''), status, reminder_scheduled, one_hour_reminder_sent, customer_confirmed, barber_notified, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.BarberID,
		&a.CustomerName,
		&a.Date,
		&a.Time,
		&a.AppointmentTime,
		&a.Status,
		&a.ReminderScheduled,
		&a.OneHourReminderSent,
		&a.CustomerConfirmed,
		&a.BarberNotified,
		&a.CreatedAt,
	)
	return a, err
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := r.pool.Available(); err != nil {
		return nil, err
	}
	return r.pool.Begin(ctx)
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, customer_id, barber_id, customer_name, date, time, appointment_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, appt.CustomerID, appt.BarberID, appt.CustomerName, appt.Date, appt.Time, appt.AppointmentTime, appt.Status)
	if err != nil {
		return "", err
	}
	appt.ID = id
	return id, nil
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentFields+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *AppointmentRepository) Approve(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'approved' WHERE id = $1
	`, id)
	return err
}

func (r *AppointmentRepository) SetCustomerConfirmed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments SET customer_confirmed = true WHERE id = $1
	`, id)
	return err
}

func (r *AppointmentRepository) SetReminderScheduled(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments SET reminder_scheduled = true WHERE id = $1
	`, id)
	return err
}

// Unscheduled returns approved appointments the planner has not latched yet.
func (r *AppointmentRepository) Unscheduled(ctx context.Context, limit int) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentFields+`
		FROM appointments
		WHERE status = 'approved' AND reminder_scheduled = false
		ORDER BY created_at
		LIMIT $1
	`, limit)
}

// DueToday returns approved appointments on the given calendar date that
// have not received their one hour backstop reminder. Bounding the scan to
// one date keeps the per-minute query cheap.
func (r *AppointmentRepository) DueToday(ctx context.Context, date string, limit int) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentFields+`
		FROM appointments
		WHERE status = 'approved' AND date = $1 AND one_hour_reminder_sent = false
		ORDER BY time
		LIMIT $2
	`, date, limit)
}

// ConfirmedUnnotified returns appointments whose customer confirmed but
// whose barber has not been told yet.
func (r *AppointmentRepository) ConfirmedUnnotified(ctx context.Context, limit int) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentFields+`
		FROM appointments
		WHERE customer_confirmed = true AND barber_notified = false
		ORDER BY created_at
		LIMIT $1
	`, limit)
}

// List filters by status and date; either may be empty to match everything.
func (r *AppointmentRepository) List(ctx context.Context, status, date string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryAppointments(ctx, `
		SELECT `+appointmentFields+`
		FROM appointments
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR date = $2)
		ORDER BY date, time
		LIMIT $3
	`, status, date, limit)
}

// ScheduleReminders applies one appointment's planning group atomically:
// the planned jobs (zero to two), the reminder_scheduled latch, and the
// lifecycle event commit or roll back together.
func (r *AppointmentRepository) ScheduleReminders(ctx context.Context, appointmentID string, planned []jobs.Job) error {
	if err := r.pool.Available(); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range planned {
		if err := r.jobs.Insert(ctx, tx, &planned[i]); err != nil {
			return err
		}
	}
	if err := r.SetReminderScheduled(ctx, tx, appointmentID); err != nil {
		return err
	}

	jobIDs := make([]string, 0, len(planned))
	for _, j := range planned {
		jobIDs = append(jobIDs, j.ID)
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"jobs_planned":   len(planned),
		"job_ids":        jobIDs,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     "reminder.jobs.scheduled.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkOneHourReminderSent latches the direct scanner's cycle in one
// transaction. Only appointments whose push was accepted belong here;
// failed sends stay unlatched and are retried next cycle.
func (r *AppointmentRepository) MarkOneHourReminderSent(ctx context.Context, sent []model.Appointment, at time.Time) error {
	return r.latchBatch(ctx, sent, `
		UPDATE appointments SET one_hour_reminder_sent = true WHERE id = ANY($1)
	`, func(appt model.Appointment) (string, map[string]any) {
		return "reminder.one_hour.sent.v1", map[string]any{
			"appointment_id": appt.ID,
			"customer_id":    appt.CustomerID,
			"sent_at":        at.UTC().Format(time.RFC3339),
		}
	})
}

// MarkBarberNotified latches the confirmation notifier's cycle in one
// transaction.
func (r *AppointmentRepository) MarkBarberNotified(ctx context.Context, notified []model.Appointment, at time.Time) error {
	return r.latchBatch(ctx, notified, `
		UPDATE appointments SET barber_notified = true WHERE id = ANY($1)
	`, func(appt model.Appointment) (string, map[string]any) {
		return "reminder.barber.notified.v1", map[string]any{
			"appointment_id": appt.ID,
			"barber_id":      appt.BarberID,
			"notified_at":    at.UTC().Format(time.RFC3339),
		}
	})
}

func (r *AppointmentRepository) latchBatch(ctx context.Context, appts []model.Appointment, updateSQL string, event func(model.Appointment) (string, map[string]any)) error {
	if len(appts) == 0 {
		return nil
	}
	if err := r.pool.Available(); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(appts))
	for _, appt := range appts {
		ids = append(ids, appt.ID)
	}
	if _, err := tx.Exec(ctx, updateSQL, ids); err != nil {
		return err
	}

	for _, appt := range appts {
		eventType, fields := event(appt)
		payload, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     eventType,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *AppointmentRepository) queryAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	if err := r.pool.Available(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
