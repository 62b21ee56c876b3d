package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuttime/reminder-service/internal/outbox"
	"github.com/cuttime/reminder-service/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store is the pgx repository over notification_jobs.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

// Insert persists a planned job inside the caller's transaction, assigning
// an ID when the job has none.
func (s *Store) Insert(ctx context.Context, tx pgx.Tx, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	buttons, err := marshalOptional(job.Buttons, len(job.Buttons) > 0)
	if err != nil {
		return err
	}
	data, err := marshalOptional(job.Data, len(job.Data) > 0)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO notification_jobs (id, appointment_id, user_id, title, message, scheduled_at, status, buttons, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ID, job.AppointmentID, job.UserID, job.Title, job.Message, job.ScheduledAt, job.Status, buttons, data)
	return err
}

// Due returns pending jobs whose trigger instant has passed. Jobs scheduled
// strictly in the future never appear here.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if err := s.pool.Available(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, user_id, title, message, scheduled_at, status, buttons, data, created_at, sent_at
		FROM notification_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Job
	for rows.Next() {
		var j Job
		var buttons, data []byte
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.UserID, &j.Title, &j.Message, &j.ScheduledAt, &j.Status, &buttons, &data, &j.CreatedAt, &j.SentAt); err != nil {
			return nil, err
		}
		if len(buttons) > 0 {
			if err := json.Unmarshal(buttons, &j.Buttons); err != nil {
				return nil, err
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &j.Data); err != nil {
				return nil, err
			}
		}
		due = append(due, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return due, nil
}

// MarkSent retires a dispatch cycle's jobs in one transaction: every job
// flips to sent with sent_at = at, and a reminder.job.sent.v1 event is
// written alongside each. The pending guard keeps the transition monotonic
// if two cycles ever overlap.
func (s *Store) MarkSent(ctx context.Context, sent []Job, at time.Time) error {
	if len(sent) == 0 {
		return nil
	}
	if err := s.pool.Available(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(sent))
	for _, j := range sent {
		ids = append(ids, j.ID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'sent', sent_at = $2
		WHERE id = ANY($1) AND status = 'pending'
	`, ids, at); err != nil {
		return err
	}

	for _, j := range sent {
		payload, err := json.Marshal(map[string]any{
			"job_id":         j.ID,
			"appointment_id": j.AppointmentID,
			"user_id":        j.UserID,
			"scheduled_at":   j.ScheduledAt.UTC().Format(time.RFC3339),
			"sent_at":        at.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   j.AppointmentID,
			EventType:     "reminder.job.sent.v1",
			Payload:       payload,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func marshalOptional(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}
