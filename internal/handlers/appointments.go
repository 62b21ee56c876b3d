package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuttime/reminder-service/internal/jobs"
	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/internal/outbox"
	"github.com/cuttime/reminder-service/internal/storage"
	"github.com/cuttime/reminder-service/libs/db"
)

type AppointmentsHandler struct {
	repo       *storage.AppointmentRepository
	jobs       *jobs.Store
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	loc        *time.Location
}

func NewAppointmentsHandler(repo *storage.AppointmentRepository, jobStore *jobs.Store, outboxRepo *outbox.Repository, logger *slog.Logger, loc *time.Location) *AppointmentsHandler {
	return &AppointmentsHandler{
		repo:       repo,
		jobs:       jobStore,
		outboxRepo: outboxRepo,
		logger:     logger,
		loc:        loc,
	}
}

type bookAppointmentRequest struct {
	CustomerID      string `json:"customer_id"`
	BarberID        string `json:"barber_id"`
	CustomerName    string `json:"customer_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	AppointmentTime string `json:"appointment_time"`
}

type bookAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type approveAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type approveAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	JobsPlanned   int    `json:"jobs_planned"`
}

type confirmAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type confirmAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Confirmed     bool   `json:"confirmed"`
}

type appointmentItem struct {
	AppointmentID       string `json:"appointment_id"`
	CustomerID          string `json:"customer_id"`
	BarberID            string `json:"barber_id"`
	CustomerName        string `json:"customer_name,omitempty"`
	Date                string `json:"date"`
	Time                string `json:"time"`
	AppointmentTime     string `json:"appointment_time,omitempty"`
	Status              string `json:"status"`
	ReminderScheduled   bool   `json:"reminder_scheduled"`
	OneHourReminderSent bool   `json:"one_hour_reminder_sent"`
	CustomerConfirmed   bool   `json:"customer_confirmed"`
	BarberNotified      bool   `json:"barber_notified"`
	CreatedAt           string `json:"created_at"`
}

func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)

	if req.CustomerID == "" || req.BarberID == "" || req.Date == "" || req.Time == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if _, err := model.ScheduleTime(req.Date, req.Time, h.loc); err != nil {
		http.Error(w, "invalid date or time", http.StatusBadRequest)
		return
	}

	appt := &model.Appointment{
		CustomerID:      req.CustomerID,
		BarberID:        req.BarberID,
		CustomerName:    req.CustomerName,
		Date:            req.Date,
		Time:            req.Time,
		AppointmentTime: req.AppointmentTime,
		Status:          model.StatusPending,
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeRepoError(w, err, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"customer_id":    appt.CustomerID,
		"barber_id":      appt.BarberID,
		"date":           appt.Date,
		"time":           appt.Time,
		"status":         appt.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     "reminder.appointment.created.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, bookAppointmentResponse{AppointmentID: id, Status: appt.Status})
}

// Approve flips a pending appointment to approved and queues its reminder
// jobs in the same transaction, latching reminder_scheduled so the planner
// never plans the appointment a second time.
func (h *AppointmentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req approveAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeRepoError(w, err, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusApproved {
		writeJSON(w, http.StatusOK, approveAppointmentResponse{AppointmentID: appt.ID, Status: appt.Status, JobsPlanned: 0})
		return
	}
	if appt.Status != model.StatusPending {
		http.Error(w, "appointment cannot be approved", http.StatusConflict)
		return
	}

	if err := h.repo.Approve(ctx, tx, appt.ID); err != nil {
		http.Error(w, "failed to approve appointment", http.StatusInternalServerError)
		return
	}

	var planned []jobs.Job
	at, err := model.ScheduleTime(appt.Date, appt.Time, h.loc)
	if err != nil {
		// Planning is skipped but the latch stays unset; the planner will
		// keep retrying the row and logging the reason.
		h.logger.Warn("reminder planning skipped",
			"appointment_id", appt.ID,
			"reason", model.SkipReason(err),
			"err", err)
	} else {
		planned = jobs.PlanReminders(appt, at, time.Now().UTC())
		for i := range planned {
			if err := h.jobs.Insert(ctx, tx, &planned[i]); err != nil {
				http.Error(w, "failed to queue reminder", http.StatusInternalServerError)
				return
			}
		}
		if err := h.repo.SetReminderScheduled(ctx, tx, appt.ID); err != nil {
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
			return
		}
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"barber_id":      appt.BarberID,
		"date":           appt.Date,
		"time":           appt.Time,
		"jobs_planned":   len(planned),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "reminder.appointment.approved.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, approveAppointmentResponse{
		AppointmentID: appt.ID,
		Status:        model.StatusApproved,
		JobsPlanned:   len(planned),
	})
}

// Confirm records the customer's attendance confirmation. The confirmation
// notifier picks the row up and pings the barber asynchronously.
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeRepoError(w, err, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status != model.StatusApproved {
		http.Error(w, "appointment is not approved", http.StatusConflict)
		return
	}
	if appt.CustomerConfirmed {
		writeJSON(w, http.StatusOK, confirmAppointmentResponse{AppointmentID: appt.ID, Confirmed: true})
		return
	}

	if err := h.repo.SetCustomerConfirmed(ctx, tx, appt.ID); err != nil {
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"customer_id":    appt.CustomerID,
		"barber_id":      appt.BarberID,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "reminder.appointment.confirmed.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, confirmAppointmentResponse{AppointmentID: appt.ID, Confirmed: true})
}

func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.List(r.Context(), status, date, limit)
	if err != nil {
		writeRepoError(w, err, "failed to list appointments")
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentItem{
			AppointmentID:       appt.ID,
			CustomerID:          appt.CustomerID,
			BarberID:            appt.BarberID,
			CustomerName:        appt.CustomerName,
			Date:                appt.Date,
			Time:                appt.Time,
			AppointmentTime:     appt.AppointmentTime,
			Status:              appt.Status,
			ReminderScheduled:   appt.ReminderScheduled,
			OneHourReminderSent: appt.OneHourReminderSent,
			CustomerConfirmed:   appt.CustomerConfirmed,
			BarberNotified:      appt.BarberNotified,
			CreatedAt:           appt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, items)
}

func writeRepoError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, db.ErrNotConfigured) {
		http.Error(w, "database not configured", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
