package jobs

import (
	"fmt"
	"time"

	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/internal/push"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Notification kinds carried in the data payload so the mobile client can
// tell pushes apart.
const (
	KindOneHour      = "one_hour"
	KindThirtyMinute = "thirty_minute"
	KindConfirmation = "confirmation"
)

// Job is one scheduled push notification. Status moves pending -> sent
// exactly once and never back; SentAt is set iff the transition happened.
// Rows are never deleted, so the table doubles as the delivery audit trail.
type Job struct {
	ID            string
	AppointmentID string
	UserID        string
	Title         string
	Message       string
	ScheduledAt   time.Time
	Status        string
	Buttons       []push.Button
	Data          map[string]any
	CreatedAt     time.Time
	SentAt        *time.Time
}

// ConfirmButton lets the customer confirm attendance straight from the
// notification; the app answers by calling the confirm endpoint.
var ConfirmButton = push.Button{ID: "confirm", Text: "I'll be there"}

// OneHourNotification is the "one hour out" reminder, shared by the queued
// path and the direct scanner so both deliver identical copy.
func OneHourNotification(appt model.Appointment) push.Notification {
	return push.Notification{
		UserID:  appt.CustomerID,
		Title:   "Appointment Reminder",
		Message: fmt.Sprintf("Hi %s, your appointment is in about an hour at %s.", displayName(appt), displayTime(appt)),
		Buttons: []push.Button{ConfirmButton},
		Data:    reminderData(appt, KindOneHour),
	}
}

// ApproachingNotification is the "approaching" reminder sent half an hour
// before the appointment.
func ApproachingNotification(appt model.Appointment) push.Notification {
	return push.Notification{
		UserID:  appt.CustomerID,
		Title:   "Almost Time",
		Message: fmt.Sprintf("Hi %s, your appointment at %s is coming up. See you soon!", displayName(appt), displayTime(appt)),
		Data:    reminderData(appt, KindThirtyMinute),
	}
}

// ConfirmationNotification tells the barber that the customer confirmed
// attendance.
func ConfirmationNotification(appt model.Appointment) push.Notification {
	return push.Notification{
		UserID:  appt.BarberID,
		Title:   "Appointment Confirmed",
		Message: fmt.Sprintf("%s confirmed the %s appointment.", customerLabel(appt), displayTime(appt)),
		Data:    reminderData(appt, KindConfirmation),
	}
}

// PlanReminders builds the queued reminder pair for an appointment starting
// at the given instant, evaluated against now. More than an hour of lead
// time yields both jobs; between thirty and sixty minutes only the
// approaching job; thirty minutes or less yields nothing, and the
// appointment permanently misses its queued reminders. The caller latches
// the appointment regardless of how many jobs come back.
func PlanReminders(appt model.Appointment, at time.Time, now time.Time) []Job {
	diff := at.Sub(now)
	var planned []Job
	if diff > time.Hour {
		planned = append(planned, fromNotification(appt.ID, OneHourNotification(appt), at.Add(-time.Hour)))
	}
	if diff > 30*time.Minute {
		planned = append(planned, fromNotification(appt.ID, ApproachingNotification(appt), at.Add(-30*time.Minute)))
	}
	return planned
}

func fromNotification(appointmentID string, n push.Notification, at time.Time) Job {
	return Job{
		AppointmentID: appointmentID,
		UserID:        n.UserID,
		Title:         n.Title,
		Message:       n.Message,
		ScheduledAt:   at,
		Status:        StatusPending,
		Buttons:       n.Buttons,
		Data:          n.Data,
	}
}

func (j Job) notification() push.Notification {
	return push.Notification{
		UserID:  j.UserID,
		Title:   j.Title,
		Message: j.Message,
		Buttons: j.Buttons,
		Data:    j.Data,
	}
}

func reminderData(appt model.Appointment, kind string) map[string]any {
	return map[string]any{
		"appointment_id": appt.ID,
		"kind":           kind,
	}
}

func displayName(appt model.Appointment) string {
	if appt.CustomerName != "" {
		return appt.CustomerName
	}
	return "there"
}

func customerLabel(appt model.Appointment) string {
	if appt.CustomerName != "" {
		return appt.CustomerName
	}
	return "Your customer"
}

func displayTime(appt model.Appointment) string {
	if appt.AppointmentTime != "" {
		return appt.AppointmentTime
	}
	return appt.Time
}
