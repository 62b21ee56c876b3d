package model

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Appointment is one booked service slot. Date and Time are kept as the
// booking workflow wrote them ("2006-01-02" / "15:04"); they only become an
// instant through ScheduleTime under the configured fixed offset.
//
// The three latch flags transition false->true exactly once and are never
// reset. Each is written by a single owner: ReminderScheduled by the reminder
// planner, OneHourReminderSent by the direct scanner, BarberNotified by the
// confirmation notifier.
type Appointment struct {
	ID                  string
	CustomerID          string
	BarberID            string
	CustomerName        string
	Date                string
	Time                string
	AppointmentTime     string // display string used in notification copy, e.g. "3:30 PM"
	Status              string
	ReminderScheduled   bool
	OneHourReminderSent bool
	CustomerConfirmed   bool
	BarberNotified      bool
	CreatedAt           time.Time
}
