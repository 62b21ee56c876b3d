package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Skip reason codes shared by every component that resolves appointment
// date/time fields. They end up as the "reason" field on skip logs.
const (
	ReasonNotApproved      = "not_approved"
	ReasonInvalidDateTime  = "invalid_date_time"
	ReasonInvalidDateParse = "invalid_date_parse"
	ReasonTimeNotInRange   = "time_not_in_range"
)

const scheduleLayout = "2006-01-02 15:04"

// ScheduleError reports why an appointment's date/time fields could not be
// resolved to an instant.
type ScheduleError struct {
	Reason string
	Date   string
	Time   string
	Err    error
}

func (e *ScheduleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q %q: %v", e.Reason, e.Date, e.Time, e.Err)
	}
	return fmt.Sprintf("%s: %q %q", e.Reason, e.Date, e.Time)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// SkipReason extracts the reason code from a ScheduleError, falling back to
// invalid_date_parse for anything else.
func SkipReason(err error) string {
	var serr *ScheduleError
	if errors.As(err, &serr) {
		return serr.Reason
	}
	return ReasonInvalidDateParse
}

// ScheduleTime resolves an appointment's date ("2006-01-02") and time
// ("15:04") fields to an instant in the given location. Appointment records
// carry no zone of their own; every scanning task must pass the same
// configured fixed offset so they agree on when an appointment happens.
func ScheduleTime(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, &ScheduleError{Reason: ReasonInvalidDateTime, Date: date, Time: clock}
	}
	at, err := time.ParseInLocation(scheduleLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, &ScheduleError{Reason: ReasonInvalidDateParse, Date: date, Time: clock, Err: err}
	}
	return at, nil
}
