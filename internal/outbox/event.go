package outbox

// Event is the lifecycle event envelope written to the outbox table in the
// same transaction as the state change it describes. All events share one
// Kafka topic; consumers route on the event_type header.
//
// Event types emitted by this service:
//
//	reminder.appointment.created.v1    booking endpoint stored a new appointment
//	reminder.appointment.approved.v1   approval endpoint moved pending -> approved
//	reminder.appointment.confirmed.v1  customer confirmed attendance
//	reminder.jobs.scheduled.v1         planner materialized the reminder pair
//	reminder.job.sent.v1               dispatcher retired a due job
//	reminder.one_hour.sent.v1          direct scanner delivered the one hour backstop
//	reminder.barber.notified.v1        staff notified of a confirmed customer
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
