package outbox

// Event is the domain event envelope written to the outbox table. Inserting
// one is how this service records that a notification was requested; actual
// delivery belongs to downstream consumers. The Kafka topic name equals
// EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the scheduling core.
const (
	EventAppointmentBooked      = "grooming.appointment.booked.v1"
	EventAppointmentCanceled    = "grooming.appointment.canceled.v1"
	EventAppointmentRescheduled = "grooming.appointment.rescheduled.v1"
	EventReminderRequested      = "grooming.reminder.requested.v1"
)
