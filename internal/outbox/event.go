package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by the API. The consumer turns these into
// user-facing notifications.
const (
	EventUserRegistered       = "qtime.user.registered.v1"
	EventAppointmentBooked    = "qtime.appointment.booked.v1"
	EventAppointmentCancelled = "qtime.appointment.cancelled.v1"
)
