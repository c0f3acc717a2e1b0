package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Old6Man6/Qtime/internal/notifications"
	"github.com/Old6Man6/Qtime/internal/outbox"
)

// Event payloads as produced by the HTTP API.
type userRegisteredPayload struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

type appointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	ProviderID    string    `json:"provider_id"`
	StartTime     time.Time `json:"start_time"`
}

// NotificationHandler writes a notification row for each domain event.
func NotificationHandler(repo *notifications.Repository) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch msg.Topic {
		case outbox.EventUserRegistered:
			var p userRegisteredPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				return err
			}
			return repo.Insert(ctx, p.UserID, "Welcome! Your account is ready.")

		case outbox.EventAppointmentBooked:
			var p appointmentPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				return err
			}
			message := fmt.Sprintf("Your appointment on %s is booked.", p.StartTime.Format("2006-01-02 15:04"))
			return repo.Insert(ctx, p.UserID, message)

		case outbox.EventAppointmentCancelled:
			var p appointmentPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				return err
			}
			message := fmt.Sprintf("Your appointment on %s was cancelled.", p.StartTime.Format("2006-01-02 15:04"))
			return repo.Insert(ctx, p.UserID, message)
		}
		return nil
	}
}
