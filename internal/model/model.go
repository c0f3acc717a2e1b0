// Package model holds the shared domain types for the scheduling platform.
package model

import "time"

// Roles a user account can hold.
const (
	RoleUser     = "user"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

type User struct {
	ID           string
	PhoneNumber  string
	FullName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Branch struct {
	ID          string
	Name        string
	Location    string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Service struct {
	ID              string
	Name            string
	Description     string
	DurationMinutes int
	PriceCents      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TimeSlot is a bookable window offered by a provider at a branch for a service.
// Duration is always derived from the service, never supplied by the caller.
type TimeSlot struct {
	ID              string
	ProviderID      string
	BranchID        string
	ServiceID       string
	StartTime       time.Time
	DurationMinutes int
	Booked          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndTime is the exclusive end of the slot window.
func (s TimeSlot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Appointment statuses.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
)

type Appointment struct {
	ID        string
	UserID    string
	SlotID    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Denormalized slot fields for list responses; populated by joins.
	Slot *TimeSlot
}

type Notification struct {
	ID      string
	UserID  string
	Message string
	SentAt  time.Time
	IsRead  bool
}
