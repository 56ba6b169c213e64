// Package appointments implements the booking transaction and the
// token-keyed confirmation state machine over the shared appointment store.
package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Appointment is the central booking entity.
type Appointment struct {
	ID         uuid.UUID `json:"id"`
	ResourceID string    `json:"resource_id"`
	ServiceID  string    `json:"service_id"`
	Date       string    `json:"date"` // plain calendar date "2006-01-02"
	Time       string    `json:"time"` // slot time "15:04"

	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	PatientEmail string `json:"patient_email"`

	Status Status `json:"status"`

	// ConfirmationToken is generated once at creation and never reused.
	ConfirmationToken string `json:"-"`

	// ReminderSentAt is written by an out-of-band batch job; read-only here.
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingRequest carries the candidate slot and patient contact for Book.
type BookingRequest struct {
	ResourceID   string
	ServiceID    string
	Date         string
	Time         string
	PatientName  string
	PatientPhone string
	PatientEmail string
}

// Validation and lookup errors. SlotUnavailableError is a type rather than a
// sentinel so it can carry the current free-slot list for immediate retry.
var (
	ErrInvalidReference = errors.New("appointments: unknown resource or service")
	ErrPastDate         = errors.New("appointments: date is in the past")
	ErrClosedDay        = errors.New("appointments: clinic is closed that day")
	ErrMissingContact   = errors.New("appointments: patient contact is required")

	ErrNotFound      = errors.New("appointments: appointment not found")
	ErrTokenNotFound = errors.New("appointments: unknown confirmation token")
	ErrInvalidAction = errors.New("appointments: invalid confirmation action")

	// ErrSlotTaken is the storage-level signal that the uniqueness
	// constraint rejected a write. The service translates it into a
	// SlotUnavailableError before it reaches any caller.
	ErrSlotTaken = errors.New("appointments: slot already taken")
)

// SlotUnavailableError reports a requested time that is not currently free,
// together with the free alternatives for the same resource and date.
type SlotUnavailableError struct {
	ResourceID   string
	Date         string
	Time         string
	Alternatives []string
}

func (e *SlotUnavailableError) Error() string {
	if len(e.Alternatives) == 0 {
		return fmt.Sprintf("appointments: %s on %s is unavailable and no other slots are free", e.Time, e.Date)
	}
	return fmt.Sprintf("appointments: %s on %s is unavailable; free slots: %s",
		e.Time, e.Date, strings.Join(e.Alternatives, ", "))
}
