package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for appointments. The store is the
// single arbiter of the calendar-slot uniqueness invariant: Insert must fail
// with ErrSlotTaken when a non-cancelled row already occupies the same
// (resource, date, time) triple, regardless of any pre-check the caller ran.
type Repository interface {
	// Insert persists a new appointment. Returns ErrSlotTaken when the
	// uniqueness constraint rejects the write.
	Insert(ctx context.Context, appt *Appointment) error

	// GetByToken loads the appointment bound to a confirmation token.
	// Returns ErrTokenNotFound for unknown tokens.
	GetByToken(ctx context.Context, token string) (*Appointment, error)

	// BookedTimes lists the slot times occupied by non-cancelled
	// appointments for a resource on a date.
	BookedTimes(ctx context.Context, resourceID, date string) ([]string, error)

	// TransitionFromPending conditionally moves a pending appointment to
	// the given status, stamping confirmedAt when non-nil. Returns
	// ErrNotFound when the row is absent or no longer pending; the caller
	// re-reads to observe which.
	TransitionFromPending(ctx context.Context, id uuid.UUID, to Status, confirmedAt *time.Time) (*Appointment, error)
}
