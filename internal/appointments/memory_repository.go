package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with in-memory storage. Used for
// development without a database and in tests. The uniqueness invariant is
// enforced under the same lock as the write, mirroring what the Postgres
// partial unique index guarantees.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Appointment
	byToken map[string]uuid.UUID
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[uuid.UUID]*Appointment),
		byToken: make(map[string]uuid.UUID),
	}
}

// Insert stores a new appointment, rejecting occupied slots with ErrSlotTaken.
func (r *InMemoryRepository) Insert(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Status == StatusCancelled {
			continue
		}
		if existing.ResourceID == appt.ResourceID && existing.Date == appt.Date && existing.Time == appt.Time {
			return ErrSlotTaken
		}
	}

	now := time.Now().UTC()
	stored := *appt
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.byToken[stored.ConfirmationToken] = stored.ID

	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

// GetByToken loads the appointment bound to a confirmation token.
func (r *InMemoryRepository) GetByToken(_ context.Context, token string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

// BookedTimes lists occupied times for a resource+date, excluding cancelled.
func (r *InMemoryRepository) BookedTimes(_ context.Context, resourceID, date string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var times []string
	for _, appt := range r.byID {
		if appt.Status == StatusCancelled {
			continue
		}
		if appt.ResourceID == resourceID && appt.Date == date {
			times = append(times, appt.Time)
		}
	}
	return times, nil
}

// TransitionFromPending conditionally updates status, as the SQL version does.
func (r *InMemoryRepository) TransitionFromPending(_ context.Context, id uuid.UUID, to Status, confirmedAt *time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok || appt.Status != StatusPending {
		return nil, ErrNotFound
	}

	appt.Status = to
	if confirmedAt != nil {
		t := *confirmedAt
		appt.ConfirmedAt = &t
	}
	appt.UpdatedAt = time.Now().UTC()

	copied := *appt
	return &copied, nil
}

var _ Repository = (*InMemoryRepository)(nil)
