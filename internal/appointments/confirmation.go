package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// Action is what the holder of a confirmation link asks for.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

// ParseAction validates the action query parameter.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionConfirm, ActionCancel:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}

// Outcome reports the result of acting on a confirmation token. Already is
// true when the appointment was in a terminal state before this call; the
// request is then a no-op and Status reflects the pre-existing state.
type Outcome struct {
	Appointment *Appointment
	Status      Status
	Already     bool
}

// ConfirmationService applies confirm/cancel actions keyed by token.
type ConfirmationService struct {
	repo    Repository
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	nowFn   func() time.Time
}

func NewConfirmationService(repo Repository, logger *logging.Logger, m *metrics.BookingMetrics) *ConfirmationService {
	if repo == nil {
		panic("appointments: repo is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationService{
		repo:    repo,
		logger:  logger,
		metrics: m,
		nowFn:   time.Now,
	}
}

// Act resolves the token and applies the requested transition. Repeated calls
// with the same token are idempotent: once the appointment is terminal every
// further call returns an informational Outcome with Already set.
func (s *ConfirmationService) Act(ctx context.Context, token string, action Action) (*Outcome, error) {
	if action != ActionConfirm && action != ActionCancel {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if token == "" {
		return nil, ErrTokenNotFound
	}

	appt, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrNotFound) {
			s.metrics.ObserveConfirmation(string(action), "not_found")
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("appointments: lookup token: %w", err)
	}

	if appt.Status.Terminal() || appt.Status == StatusConfirmed {
		s.metrics.ObserveConfirmation(string(action), "already")
		return &Outcome{Appointment: appt, Status: appt.Status, Already: true}, nil
	}

	target := StatusCancelled
	var confirmedAt *time.Time
	if action == ActionConfirm {
		target = StatusConfirmed
		now := s.nowFn().UTC()
		confirmedAt = &now
	}

	updated, err := s.repo.TransitionFromPending(ctx, appt.ID, target, confirmedAt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a concurrent confirm/cancel race. Re-read and report the
			// state the winner left behind.
			current, rerr := s.repo.GetByToken(ctx, token)
			if rerr != nil {
				return nil, fmt.Errorf("appointments: re-read after transition race: %w", rerr)
			}
			s.metrics.ObserveConfirmation(string(action), "already")
			return &Outcome{Appointment: current, Status: current.Status, Already: true}, nil
		}
		return nil, fmt.Errorf("appointments: transition: %w", err)
	}

	s.metrics.ObserveConfirmation(string(action), string(target))
	s.logger.Info("appointment "+string(target),
		"appointment_id", updated.ID.String(),
		"resource_id", updated.ResourceID,
		"date", updated.Date,
		"time", updated.Time,
	)
	return &Outcome{Appointment: updated, Status: updated.Status}, nil
}
