package appointments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avaclinic/booking-assistant/internal/clinic"
	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/internal/schedule"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// BookingNotifier delivers notifications about new bookings. Implemented by
// the notify package; kept as a local interface so this package stays free of
// transport concerns.
type BookingNotifier interface {
	BookingCreated(ctx context.Context, appt *Appointment, cfg *clinic.Config) error
}

// Service owns booking validation and the booking transaction.
type Service struct {
	repo     Repository
	clinics  clinic.ConfigSource
	orgID    string
	notifier BookingNotifier
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics

	nowFn func() time.Time
}

// NewService wires a booking service. repo and clinics are required.
func NewService(repo Repository, clinics clinic.ConfigSource, orgID string, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repo is required")
	}
	if clinics == nil {
		panic("appointments: clinic config source is required")
	}
	s := &Service{
		repo:    repo,
		clinics: clinics,
		orgID:   orgID,
		logger:  logging.Default(),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithNotifier(n BookingNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func withNow(fn func() time.Time) ServiceOption {
	return func(s *Service) { s.nowFn = fn }
}

// Book validates the request and creates a pending appointment. The slot
// uniqueness race is resolved by the repository insert; a lost race surfaces
// as SlotUnavailableError with the then-current alternatives.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	cfg, err := s.clinics.Get(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("appointments: load clinic config: %w", err)
	}

	if !cfg.HasResource(req.ResourceID) {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidReference, req.ResourceID)
	}
	if !cfg.HasService(req.ServiceID) {
		return nil, fmt.Errorf("%w: unknown service %q", ErrInvalidReference, req.ServiceID)
	}
	if !schedule.Contains(cfg.SlotGrid(), req.Time) {
		return nil, fmt.Errorf("%w: %q is not a bookable time", ErrInvalidReference, req.Time)
	}
	if req.PatientName == "" || (req.PatientPhone == "" && req.PatientEmail == "") {
		return nil, ErrMissingContact
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid date", ErrInvalidReference, req.Date)
	}
	loc := cfg.Location()
	if schedule.BeforeDay(date, s.nowFn(), loc) {
		return nil, ErrPastDate
	}
	if cfg.IsClosedOn(date.Weekday()) {
		return nil, ErrClosedDay
	}

	booked, err := s.repo.BookedTimes(ctx, req.ResourceID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("appointments: list booked times: %w", err)
	}
	if containsTime(booked, req.Time) {
		s.metrics.ObserveBooking("slot_taken")
		return nil, &SlotUnavailableError{
			ResourceID:   req.ResourceID,
			Date:         req.Date,
			Time:         req.Time,
			Alternatives: schedule.Subtract(cfg.SlotGrid(), booked),
		}
	}

	token, err := newConfirmationToken()
	if err != nil {
		return nil, fmt.Errorf("appointments: generate token: %w", err)
	}

	appt := &Appointment{
		ID:                uuid.New(),
		ResourceID:        req.ResourceID,
		ServiceID:         req.ServiceID,
		Date:              req.Date,
		Time:              req.Time,
		PatientName:       req.PatientName,
		PatientPhone:      req.PatientPhone,
		PatientEmail:      req.PatientEmail,
		Status:            StatusPending,
		ConfirmationToken: token,
	}

	if err := s.repo.Insert(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			// Lost the race after the availability check. Re-read so the
			// alternatives reflect what just got taken.
			booked, rerr := s.repo.BookedTimes(ctx, req.ResourceID, req.Date)
			if rerr != nil {
				booked = append(booked, req.Time)
			}
			s.metrics.ObserveBooking("slot_taken")
			return nil, &SlotUnavailableError{
				ResourceID:   req.ResourceID,
				Date:         req.Date,
				Time:         req.Time,
				Alternatives: schedule.Subtract(cfg.SlotGrid(), booked),
			}
		}
		s.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}

	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID.String(),
		"resource_id", appt.ResourceID,
		"date", appt.Date,
		"time", appt.Time,
	)

	if s.notifier != nil && cfg.Notifications.EmailEnabled && appt.PatientEmail != "" {
		// Notification failures never fail the booking.
		go func(appt Appointment, cfg clinic.Config) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := s.notifier.BookingCreated(ctx, &appt, &cfg); err != nil {
				s.logger.Error("booking notification failed",
					"appointment_id", appt.ID.String(),
					"error", err.Error(),
				)
			}
		}(*appt, *cfg)
	}

	return appt, nil
}

// FreeSlots returns the open times for a resource on a date, in grid order.
func (s *Service) FreeSlots(ctx context.Context, resourceID, dateStr string) ([]string, error) {
	cfg, err := s.clinics.Get(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("appointments: load clinic config: %w", err)
	}
	if !cfg.HasResource(resourceID) {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidReference, resourceID)
	}

	date, err := schedule.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid date", ErrInvalidReference, dateStr)
	}
	if schedule.BeforeDay(date, s.nowFn(), cfg.Location()) {
		return nil, ErrPastDate
	}
	if cfg.IsClosedOn(date.Weekday()) {
		return nil, ErrClosedDay
	}

	booked, err := s.repo.BookedTimes(ctx, resourceID, dateStr)
	if err != nil {
		return nil, fmt.Errorf("appointments: list booked times: %w", err)
	}
	return schedule.Subtract(cfg.SlotGrid(), booked), nil
}

func newConfirmationToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func containsTime(times []string, t string) bool {
	for _, v := range times {
		if v == t {
			return true
		}
	}
	return false
}
