package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/avaclinic/booking-assistant/internal/appointments"
	"github.com/avaclinic/booking-assistant/internal/clinic"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// Service sends booking lifecycle emails to patients. Delivery is best
// effort by contract: callers run it off the request path and only log
// failures.
type Service struct {
	email         EmailSender
	publicBaseURL string
	logger        *logging.Logger
}

// NewService creates a notification service. publicBaseURL is the externally
// reachable origin used to build confirm/cancel links; a per-clinic base URL
// in the clinic config takes precedence.
func NewService(email EmailSender, publicBaseURL string, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:         email,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger,
	}
}

// BookingCreated emails the patient a confirmation notice with confirm and
// cancel links for the new appointment.
func (s *Service) BookingCreated(ctx context.Context, appt *appointments.Appointment, cfg *clinic.Config) error {
	if appt.PatientEmail == "" {
		return nil
	}

	base := s.publicBaseURL
	if cfg != nil && cfg.PublicBaseURL != "" {
		base = strings.TrimSuffix(cfg.PublicBaseURL, "/")
	}
	confirmLink := actionLink(base, appt.ConfirmationToken, "confirm")
	cancelLink := actionLink(base, appt.ConfirmationToken, "cancel")

	clinicName := "the clinic"
	resource := appt.ResourceID
	service := appt.ServiceID
	if cfg != nil {
		if cfg.Name != "" {
			clinicName = cfg.Name
		}
		resource = cfg.ResourceName(appt.ResourceID)
		service = cfg.ServiceName(appt.ServiceID)
	}

	subject := fmt.Sprintf("Your appointment on %s at %s", appt.Date, appt.Time)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n", appt.PatientName)
	fmt.Fprintf(&text, "Your %s appointment at %s is reserved:\n\n", service, clinicName)
	fmt.Fprintf(&text, "  Date: %s\n  Time: %s\n  Room: %s\n\n", appt.Date, appt.Time, resource)
	fmt.Fprintf(&text, "Please confirm your visit: %s\n\n", confirmLink)
	fmt.Fprintf(&text, "Need to cancel? %s\n", cancelLink)

	var html strings.Builder
	fmt.Fprintf(&html, "<p>Hi %s,</p>", appt.PatientName)
	fmt.Fprintf(&html, "<p>Your <strong>%s</strong> appointment at %s is reserved:</p>", service, clinicName)
	fmt.Fprintf(&html, "<ul><li>Date: %s</li><li>Time: %s</li><li>Room: %s</li></ul>", appt.Date, appt.Time, resource)
	fmt.Fprintf(&html, `<p><a href="%s">Confirm your visit</a> &middot; <a href="%s">Cancel</a></p>`, confirmLink, cancelLink)

	err := s.email.Send(ctx, EmailMessage{
		To:      appt.PatientEmail,
		ToName:  appt.PatientName,
		Subject: subject,
		Body:    text.String(),
		HTML:    html.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: booking email: %w", err)
	}
	s.logger.Info("booking confirmation email sent",
		"appointment_id", appt.ID.String(),
		"to", appt.PatientEmail,
	)
	return nil
}

func actionLink(base, token, action string) string {
	return fmt.Sprintf("%s/appointments/confirm?token=%s&action=%s", base, url.QueryEscape(token), action)
}

var _ appointments.BookingNotifier = (*Service)(nil)
