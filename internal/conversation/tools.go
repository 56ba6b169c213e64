package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avaclinic/booking-assistant/internal/appointments"
	"github.com/avaclinic/booking-assistant/internal/clinic"
	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

const (
	toolCheckAvailability = "check_availability"
	toolBookAppointment   = "book_appointment"
)

// BookingService is the slice of the appointments service the dispatcher
// drives.
type BookingService interface {
	Book(ctx context.Context, req appointments.BookingRequest) (*appointments.Appointment, error)
	FreeSlots(ctx context.Context, resourceID, date string) ([]string, error)
}

// Dispatcher routes model tool calls into the booking engine and renders the
// outcome as text a language model can work with. Typed validation errors
// become retryable natural-language guidance; they never abort the dialogue.
type Dispatcher struct {
	booking BookingService
	clinics clinic.ConfigSource
	orgID   string
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

func NewDispatcher(booking BookingService, clinics clinic.ConfigSource, orgID string, logger *logging.Logger, m *metrics.BookingMetrics) *Dispatcher {
	if booking == nil {
		panic("conversation: booking service cannot be nil")
	}
	if clinics == nil {
		panic("conversation: clinic config source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		booking: booking,
		clinics: clinics,
		orgID:   orgID,
		logger:  logger,
		metrics: m,
	}
}

// Definitions builds the tool schemas advertised to the completion service.
// Resource and service identifiers are closed enumerations taken from the
// clinic configuration.
func (d *Dispatcher) Definitions(ctx context.Context) ([]ToolDefinition, error) {
	cfg, err := d.clinics.Get(ctx, d.orgID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load clinic config: %w", err)
	}

	checkParams, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"resource_id": map[string]any{
				"type":        "string",
				"enum":        cfg.ResourceIDs(),
				"description": "Room to check",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Calendar date, YYYY-MM-DD",
			},
		},
		"required": []string{"resource_id", "date"},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: marshal tool schema: %w", err)
	}

	bookParams, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"resource_id": map[string]any{
				"type": "string",
				"enum": cfg.ResourceIDs(),
			},
			"service_id": map[string]any{
				"type": "string",
				"enum": cfg.ServiceIDs(),
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Calendar date, YYYY-MM-DD",
			},
			"time": map[string]any{
				"type":        "string",
				"description": "Slot start time, HH:MM, 24-hour",
			},
			"patient_name":  map[string]any{"type": "string"},
			"patient_phone": map[string]any{"type": "string"},
			"patient_email": map[string]any{"type": "string"},
		},
		"required": []string{"resource_id", "service_id", "date", "time", "patient_name"},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: marshal tool schema: %w", err)
	}

	return []ToolDefinition{
		{
			Name:        toolCheckAvailability,
			Description: "List the open appointment times for a room on a given date.",
			Parameters:  checkParams,
		},
		{
			Name:        toolBookAppointment,
			Description: "Reserve an appointment slot for a patient. Requires a name and at least one of phone or email.",
			Parameters:  bookParams,
		},
	}, nil
}

// Dispatch executes every tool call independently and returns one tool-role
// message per call, in the order the calls were requested. A failing call
// produces an explanatory result; it never stops the remaining calls.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall) []ChatMessage {
	results := make([]ChatMessage, 0, len(calls))
	for _, call := range calls {
		results = append(results, ChatMessage{
			Role:       ChatRoleTool,
			ToolCallID: call.ID,
			Content:    d.dispatchOne(ctx, call),
		})
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call ToolCall) string {
	switch call.Name {
	case toolCheckAvailability:
		return d.checkAvailability(ctx, call)
	case toolBookAppointment:
		return d.bookAppointment(ctx, call)
	default:
		d.metrics.ObserveToolCall(call.Name, "unknown")
		d.logger.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("Unknown tool %q. Available tools: %s, %s.", call.Name, toolCheckAvailability, toolBookAppointment)
	}
}

type checkAvailabilityArgs struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
}

func (d *Dispatcher) checkAvailability(ctx context.Context, call ToolCall) string {
	var args checkAvailabilityArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		d.metrics.ObserveToolCall(toolCheckAvailability, "bad_args")
		return "The check_availability arguments were not valid JSON. Expected resource_id and date."
	}

	slots, err := d.booking.FreeSlots(ctx, args.ResourceID, args.Date)
	if err != nil {
		d.metrics.ObserveToolCall(toolCheckAvailability, "error")
		return d.renderBookingError(ctx, err)
	}
	d.metrics.ObserveToolCall(toolCheckAvailability, "ok")

	if len(slots) == 0 {
		return fmt.Sprintf("No open times remain on %s for that room. Suggest another date.", args.Date)
	}
	return fmt.Sprintf("Open times on %s: %s.", args.Date, strings.Join(slots, ", "))
}

type bookAppointmentArgs struct {
	ResourceID   string `json:"resource_id"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	PatientEmail string `json:"patient_email"`
}

func (d *Dispatcher) bookAppointment(ctx context.Context, call ToolCall) string {
	var args bookAppointmentArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		d.metrics.ObserveToolCall(toolBookAppointment, "bad_args")
		return "The book_appointment arguments were not valid JSON."
	}

	appt, err := d.booking.Book(ctx, appointments.BookingRequest{
		ResourceID:   args.ResourceID,
		ServiceID:    args.ServiceID,
		Date:         args.Date,
		Time:         args.Time,
		PatientName:  args.PatientName,
		PatientPhone: args.PatientPhone,
		PatientEmail: args.PatientEmail,
	})
	if err != nil {
		d.metrics.ObserveToolCall(toolBookAppointment, "error")
		return d.renderBookingError(ctx, err)
	}
	d.metrics.ObserveToolCall(toolBookAppointment, "ok")

	cfg, cfgErr := d.clinics.Get(ctx, d.orgID)
	resource, service := appt.ResourceID, appt.ServiceID
	if cfgErr == nil {
		resource = cfg.ResourceName(appt.ResourceID)
		service = cfg.ServiceName(appt.ServiceID)
	}
	return fmt.Sprintf(
		"Booked: %s in %s on %s at %s for %s (appointment id %s, pending until confirmed). A confirmation email is on its way if an address was given.",
		service, resource, appt.Date, appt.Time, appt.PatientName, appt.ID,
	)
}

// renderBookingError turns a typed booking error into dialogue-consumable
// text. The model, not a program, is the consumer, so the result reads as
// guidance rather than an error code.
func (d *Dispatcher) renderBookingError(ctx context.Context, err error) string {
	var unavailable *appointments.SlotUnavailableError
	switch {
	case errors.As(err, &unavailable):
		if len(unavailable.Alternatives) == 0 {
			return fmt.Sprintf("The %s slot on %s was just taken and nothing else is open that day. Offer a different date.", unavailable.Time, unavailable.Date)
		}
		return fmt.Sprintf("The %s slot on %s is taken. Free times that day: %s. Offer one of those instead.", unavailable.Time, unavailable.Date, strings.Join(unavailable.Alternatives, ", "))
	case errors.Is(err, appointments.ErrPastDate):
		return "That date is in the past. Ask for a future date."
	case errors.Is(err, appointments.ErrClosedDay):
		return d.closedDayHint(ctx)
	case errors.Is(err, appointments.ErrMissingContact):
		return "A patient name plus a phone number or email address is required before booking. Ask for the missing contact detail."
	case errors.Is(err, appointments.ErrInvalidReference):
		return fmt.Sprintf("That is not a valid room, service, date, or time for this clinic: %v. Use the documented identifiers and formats.", err)
	default:
		d.logger.Error("booking tool failed", "error", err.Error())
		return "The booking system hit an internal problem. Apologize and suggest trying again shortly."
	}
}

func (d *Dispatcher) closedDayHint(ctx context.Context) string {
	cfg, err := d.clinics.Get(ctx, d.orgID)
	if err != nil || cfg.ClosedWeekday == "" {
		return "The clinic is closed that day. Ask for another date."
	}
	return fmt.Sprintf("The clinic is closed on %ss. Ask for another date.", cfg.ClosedWeekday)
}
