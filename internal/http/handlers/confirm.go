package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/avaclinic/booking-assistant/internal/appointments"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

// ConfirmationActor is the slice of the confirmation service this handler
// needs.
type ConfirmationActor interface {
	Act(ctx context.Context, token string, action appointments.Action) (*appointments.Outcome, error)
}

// ConfirmHandler serves the public confirm/cancel links from booking emails.
// It is unauthenticated: the token is the only credential, so responses never
// include other appointments' data and token misses stay indistinguishable
// from expired links.
type ConfirmHandler struct {
	confirmations ConfirmationActor
	logger        *logging.Logger
}

func NewConfirmHandler(confirmations ConfirmationActor, logger *logging.Logger) *ConfirmHandler {
	if confirmations == nil {
		panic("handlers: confirmation service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmHandler{confirmations: confirmations, logger: logger}
}

var confirmPage = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f5f6f8; margin: 0; }
  .card { max-width: 28rem; margin: 4rem auto; background: #fff; border-radius: 8px;
          padding: 2rem; box-shadow: 0 1px 4px rgba(0,0,0,.08); text-align: center; }
  h1 { font-size: 1.25rem; margin: 0 0 .75rem; }
  p { color: #444; margin: 0; }
  .detail { margin-top: 1rem; color: #666; font-size: .9rem; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
  {{if .Detail}}<p class="detail">{{.Detail}}</p>{{end}}
</div>
</body>
</html>
`))

type confirmPageData struct {
	Title   string
	Message string
	Detail  string
}

// Confirm handles GET /appointments/confirm?token=...&action=confirm|cancel.
func (h *ConfirmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	action, err := appointments.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		h.render(w, http.StatusBadRequest, confirmPageData{
			Title:   "Something is off with that link",
			Message: "The requested action is not recognized. Please use the link from your email without changes.",
		})
		return
	}

	outcome, err := h.confirmations.Act(r.Context(), r.URL.Query().Get("token"), action)
	switch {
	case err == nil:
		h.render(w, http.StatusOK, h.outcomePage(action, outcome))
	case errors.Is(err, appointments.ErrTokenNotFound):
		// Whether the token ever existed stays hidden.
		h.render(w, http.StatusNotFound, confirmPageData{
			Title:   "Link invalid or expired",
			Message: "We could not find an appointment for this link. It may have expired or already been used.",
		})
	default:
		h.logger.Error("confirmation action failed", "error", err.Error())
		h.render(w, http.StatusInternalServerError, confirmPageData{
			Title:   "Something went wrong",
			Message: "We could not process your request right now. Please try again in a moment.",
		})
	}
}

func (h *ConfirmHandler) outcomePage(action appointments.Action, outcome *appointments.Outcome) confirmPageData {
	appt := outcome.Appointment
	detail := ""
	if appt != nil {
		detail = "Appointment on " + appt.Date + " at " + appt.Time + "."
	}

	if outcome.Already {
		switch outcome.Status {
		case appointments.StatusCancelled:
			return confirmPageData{
				Title:   "Already cancelled",
				Message: "This appointment was already cancelled. No further action is needed.",
				Detail:  detail,
			}
		case appointments.StatusCompleted:
			return confirmPageData{
				Title:   "Visit already completed",
				Message: "This appointment has already taken place.",
				Detail:  detail,
			}
		default:
			return confirmPageData{
				Title:   "Already confirmed",
				Message: "This appointment is already confirmed. We look forward to seeing you.",
				Detail:  detail,
			}
		}
	}

	if action == appointments.ActionCancel {
		return confirmPageData{
			Title:   "Appointment cancelled",
			Message: "Your appointment has been cancelled. The slot is now open for other patients.",
			Detail:  detail,
		}
	}
	return confirmPageData{
		Title:   "Appointment confirmed",
		Message: "Thank you, your appointment is confirmed. We look forward to seeing you.",
		Detail:  detail,
	}
}

func (h *ConfirmHandler) render(w http.ResponseWriter, status int, data confirmPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := confirmPage.Execute(w, data); err != nil {
		h.logger.Error("rendering confirmation page failed", "error", err.Error())
	}
}
